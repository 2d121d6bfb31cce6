// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// Record is the immutable description of one logical request: the
// caller's request, its buffered body and whether the auth retry has been
// spent. Every attempt is sent from a fresh clone, so the caller's request
// is never mutated.
type Record struct {
	req           *http.Request
	body          []byte
	hasBody       bool
	retried       bool
	correlationID string
}

// NewRecord buffers the request body so the request can be replayed.
func NewRecord(req *http.Request) (Record, error) {
	if req == nil {
		return Record{}, fmt.Errorf("request is nil")
	}
	rec := Record{req: req, correlationID: req.Header.Get(CorrelationHeader)}
	if rec.correlationID == "" {
		rec.correlationID = uuid.NewString()
	}
	if req.GetBody == nil && req.Body != nil && req.Body != http.NoBody {
		data, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return Record{}, fmt.Errorf("failed to buffer request body: %w", err)
		}
		rec.body = data
		rec.hasBody = true
	}
	return rec, nil
}

// Retried returns a copy of r with the auth retry marked as spent.
func (r Record) Retried() Record {
	r.retried = true
	return r
}

func (r Record) IsRetried() bool { return r.retried }

func (r Record) CorrelationID() string { return r.correlationID }

func (r Record) Method() string { return r.req.Method }

func (r Record) URL() string { return r.req.URL.String() }

func (r Record) Context() context.Context { return r.req.Context() }

// Request builds a new outgoing request for one attempt.
func (r Record) Request() (*http.Request, error) {
	out := r.req.Clone(r.req.Context())
	switch {
	case r.hasBody:
		out.Body = io.NopCloser(bytes.NewReader(r.body))
		out.ContentLength = int64(len(r.body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(r.body)), nil
		}
	case r.req.GetBody != nil:
		body, err := r.req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		out.Body = body
	}
	out.Header.Set(CorrelationHeader, r.correlationID)
	return out, nil
}
