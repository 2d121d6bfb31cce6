// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package client

import "net/http"

type Classification int

const (
	// OtherError is any non-auth failure; it is terminal.
	OtherError Classification = iota
	// RetryableAuthFailure is a 401 on a request whose retry is unspent.
	RetryableAuthFailure
	// AlreadyRetried is a 401 that survived the replay; it is terminal.
	AlreadyRetried
)

func (c Classification) String() string {
	switch c {
	case RetryableAuthFailure:
		return "RetryableAuthFailure"
	case AlreadyRetried:
		return "AlreadyRetried"
	default:
		return "OtherError"
	}
}

// Failed reports whether the outcome of an attempt is a failure: a
// transport error or a status outside 2xx.
func Failed(resp *http.Response, err error) bool {
	if err != nil || resp == nil {
		return true
	}
	return resp.StatusCode < 200 || resp.StatusCode > 299
}

// Classify decides how a failed attempt of rec is handled.
func Classify(resp *http.Response, err error, rec Record) Classification {
	if err != nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return OtherError
	}
	if rec.IsRetried() {
		return AlreadyRetried
	}
	return RetryableAuthFailure
}
