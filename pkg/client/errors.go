// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrAuthExpired is reported when a request is still rejected with 401
	// after its single replay with a refreshed credential.
	ErrAuthExpired = errors.New("authentication expired")
	// ErrRefreshFailed is reported when the credential refresh failed or
	// produced no token. It is delivered to every caller of the round.
	ErrRefreshFailed = errors.New("credential refresh failed")
	// ErrNetwork marks transport failures where no response was received.
	ErrNetwork = errors.New("network error")
	// ErrServer marks any other non-2xx response.
	ErrServer = errors.New("server error")

	errNoToken = errors.New("refresh returned no token")
)

// DefaultErrorMessage is shown to users when the server did not provide one.
const DefaultErrorMessage = "unexpected error"

const maxErrorBody = 1 << 20

type HTTPError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// Is maps the status code onto the error taxonomy. A 401 only ever reaches
// a caller after the auth retry has been spent.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrAuthExpired:
		return e.StatusCode == http.StatusUnauthorized
	case ErrServer:
		return e.StatusCode != http.StatusUnauthorized
	}
	return false
}

type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s: %v", ErrRefreshFailed, e.Err)
}

func (e *RefreshError) Is(target error) bool { return target == ErrRefreshFailed }

func (e *RefreshError) Unwrap() error { return e.Err }

type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", ErrNetwork, e.Err)
}

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func (e *NetworkError) Unwrap() error { return e.Err }

// Kind returns a short label for err, used for metrics and diagnostics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(err, ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrServer):
		return "server"
	default:
		return "other"
	}
}

// UserMessage returns the message a person should see for err.
func UserMessage(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}
	return DefaultErrorMessage
}

func decodeError(resp *http.Response) error {
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(body) > 0 {
		_ = json.Unmarshal(body, &apiErr)
	}
	msg := strings.TrimSpace(apiErr.Message)
	if msg == "" {
		msg = strings.TrimSpace(apiErr.Error)
	}
	if msg == "" && !looksLikeJSON(body) {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = resp.Status
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: msg, Body: body}
}

func looksLikeJSON(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}
