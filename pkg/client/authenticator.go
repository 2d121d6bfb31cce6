// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package client

import "net/http"

const (
	AuthorizationHeader = "Authorization"
	CorrelationHeader   = "X-Correlation-ID"
)

// TokenSource is the non-blocking read side of a credential store.
type TokenSource interface {
	AccessToken() (string, bool)
}

// Authenticate sets the bearer header from src if it holds a token. A
// missing token is not an error; the server decides.
func Authenticate(req *http.Request, src TokenSource) *http.Request {
	if src == nil {
		return req
	}
	if token, ok := src.AccessToken(); ok && token != "" {
		setBearer(req, token)
	}
	return req
}

func setBearer(req *http.Request, token string) {
	req.Header.Set(AuthorizationHeader, "Bearer "+token)
}
