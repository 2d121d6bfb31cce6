// Package client implements the authenticated HTTP client: it attaches the
// bearer token to outgoing requests, refreshes the credential exactly once
// when concurrent requests fail with 401, replays the failed requests with
// the new token and reports terminal failures to a diagnostics sink.
package client
