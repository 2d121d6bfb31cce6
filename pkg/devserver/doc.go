// Package devserver is a small API server for local runs and end-to-end
// tests of the reauth client. It issues short-lived HS256 access tokens,
// rotates refresh tokens and answers unauthenticated calls with 401.
package devserver
