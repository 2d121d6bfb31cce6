// Package cmd implements the cobra command tree of the reauth CLI: sending
// authenticated requests, managing stored credentials and configuration,
// and running the local dev server.
package cmd
