// Package diagnostics receives reports about terminal request failures and
// fans them out to log and user-notification providers.
package diagnostics
