// Package credentials is the credential store behind the authenticated
// client: it keeps the current access token in memory, persists tokens in a
// keychain or a JSON token cache and refreshes them with an OAuth2
// refresh-token grant.
package credentials
