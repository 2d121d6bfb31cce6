// Package config loads and saves the reauth CLI configuration: named
// contexts pointing at an API server, the OIDC providers that refresh their
// tokens, and global settings.
package config
