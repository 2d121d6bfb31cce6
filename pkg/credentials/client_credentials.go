package credentials

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentialsLogin fetches a token for a machine identity.
func ClientCredentialsLogin(ctx context.Context, cfg OIDCConfig) (*LoginResult, error) {
	result, err := BuildOAuthConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     result.OAuthConfig.Endpoint.TokenURL,
		Scopes:       cfg.Scopes,
		AuthStyle:    result.OAuthConfig.Endpoint.AuthStyle,
	}
	token, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, result.Client))
	if err != nil {
		return nil, fmt.Errorf("client credentials token failed: %w", err)
	}
	idToken, _ := token.Extra("id_token").(string)
	return &LoginResult{Token: token, IDToken: idToken}, nil
}

// Stored converts the login result for persistence.
func (r *LoginResult) Stored() StoredToken {
	stored := FromOAuth2(r.Token, StoredToken{})
	if stored.IDToken == "" {
		stored.IDToken = r.IDToken
	}
	return stored
}
