package cmd

import (
	"errors"

	"github.com/telekom/reauth/pkg/client"
	"github.com/telekom/reauth/pkg/config"
	"github.com/telekom/reauth/pkg/credentials"
	"github.com/telekom/reauth/pkg/diagnostics"
	"github.com/telekom/reauth/pkg/version"
)

func buildClient(rt *runtimeState) (*client.Client, *credentials.Store, error) {
	ctxCfg, err := rt.ResolveContext()
	if err != nil {
		return nil, nil, err
	}
	server := rt.resolveServer(ctxCfg)
	if server == "" {
		return nil, nil, errors.New("server is required")
	}
	store, err := buildStore(rt, ctxCfg)
	if err != nil {
		return nil, nil, err
	}

	log := rt.log()
	sink := diagnostics.NewMulti(rt.cfg.Settings.Production, diagnostics.NewNotifier(rt.ErrWriter()))
	if rt.verbose {
		sink.Add(diagnostics.NewLogSink(log))
	}

	c, err := client.New(
		client.WithServer(server),
		client.WithCredentialStore(store),
		client.WithUserAgent(version.UserAgent()),
		client.WithTimeout(rt.cfg.Settings.EffectiveTimeout()),
		client.WithRefreshTimeout(rt.cfg.Settings.EffectiveRefreshTimeout()),
		// TLS after timeout so the built transport carries both.
		client.WithTLSConfig(resolveCAFile(rt, ctxCfg), ctxCfg.InsecureSkipTLSVerify),
		client.WithDiagnostics(sink),
		client.WithLogger(log),
	)
	if err != nil {
		return nil, nil, err
	}
	return c, store, nil
}

// buildStore opens the token store of ctxCfg. Contexts without an OIDC
// provider get a store that cannot refresh.
func buildStore(rt *runtimeState, ctxCfg *config.Context) (*credentials.Store, error) {
	backend, err := credentials.NewBackend(rt.TokenStorage(ctxCfg), rt.tokenPath)
	if err != nil {
		return nil, err
	}
	var refresher credentials.Refresher
	oidcCfg, err := resolveOIDCConfig(rt, ctxCfg)
	switch {
	case err == nil:
		refresher = credentials.NewDiscoveringRefresher(oidcCfg)
	case errors.Is(err, config.ErrNoOIDCProvider):
		rt.log().Debugw("Context has no OIDC provider; tokens will not be refreshed", "context", ctxCfg.Name)
	default:
		return nil, err
	}
	return credentials.NewStore(rt.cfg.TokenKey(ctxCfg), backend, refresher, rt.log())
}

func resolveOIDCConfig(rt *runtimeState, ctxCfg *config.Context) (credentials.OIDCConfig, error) {
	resolved, err := rt.cfg.ResolveOIDC(ctxCfg)
	if err != nil {
		return credentials.OIDCConfig{}, err
	}
	secret, err := credentials.ResolveClientSecret(resolved.ClientSecret, resolved.ClientSecretEnv, resolved.ClientSecretFile)
	if err != nil {
		return credentials.OIDCConfig{}, err
	}
	return credentials.OIDCConfig{
		Authority:       resolved.Authority,
		ClientID:        resolved.ClientID,
		ClientSecret:    secret,
		Scopes:          resolved.Scopes,
		TokenURL:        resolved.TokenURL,
		CAFile:          resolved.CAFile,
		InsecureSkipTLS: resolved.InsecureSkipTLS,
	}, nil
}

func resolveCAFile(rt *runtimeState, ctxCfg *config.Context) string {
	if ctxCfg.CAFile != "" {
		return ctxCfg.CAFile
	}
	if resolved, err := rt.cfg.ResolveOIDC(ctxCfg); err == nil {
		return resolved.CAFile
	}
	return ""
}
