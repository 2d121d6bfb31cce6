package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/reauth/pkg/config"
	"github.com/telekom/reauth/pkg/credentials"
	"github.com/telekom/reauth/pkg/output"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored credentials",
	}
	cmd.AddCommand(
		newAuthLoginCommand(),
		newAuthSetTokenCommand(),
		newAuthStatusCommand(),
		newAuthLogoutCommand(),
	)
	return cmd
}

func contextStore(cmd *cobra.Command) (*runtimeState, *config.Context, *credentials.Store, error) {
	rt, err := getRuntime(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	ctxCfg, err := rt.ResolveContext()
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := buildStore(rt, ctxCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return rt, ctxCfg, store, nil
}

func newAuthLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Acquire a token with the client credentials grant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, ctxCfg, store, err := contextStore(cmd)
			if err != nil {
				return err
			}
			oidcCfg, err := resolveOIDCConfig(rt, ctxCfg)
			if err != nil {
				return err
			}
			result, err := credentials.ClientCredentialsLogin(cmd.Context(), oidcCfg)
			if err != nil {
				return err
			}
			stored := result.Stored()
			if err := store.Save(stored); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Authenticated. Token expires at %s\n", stored.Expiry.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func newAuthSetTokenCommand() *cobra.Command {
	var accessToken, refreshToken string

	cmd := &cobra.Command{
		Use:   "set-token",
		Short: "Store an access and refresh token issued elsewhere",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if accessToken == "" {
				return errors.New("--access-token is required")
			}
			rt, _, store, err := contextStore(cmd)
			if err != nil {
				return err
			}
			if err := store.SetTokens(accessToken, refreshToken); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), "Token stored")
			return nil
		},
	}
	cmd.Flags().StringVar(&accessToken, "access-token", "", "Access token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token")
	return cmd
}

type authStatus struct {
	Context         string     `json:"context" yaml:"context"`
	Authenticated   bool       `json:"authenticated" yaml:"authenticated"`
	Identity        string     `json:"identity,omitempty" yaml:"identity,omitempty"`
	Issuer          string     `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	Expired         bool       `json:"expired" yaml:"expired"`
	CanRefresh      bool       `json:"canRefresh" yaml:"canRefresh"`
	OpaqueToken     bool       `json:"opaqueToken,omitempty" yaml:"opaqueToken,omitempty"`
	TokenStorageKey string     `json:"tokenStorageKey" yaml:"tokenStorageKey"`
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored token of the current context",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, ctxCfg, store, err := contextStore(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(rt.OutputFormat())
			if err != nil {
				return err
			}
			token := store.Token()
			status := authStatus{
				Context:         ctxCfg.Name,
				Authenticated:   store.IsAuthenticated(),
				CanRefresh:      token.RefreshToken != "",
				TokenStorageKey: store.Provider(),
			}
			if status.Authenticated {
				info, err := credentials.Describe(token.AccessToken)
				if err != nil {
					status.OpaqueToken = true
				} else {
					status.Identity = info.Identity()
					status.Issuer = info.Issuer
					status.Expired = info.Expired(time.Now())
					if !info.ExpiresAt.IsZero() {
						status.ExpiresAt = &info.ExpiresAt
					}
				}
			}
			if format == output.FormatRaw {
				return writeStatusLine(rt, status)
			}
			return output.WriteObject(rt.Writer(), format, status)
		},
	}
}

func writeStatusLine(rt *runtimeState, status authStatus) error {
	if !status.Authenticated {
		_, err := fmt.Fprintln(rt.Writer(), "Not authenticated")
		return err
	}
	line := "Authenticated"
	if status.Identity != "" {
		line += " as " + status.Identity
	}
	if status.ExpiresAt != nil {
		state := "expires"
		if status.Expired {
			state = "expired"
		}
		line += fmt.Sprintf(", token %s at %s", state, status.ExpiresAt.UTC().Format(time.RFC3339))
	}
	_, err := fmt.Fprintln(rt.Writer(), line)
	return err
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, _, store, err := contextStore(cmd)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), "Logged out")
			return nil
		},
	}
}
