package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/telekom/reauth/pkg/devserver"
)

func NewServeCommand() *cobra.Command {
	var (
		addr         string
		issuer       string
		secret       string
		accessTTL    time.Duration
		refreshTTL   time.Duration
		clientID     string
		clientSecret string
		origins      []string
		tokenRate    float64
		tokenBurst   int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local dev API server",
		Long: "Run a mock API that issues short-lived tokens, rotates refresh tokens " +
			"and rejects expired tokens with 401, for exercising the client locally.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if secret == "" {
				secret = os.Getenv("REAUTH_DEV_SECRET")
			}
			if secret == "" {
				secret = uuid.NewString()
				rt.log().Warnw("No signing secret configured; tokens will not survive a restart")
			}
			srv, err := devserver.New(devserver.Config{
				Issuer:         issuer,
				Secret:         []byte(secret),
				AccessTTL:      accessTTL,
				RefreshTTL:     refreshTTL,
				ClientID:       clientID,
				ClientSecret:   clientSecret,
				AllowedOrigins: origins,
				TokenRateLimit: devserver.RateLimit{Rate: tokenRate, Burst: tokenBurst},
				Debug:          rt.verbose,
			}, rt.logger)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().StringVar(&issuer, "issuer", "", "Public base URL (default derived from requests)")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret (env REAUTH_DEV_SECRET)")
	cmd.Flags().DurationVar(&accessTTL, "access-ttl", devserver.DefaultAccessTTL, "Access token lifetime")
	cmd.Flags().DurationVar(&refreshTTL, "refresh-ttl", devserver.DefaultRefreshTTL, "Refresh token lifetime")
	cmd.Flags().StringVar(&clientID, "client-id", devserver.DefaultClientID, "Client ID accepted by the client credentials grant")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "Client secret required by the client credentials grant")
	cmd.Flags().StringSliceVar(&origins, "allow-origin", nil, "Enable CORS for these origins")
	cmd.Flags().Float64Var(&tokenRate, "token-rate", 0, "Token requests per second allowed per client IP (0 disables)")
	cmd.Flags().IntVar(&tokenBurst, "token-burst", 10, "Burst size for --token-rate")
	return cmd
}
