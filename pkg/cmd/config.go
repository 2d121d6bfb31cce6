package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/reauth/pkg/config"
	"github.com/telekom/reauth/pkg/output"
)

const redacted = "REDACTED"

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage reauth configuration",
	}
	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigViewCommand(),
		newConfigContextsCommand(),
		newConfigUseContextCommand(),
		newConfigSetValueCommand(),
	)
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		contextName  string
		server       string
		authority    string
		tokenURL     string
		clientID     string
		tokenStorage string
		insecure     bool
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a reauth config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			path := rt.configPath
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config already exists: %s", path)
				}
			}
			cfg := config.DefaultConfig()
			cfg.CurrentContext = contextName
			ctx := config.Context{
				Name:                  contextName,
				Server:                server,
				InsecureSkipTLSVerify: insecure,
				TokenStorage:          tokenStorage,
			}
			if authority != "" || tokenURL != "" {
				if clientID == "" {
					clientID = "reauth"
				}
				ctx.OIDC = &config.InlineOIDC{
					Authority:       authority,
					TokenURL:        tokenURL,
					ClientID:        clientID,
					InsecureSkipTLS: insecure,
				}
			}
			cfg.Contexts = append(cfg.Contexts, ctx)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Initialized config at %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&contextName, "context", "default", "Context name")
	cmd.Flags().StringVar(&server, "server", "", "API server URL")
	cmd.Flags().StringVar(&authority, "oidc-authority", "", "OIDC authority URL used for token refresh")
	cmd.Flags().StringVar(&tokenURL, "token-url", "", "Token endpoint URL, skips OIDC discovery")
	cmd.Flags().StringVar(&clientID, "oidc-client-id", "", "OIDC client ID (default reauth)")
	cmd.Flags().StringVar(&tokenStorage, "token-storage", "", "Token storage backend: file or keychain")
	cmd.Flags().BoolVar(&insecure, "insecure-skip-tls-verify", false, "Skip TLS verification")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")

	_ = cmd.MarkFlagRequired("server")
	return cmd
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			format := output.FormatYAML
			if rt.outputFormat == string(output.FormatJSON) {
				format = output.FormatJSON
			}
			return output.WriteObject(rt.Writer(), format, redactConfig(*rt.cfg))
		},
	}
}

func redactConfig(cfg config.Config) config.Config {
	providers := make([]config.OIDCProvider, len(cfg.OIDCProviders))
	for i, p := range cfg.OIDCProviders {
		if p.ClientSecret != "" {
			p.ClientSecret = redacted
		}
		providers[i] = p
	}
	contexts := make([]config.Context, len(cfg.Contexts))
	for i, ctx := range cfg.Contexts {
		if ctx.OIDC != nil && ctx.OIDC.ClientSecret != "" {
			inline := *ctx.OIDC
			inline.ClientSecret = redacted
			ctx.OIDC = &inline
		}
		contexts[i] = ctx
	}
	cfg.OIDCProviders = providers
	cfg.Contexts = contexts
	return cfg
}

func newConfigContextsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-contexts",
		Short: "List configured contexts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			current := rt.cfg.CurrentContextOrDefault()
			for _, ctx := range rt.cfg.Contexts {
				marker := " "
				if ctx.Name == current {
					marker = "*"
				}
				_, _ = fmt.Fprintf(rt.Writer(), "%s %s\t%s\n", marker, ctx.Name, ctx.Server)
			}
			return nil
		},
	}
}

func newConfigUseContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "use-context NAME",
		Aliases: []string{"use"},
		Short:   "Set the default context",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.cfg.UseContext(args[0]); err != nil {
				return err
			}
			if err := config.Save(rt.configPath, rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "%s\n", args[0])
			return nil
		},
	}
}

func newConfigSetValueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a settings value",
		Long: "Set one of settings.output-format, settings.timeout, settings.refresh-timeout, " +
			"settings.log-level or settings.production.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			key, value := args[0], args[1]
			settings := &rt.cfg.Settings
			switch key {
			case "settings.output-format":
				settings.OutputFormat = value
			case "settings.timeout":
				d, err := time.ParseDuration(value)
				if err != nil {
					return fmt.Errorf("invalid timeout: %w", err)
				}
				settings.Timeout = d
			case "settings.refresh-timeout":
				d, err := time.ParseDuration(value)
				if err != nil {
					return fmt.Errorf("invalid refresh timeout: %w", err)
				}
				settings.RefreshTimeout = &d
			case "settings.log-level":
				settings.LogLevel = value
			case "settings.production":
				b, err := strconv.ParseBool(value)
				if err != nil {
					return fmt.Errorf("invalid production flag: %w", err)
				}
				settings.Production = b
			default:
				return fmt.Errorf("unknown config key: %s", key)
			}
			if err := rt.cfg.Validate(); err != nil {
				return err
			}
			return config.Save(rt.configPath, rt.cfg)
		},
	}
}
