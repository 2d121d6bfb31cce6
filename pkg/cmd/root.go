package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/reauth/pkg/config"
)

type Config struct {
	ConfigPath   string
	TokenPath    string
	OutputWriter io.Writer
	ErrorWriter  io.Writer
	// Logger replaces the logger built from flags and settings.
	Logger *zap.Logger
}

type runtimeState struct {
	configPath           string
	tokenPath            string
	cfg                  *config.Config
	contextOverride      string
	outputFormat         string
	serverOverride       string
	tokenStorageOverride string
	verbose              bool
	writer               io.Writer
	errWriter            io.Writer
	logger               *zap.Logger
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		TokenPath:    config.DefaultTokenPath(),
		OutputWriter: os.Stdout,
		ErrorWriter:  os.Stderr,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath: cfg.ConfigPath,
		tokenPath:  cfg.TokenPath,
		writer:     cfg.OutputWriter,
		errWriter:  cfg.ErrorWriter,
		logger:     cfg.Logger,
	}

	root := &cobra.Command{
		Use:          "reauth",
		Short:        "HTTP client with single-flight credential refresh",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rt.applyEnv()
			if skipsConfig(cmd) {
				return rt.ensureLogger()
			}
			cfg, err := config.Load(rt.configPath)
			switch {
			case err == nil:
				rt.cfg = cfg
			case errors.Is(err, os.ErrNotExist) && rt.serverOverride != "":
				// Server given on the command line; run without a config file.
				rt.cfg = &config.Config{Version: config.VersionV1}
			default:
				return err
			}
			if err := rt.cfg.Validate(); err != nil {
				return err
			}
			return rt.ensureLogger()
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVarP(&rt.contextOverride, "context", "c", "", "Context name override")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: json, yaml, raw")
	root.PersistentFlags().StringVar(&rt.serverOverride, "server", "", "Server override")
	root.PersistentFlags().StringVar(&rt.tokenStorageOverride, "token-storage", "", "Token storage backend: file or keychain")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Enable debug logging")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewRequestCommand(),
		NewAuthCommand(),
		NewConfigCommand(),
		NewServeCommand(),
		NewVersionCommand(),
	)
	return root
}

func skipsConfig(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "serve":
		return true
	case "init":
		return cmd.Parent() != nil && cmd.Parent().Name() == "config"
	}
	return false
}

func (rt *runtimeState) applyEnv() {
	if rt.writer == nil {
		rt.writer = os.Stdout
	}
	if rt.errWriter == nil {
		rt.errWriter = os.Stderr
	}
	if rt.configPath == "" {
		rt.configPath = config.DefaultConfigPath()
	}
	if rt.tokenPath == "" {
		rt.tokenPath = config.DefaultTokenPath()
	}
	if rt.contextOverride == "" {
		rt.contextOverride = os.Getenv("REAUTH_CONTEXT")
	}
	if rt.outputFormat == "" {
		rt.outputFormat = os.Getenv("REAUTH_OUTPUT")
	}
	if rt.serverOverride == "" {
		rt.serverOverride = os.Getenv("REAUTH_SERVER")
	}
	if rt.tokenStorageOverride == "" {
		rt.tokenStorageOverride = os.Getenv("REAUTH_TOKEN_STORAGE")
	}
	if !rt.verbose {
		rt.verbose = strings.EqualFold(os.Getenv("REAUTH_VERBOSE"), "true")
	}
}

func (rt *runtimeState) ensureLogger() error {
	if rt.logger != nil {
		return nil
	}
	level := ""
	if rt.cfg != nil {
		level = rt.cfg.Settings.LogLevel
	}
	logger, err := setupLogger(rt.verbose, level)
	if err != nil {
		return err
	}
	rt.logger = logger
	return nil
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) log() *zap.SugaredLogger {
	if rt.logger == nil {
		return zap.NewNop().Sugar()
	}
	return rt.logger.Sugar()
}

func (rt *runtimeState) ResolveContextName() string {
	if rt.contextOverride != "" {
		return rt.contextOverride
	}
	if rt.cfg != nil {
		return rt.cfg.CurrentContextOrDefault()
	}
	return ""
}

// ResolveContext returns the selected context. Without any configured
// context a server override yields an ad-hoc one.
func (rt *runtimeState) ResolveContext() (*config.Context, error) {
	if rt.cfg == nil {
		return nil, errors.New("config not loaded")
	}
	name := rt.ResolveContextName()
	if name == "" {
		if rt.serverOverride != "" {
			return &config.Context{Name: "default", Server: rt.serverOverride}, nil
		}
		return nil, errors.New("no context configured; run 'reauth config init'")
	}
	return rt.cfg.FindContext(name)
}

func (rt *runtimeState) resolveServer(ctx *config.Context) string {
	if rt.serverOverride != "" {
		return rt.serverOverride
	}
	if ctx != nil {
		return ctx.Server
	}
	return ""
}

func (rt *runtimeState) OutputFormat() string {
	if rt.outputFormat != "" {
		return rt.outputFormat
	}
	if rt.cfg != nil && rt.cfg.Settings.OutputFormat != "" {
		return rt.cfg.Settings.OutputFormat
	}
	return "json"
}

func (rt *runtimeState) TokenStorage(ctx *config.Context) string {
	if rt.tokenStorageOverride != "" {
		return rt.tokenStorageOverride
	}
	if ctx != nil {
		return ctx.TokenStorage
	}
	return ""
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) ErrWriter() io.Writer {
	if rt.errWriter != nil {
		return rt.errWriter
	}
	return os.Stderr
}
