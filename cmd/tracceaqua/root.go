package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tracceaqua/internal/client"
	"tracceaqua/internal/config"
)

type app struct {
	out        io.Writer
	configPath string
	verbose    bool

	cfg       *config.Config
	logger    *zap.Logger
	newLogger func(level zapcore.Level) (*zap.Logger, error)
}

func newApp(out io.Writer) *app {
	return &app{out: out, newLogger: productionLogger}
}

func productionLogger(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tracceaqua",
		Short:         "TracceAqua batch grouping and records service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "tracceaqua.yaml", "path to the YAML configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(a.serveCommand(), a.batchesCommand(), a.importCommand())
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	level := cfg.LogLevel()
	if a.verbose {
		level = zapcore.DebugLevel
	}
	logger, err := a.newLogger(level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// newClient builds a records API client from the loaded configuration.
func (a *app) newClient() (*client.Client, error) {
	api := a.cfg.API
	opts := []client.Option{
		client.WithHTTPClient(&http.Client{Timeout: a.cfg.GetHTTPTimeout()}),
		client.WithLogger(a.logger.Named("client")),
		client.WithRetry(api.MaxRetries, a.cfg.GetRetryBase(), a.cfg.GetRetryMax()),
		client.WithRateLimit(api.RateLimit, api.Burst),
		client.WithStaleTime(a.cfg.GetStaleTime()),
		client.WithGCTime(a.cfg.GetGCTime()),
		client.WithCacheSize(api.CacheSize),
	}
	if api.Token != "" {
		opts = append(opts, client.WithTokenSource(client.StaticToken(api.Token)))
	}
	return client.New(api.URL, opts...)
}
