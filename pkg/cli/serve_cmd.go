package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	// Datasource adapters register themselves.
	_ "github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource/duckdb"
	_ "github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/server"
)

func newServeCmd(version string) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFrom(configPath, version)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.LogLevel, cfg.Env)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			logger.Info("Configuration loaded",
				zap.String("env", cfg.Env),
				zap.Int("jwks_issuers", len(cfg.Auth.JWKSEndpoints)),
				zap.Bool("hmac_tokens", cfg.Auth.HMACSecret != ""),
				zap.Strings("tenants", cfg.Catalog.Tenants),
				zap.Bool("anonymization", cfg.Anonymization.Enabled),
				zap.String("strategy", cfg.Anonymization.Strategy),
				zap.String("datasource", cfg.Datasource.Type),
				zap.Bool("llm", cfg.LLM.IsConfigured()))

			ctx, stop := signal.NotifyContext(contextOrBackground(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer srv.Close()

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to config.yaml")
	return cmd
}

// contextOrBackground guards commands executed without ExecuteContext.
func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
