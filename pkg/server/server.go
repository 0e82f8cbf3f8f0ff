// Package server assembles the pipeline, its collaborators and the HTTP
// surface from configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/anonymizer"
	"github.com/ekaya-inc/ekaya-insights/pkg/audit"
	"github.com/ekaya-inc/ekaya-insights/pkg/auth"
	"github.com/ekaya-inc/ekaya-insights/pkg/catalog"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/handlers"
	"github.com/ekaya-inc/ekaya-insights/pkg/intent"
	"github.com/ekaya-inc/ekaya-insights/pkg/llm"
	"github.com/ekaya-inc/ekaya-insights/pkg/middleware"
	"github.com/ekaya-inc/ekaya-insights/pkg/pipeline"
	"github.com/ekaya-inc/ekaya-insights/pkg/render"
	"github.com/ekaya-inc/ekaya-insights/pkg/retry"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1"
	shutdownTimeout       = 15 * time.Second
)

// Server is a fully wired ekaya-insights instance.
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	Catalogs   *catalog.Registry
	Pipeline   *pipeline.Pipeline
	datasource datasource.Datasource
	validators []auth.TokenValidator
	handler    http.Handler
}

// New builds every component the configuration enables. Catalogs listed in
// the configuration are loaded up front so a broken one fails start-up.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	s.Catalogs = catalog.NewRegistry(cfg.Catalog.Dir, logger)
	if err := s.Catalogs.Preload(ctx, cfg.Catalog.Tenants); err != nil {
		return nil, fmt.Errorf("preload catalogs: %w", err)
	}

	dialect, err := render.Lookup(cfg.SQL.Dialect)
	if err != nil {
		return nil, err
	}

	mapper, err := NewMapper(cfg.Anonymization)
	if err != nil {
		return nil, err
	}

	if cfg.Datasource.IsConfigured() {
		if err := s.openDatasource(ctx, dialect); err != nil {
			s.Close()
			return nil, err
		}
	}

	var extractor intent.Extractor
	if cfg.LLM.IsConfigured() {
		if extractor, err = NewExtractor(cfg.LLM, logger); err != nil {
			s.Close()
			return nil, err
		}
	}

	if err := s.buildValidators(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.Pipeline, err = pipeline.New(pipeline.Deps{
		Catalogs:  s.Catalogs,
		Mapper:    mapper,
		Extractor: extractor,
		Guard:     intent.NewGuard(s.Catalogs),
		Auditor:   audit.NewSecurityAuditor(logger),
		Logger:    logger,
		Options: pipeline.Options{
			Dialect:             dialect,
			Parameterize:        cfg.SQL.Parameterize,
			DefaultRankingLimit: cfg.SQL.DefaultRankingLimit,
			MaxLimit:            cfg.SQL.MaxLimit,
		},
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	s.handler = s.routes()
	return s, nil
}

// NewMapper builds the anonymization mapper; disabled anonymization
// returns nil, which the pipeline treats as pass-through.
func NewMapper(cfg config.AnonymizationConfig) (*anonymizer.Mapper, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	strategy, err := anonymizer.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	return anonymizer.NewMapper(strategy, cfg.Salt)
}

// NewExtractor builds the LLM-backed intent extractor.
func NewExtractor(cfg config.LLMConfig, logger *zap.Logger) (intent.Extractor, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" && cfg.Provider != llm.ProviderAnthropic {
		endpoint = defaultOpenAIEndpoint
	}

	client, err := llm.NewClientForProvider(cfg.Provider, &llm.Config{
		Endpoint:  endpoint,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		MaxTokens: cfg.MaxTokens,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}

	return intent.NewLLMExtractor(client, intent.Options{
		Temperature: cfg.Temperature,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		Retry:       retry.LLMConfig(),
		Breaker:     llm.DefaultCircuitBreakerConfig(),
	}, logger), nil
}

func (s *Server) openDatasource(ctx context.Context, dialect render.Dialect) error {
	ds, err := datasource.Open(ctx, s.cfg.Datasource.Type, datasource.Config{
		DSN:      s.cfg.Datasource.DSN(),
		MaxConns: s.cfg.Datasource.MaxConns,
	}, s.logger.Named("datasource"))
	if err != nil {
		return err
	}
	s.datasource = ds

	if ds.Dialect() != dialect.Name() {
		return fmt.Errorf("datasource %s expects %s SQL but sql.dialect is %s",
			s.cfg.Datasource.Type, ds.Dialect(), dialect.Name())
	}

	if s.cfg.Catalog.VerifyTables {
		for _, tenant := range s.Catalogs.Tenants() {
			cat, err := s.Catalogs.Get(ctx, tenant)
			if err != nil {
				return err
			}
			if err := catalog.VerifyTables(ctx, cat, ds); err != nil {
				return fmt.Errorf("tenant %s: %w", tenant, err)
			}
		}
	}
	return nil
}

func (s *Server) buildValidators(ctx context.Context) error {
	if s.cfg.Auth.HMACSecret != "" {
		hmac, err := auth.NewHMACValidator(s.cfg.Auth.HMACSecret, s.cfg.Auth.HMACIssuer)
		if err != nil {
			return err
		}
		s.validators = append(s.validators, hmac)
	}
	if len(s.cfg.Auth.JWKSEndpoints) > 0 {
		jwks, err := auth.NewJWKSValidator(ctx, s.cfg.Auth.JWKSEndpoints, s.cfg.Auth.Audience)
		if err != nil {
			return err
		}
		s.validators = append(s.validators, jwks)
	}
	if len(s.validators) == 0 {
		return errors.New("server: no token validator configured")
	}
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	var pinger handlers.Pinger
	var executor datasource.QueryExecutor
	if s.datasource != nil {
		pinger = s.datasource
		executor = s.datasource
	}

	handlers.NewHealthHandler(s.cfg, pinger, s.Catalogs.Tenants, s.logger).RegisterRoutes(mux)

	authMiddleware := auth.NewMiddleware(auth.NewAuthService(s.logger, s.validators...), s.logger)
	handlers.NewQueryHandler(s.Pipeline, executor, s.logger).RegisterRoutes(mux, authMiddleware)

	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.Recoverer(s.logger)(middleware.RequestLogger(s.logger)(mux))
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.BindAddr, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		tlsOn := s.cfg.TLSCertPath != ""
		s.logger.Info("Starting ekaya-insights",
			zap.String("addr", addr),
			zap.Bool("tls", tlsOn),
			zap.String("version", s.cfg.Version),
			zap.String("dialect", s.cfg.SQL.Dialect))
		var err error
		if tlsOn {
			err = srv.ListenAndServeTLS(s.cfg.TLSCertPath, s.cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the datasource.
func (s *Server) Close() {
	if s.datasource != nil {
		if err := s.datasource.Close(); err != nil {
			s.logger.Warn("Failed to close datasource", zap.Error(err))
		}
	}
}
