package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource/duckdb"
	"github.com/ekaya-inc/ekaya-insights/pkg/anonymizer"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/testhelpers"
)

func testConfig() *config.Config {
	return &config.Config{
		BindAddr: "127.0.0.1",
		Port:     "0",
		Env:      "test",
		Version:  "test",
		Auth: config.AuthConfig{
			HMACSecret: testhelpers.TestHMACSecret,
			HMACIssuer: testhelpers.TestIssuer,
		},
		Catalog:       config.CatalogConfig{Dir: "../../catalogs", Tenants: []string{"itc", "nestle"}},
		Anonymization: config.AnonymizationConfig{Enabled: true, Strategy: "categorical"},
		SQL:           config.SQLConfig{Dialect: "duckdb", Parameterize: true, DefaultRankingLimit: 10, MaxLimit: 1000},
		Datasource:    config.DatasourceConfig{Type: "duckdb"},
	}
}

func serve(t *testing.T, s *Server, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNew_WiresRoutes(t *testing.T) {
	s, err := New(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	assert.ElementsMatch(t, []string{"itc", "nestle"}, s.Catalogs.Tenants())

	rec := serve(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"datasource":"ok"`)

	token := testhelpers.SignedToken(t, testhelpers.TestClaims("u-1", "itc", "admin", nil))
	rec = serve(t, s, http.MethodGet, "/api/catalog", token)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	// Unsigned tokens are always refused.
	rec = serve(t, s, http.MethodGet, "/api/catalog",
		testhelpers.UnsignedToken(testhelpers.TestClaims("u-1", "itc", "admin", nil)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ekaya_insights_http_requests_total")
}

func TestNew_DialectMustMatchDatasource(t *testing.T) {
	cfg := testConfig()
	cfg.SQL.Dialect = "postgres"

	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects duckdb SQL")
}

func TestNew_BrokenCatalogFailsStartup(t *testing.T) {
	cfg := testConfig()
	cfg.Catalog.Tenants = []string{"itc", "acme"}

	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acme")
}

func TestNewMapper(t *testing.T) {
	m, err := NewMapper(config.AnonymizationConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = NewMapper(config.AnonymizationConfig{Enabled: true, Strategy: "hash", Salt: "pepper"})
	require.NoError(t, err)
	assert.Equal(t, anonymizer.StrategyHash, m.Strategy())

	_, err = NewMapper(config.AnonymizationConfig{Enabled: true, Strategy: "hash"})
	assert.Error(t, err)
}

func TestNewExtractor(t *testing.T) {
	_, err := NewExtractor(config.LLMConfig{Provider: "openai", Model: "gpt-test", TimeoutSeconds: 5}, zap.NewNop())
	assert.NoError(t, err)

	_, err = NewExtractor(config.LLMConfig{Provider: "anthropic", Model: "claude-test", APIKey: "k"}, zap.NewNop())
	assert.NoError(t, err)

	_, err = NewExtractor(config.LLMConfig{Provider: "bard", Model: "x"}, zap.NewNop())
	assert.Error(t, err)
}
