package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-insights/pkg/anonymizer"
	"github.com/ekaya-inc/ekaya-insights/pkg/render"
)

// DefaultPath is where Load looks for the configuration file.
const DefaultPath = "config.yaml"

// Config holds all configuration for ekaya-insights.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys, salts) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Auth          AuthConfig          `yaml:"auth"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Anonymization AnonymizationConfig `yaml:"anonymization"`
	SQL           SQLConfig           `yaml:"sql"`
	LLM           LLMConfig           `yaml:"llm"`
	Datasource    DatasourceConfig    `yaml:"datasource"`
}

// AuthConfig holds authentication-related configuration. Every token is
// verified; local development signs its own tokens with AUTH_HMAC_SECRET
// instead of running an identity provider.
type AuthConfig struct {
	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	Audience string `yaml:"audience" env:"AUTH_AUDIENCE" env-default:""`

	// HMACSecret enables HS256 tokens for service callers.
	HMACSecret string `yaml:"-" env:"AUTH_HMAC_SECRET"` // Secret - not in YAML
	HMACIssuer string `yaml:"hmac_issuer" env:"AUTH_HMAC_ISSUER" env-default:"ekaya-insights"`
}

// CatalogConfig says where tenant catalogs live and which tenants to serve.
type CatalogConfig struct {
	Dir string `yaml:"dir" env:"CATALOG_DIR" env-default:"catalogs"`
	// TenantsStr is a comma-separated tenant list, e.g. "nestle,itc,unilever".
	TenantsStr string   `yaml:"tenants" env:"CATALOG_TENANTS" env-default:""`
	Tenants    []string `yaml:"-"`
	// VerifyTables checks declared tables against the datasource at start-up.
	VerifyTables bool `yaml:"verify_tables" env:"CATALOG_VERIFY_TABLES" env-default:"false"`
}

// AnonymizationConfig controls what the intent extractor may see.
type AnonymizationConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ANONYMIZATION_ENABLED" env-default:"true"`
	Strategy string `yaml:"strategy" env:"ANONYMIZATION_STRATEGY" env-default:"categorical"`
	Salt     string `yaml:"-" env:"ANONYMIZATION_SALT"` // Secret - not in YAML
}

// SQLConfig controls statement generation.
type SQLConfig struct {
	Dialect             string `yaml:"dialect" env:"SQL_DIALECT" env-default:"postgres"`
	Parameterize        bool   `yaml:"parameterize" env:"SQL_PARAMETERIZE" env-default:"true"`
	DefaultRankingLimit int    `yaml:"default_ranking_limit" env:"SQL_DEFAULT_RANKING_LIMIT" env-default:"10"`
	MaxLimit            int    `yaml:"max_limit" env:"SQL_MAX_LIMIT" env-default:"1000"`
}

// LLMConfig configures the intent extractor's model.
type LLMConfig struct {
	Provider       string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint       string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""` // empty uses the provider default
	Model          string  `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey         string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature    float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens      int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"30"`
}

// IsConfigured returns true if an extractor model is set.
func (c *LLMConfig) IsConfigured() bool {
	return c.Model != ""
}

// DatasourceConfig describes the warehouse compiled statements run against.
type DatasourceConfig struct {
	Type     string `yaml:"type" env:"DATASOURCE_TYPE" env-default:""`
	Host     string `yaml:"host" env:"DATASOURCE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DATASOURCE_PORT" env-default:"0"`
	User     string `yaml:"user" env:"DATASOURCE_USER" env-default:""`
	Password string `yaml:"-" env:"DATASOURCE_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"DATASOURCE_DATABASE" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"DATASOURCE_SSLMODE" env-default:"disable"`
	// Path is the DuckDB database file; empty means in-memory.
	Path     string `yaml:"path" env:"DATASOURCE_PATH" env-default:""`
	MaxConns int32  `yaml:"max_conns" env:"DATASOURCE_MAX_CONNS" env-default:"10"`
}

// IsConfigured returns true if a datasource type is set.
func (c *DatasourceConfig) IsConfigured() bool {
	return c.Type != ""
}

// Load reads DefaultPath with environment variable overrides.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultPath, version)
}

// LoadFrom reads configuration from path with environment variable
// overrides. A missing file is not an error; environment and defaults apply.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.parseComplexFields()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	c.Catalog.Tenants = parseList(c.Catalog.TenantsStr)
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}

	if c.Anonymization.Enabled {
		strategy, err := anonymizer.ParseStrategy(c.Anonymization.Strategy)
		if err != nil {
			return fmt.Errorf("anonymization: %w", err)
		}
		if strategy == anonymizer.StrategyHash && c.Anonymization.Salt == "" {
			return fmt.Errorf("anonymization: hash strategy requires ANONYMIZATION_SALT")
		}
	}

	if _, err := render.Lookup(c.SQL.Dialect); err != nil {
		return fmt.Errorf("sql: %w", err)
	}
	if c.SQL.DefaultRankingLimit < 1 || c.SQL.MaxLimit < c.SQL.DefaultRankingLimit {
		return fmt.Errorf("sql: need 1 <= default_ranking_limit (%d) <= max_limit (%d)",
			c.SQL.DefaultRankingLimit, c.SQL.MaxLimit)
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "openai-compatible", "anthropic", "":
	default:
		return fmt.Errorf("llm: unsupported provider %q", c.LLM.Provider)
	}

	switch c.Datasource.Type {
	case "", "postgres", "mssql", "duckdb":
	default:
		return fmt.Errorf("datasource: unsupported type %q", c.Datasource.Type)
	}

	if len(c.Auth.JWKSEndpoints) == 0 && c.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: neither jwks_endpoints nor AUTH_HMAC_SECRET is set; no token could be verified")
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}
	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	for _, pair := range parseList(value) {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if ok {
			endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
		}
	}
	return endpoints
}

func parseList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// DSN returns the driver connection string for the configured type.
func (c *DatasourceConfig) DSN() string {
	host := ResolveHostForDocker(c.Host)
	switch c.Type {
	case "postgres":
		port := c.Port
		if port == 0 {
			port = 5432
		}
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			host, port, c.User, c.Password, c.Database, c.SSLMode,
		)
	case "mssql":
		port := c.Port
		if port == 0 {
			port = 1433
		}
		u := &url.URL{
			Scheme: "sqlserver",
			User:   url.UserPassword(c.User, c.Password),
			Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		}
		if c.Database != "" {
			u.RawQuery = url.Values{"database": {c.Database}}.Encode()
		}
		return u.String()
	case "duckdb":
		return c.Path
	}
	return ""
}

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether /.dockerenv exists. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps localhost to host.docker.internal when running
// in a container, so a warehouse on the host machine stays reachable.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}
