package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/retry"
)

// Config is what an adapter needs to connect.
type Config struct {
	// DSN is the driver connection string. For DuckDB it is a file path;
	// empty opens an in-memory database.
	DSN      string
	MaxConns int32
}

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql", "duckdb"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Dialect     string `json:"dialect"`      // render dialect name
}

// AdapterRegistration contains info + the factory for an adapter.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory func(ctx context.Context, cfg Config) (Datasource, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}

// Open connects to a datasource of the given type and pings it. Transient
// connection failures are retried with retry.DefaultConfig.
func Open(ctx context.Context, dsType string, cfg Config, logger *zap.Logger) (Datasource, error) {
	registryMu.RLock()
	reg, ok := registry[dsType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported datasource type: %s (not compiled in)", dsType)
	}

	attempt := 0
	ds, err := retry.DoIfRetryableWithResult(ctx, retry.DefaultConfig(), func() (Datasource, error) {
		attempt++
		ds, err := reg.Factory(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := ds.Ping(ctx); err != nil {
			_ = ds.Close()
			logger.Warn("Datasource ping failed",
				zap.String("type", dsType),
				zap.Int("attempt", attempt),
				zap.String("error", logging.SanitizeError(err)))
			return nil, err
		}
		return ds, nil
	})
	if err != nil {
		return nil, fmt.Errorf("open %s datasource: %w", dsType, err)
	}

	logger.Info("Datasource connected",
		zap.String("type", dsType),
		zap.String("dialect", ds.Dialect()),
		zap.String("dsn", logging.SanitizeConnectionString(cfg.DSN)))
	return ds, nil
}
