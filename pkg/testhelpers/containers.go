package testhelpers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ekaya-inc/ekaya-insights/pkg/catalog"
	"github.com/ekaya-inc/ekaya-insights/pkg/retry"
)

// WarehouseImage is the PostgreSQL image standing in for the tenants' data
// warehouse.
const WarehouseImage = "postgres:16-alpine"

// Warehouse is a disposable PostgreSQL shared by every integration test in a
// test binary. Tests never share tables: each one creates its tenant schema
// with TenantSchema.
type Warehouse struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	DSN       string
}

var (
	warehouse     *Warehouse
	warehouseOnce sync.Once
	warehouseErr  error
)

// StartWarehouse returns the shared warehouse, starting it on first use.
// It skips in -short mode since it needs Docker.
func StartWarehouse(t *testing.T) *Warehouse {
	t.Helper()
	if testing.Short() {
		t.Skip("warehouse tests need Docker; skipped in -short mode")
	}

	warehouseOnce.Do(func() {
		warehouse, warehouseErr = startWarehouse(context.Background())
	})
	if warehouseErr != nil {
		t.Fatalf("start warehouse: %v", warehouseErr)
	}
	return warehouse
}

// TenantSchema creates the tenant's isolated schema, runs ddl with that
// schema first on the search path, and drops the schema when the test ends.
// It returns the schema name.
func (w *Warehouse) TenantSchema(t *testing.T, tenant string, ddl ...string) string {
	t.Helper()
	ctx := context.Background()
	schema := catalog.DefaultSchema(tenant)
	quoted := pgx.Identifier{schema}.Sanitize()

	err := pgx.BeginFunc(ctx, w.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DROP SCHEMA IF EXISTS "+quoted+" CASCADE; CREATE SCHEMA "+quoted); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+quoted); err != nil {
			return err
		}
		for _, stmt := range ddl {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("%s: %w", firstLine(stmt), err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("create schema %s: %v", schema, err)
	}

	t.Cleanup(func() {
		if _, err := w.Pool.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+quoted+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
	})
	return schema
}

func startWarehouse(ctx context.Context) (*Warehouse, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        WarehouseImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "warehouse",
				"POSTGRES_USER":     "insights",
				"POSTGRES_PASSWORD": "insights",
			},
			// initdb restarts the server once.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("postgres://insights:insights@%s:%s/warehouse?sslmode=disable", host, port.Port())

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := retry.Do(ctx, retry.DefaultConfig(), func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("warehouse not reachable: %w", err)
	}

	return &Warehouse{Container: container, Pool: pool, DSN: dsn}, nil
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
