//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insights/pkg/testhelpers"
)

func TestExecutor_QueryAndListTables(t *testing.T) {
	w := testhelpers.StartWarehouse(t)
	ctx := context.Background()

	w.TenantSchema(t, "pgtest",
		`CREATE TABLE fact_sales (zone text, net_value numeric)`,
		`INSERT INTO fact_sales VALUES ('Z1', 10), ('Z1', 5), ('Z2', 7), ('Z3', 1)`)

	exec := NewExecutorFromPool(w.Pool)
	defer exec.Close()

	require.NoError(t, exec.Ping(ctx))

	tables, err := exec.ListTables(ctx, "client_pgtest")
	require.NoError(t, err)
	assert.Equal(t, []string{"fact_sales"}, tables)

	res, err := exec.Query(ctx, `
		SELECT "zone", SUM("net_value") AS total
		FROM "client_pgtest"."fact_sales"
		WHERE "zone" IN ($1, $2)
		GROUP BY "zone"
		ORDER BY total DESC`, []any{"Z1", "Z2"}, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, res.RowCount)
	assert.True(t, res.Truncated)
	assert.Equal(t, "Z1", res.Rows[0]["zone"])
	assert.Equal(t, "NUMERIC", res.Columns[1].Type)
}
