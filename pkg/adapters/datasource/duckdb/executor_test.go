package duckdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/catalog"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/pipeline"
	"github.com/ekaya-inc/ekaya-insights/pkg/render"
)

const seedITC = `
CREATE SCHEMA client_itc;
CREATE TABLE client_itc.dim_product (product_key INTEGER, sku_name VARCHAR, brand_name VARCHAR, category_name VARCHAR);
CREATE TABLE client_itc.dim_outlet (outlet_key INTEGER, outlet_name VARCHAR, outlet_class VARCHAR, town VARCHAR);
CREATE TABLE client_itc.dim_region (region_key INTEGER, state_name VARCHAR, zone_name VARCHAR, territory_code VARCHAR);
CREATE TABLE client_itc.fact_trade_sales (
	txn_key INTEGER, txn_date DATE, product_key INTEGER, outlet_key INTEGER, region_key INTEGER,
	trade_value DOUBLE, cases_sold INTEGER, scheme_cost DOUBLE, is_promo BOOLEAN);

INSERT INTO client_itc.dim_product VALUES (1, 'Atta 5kg', 'Aashirvaad', 'Staples'), (2, 'Marie 100g', 'Sunfeast', 'Biscuits');
INSERT INTO client_itc.dim_outlet VALUES (1, 'Store One', 'A', 'Pune');
INSERT INTO client_itc.dim_region VALUES (1, 'Maharashtra', 'West', 'T1'), (2, 'Gujarat', 'West', 'T2');
INSERT INTO client_itc.fact_trade_sales VALUES
	(1, DATE '2024-03-10', 1, 1, 1, 100, 10, 5, false),
	(2, DATE '2024-03-11', 2, 1, 1, 40, 4, 2, true),
	(3, DATE '2024-03-11', 1, 1, 2, 500, 50, 25, false),
	(4, DATE '2023-12-01', 2, 1, 1, 999, 99, 9, false);
`

func openSeeded(t *testing.T) *Executor {
	t.Helper()
	exec, err := NewExecutor(context.Background(), datasource.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	_, err = exec.DB().Exec(seedITC)
	require.NoError(t, err)
	return exec
}

func TestExecutor_ListTablesSatisfiesCatalogCheck(t *testing.T) {
	exec := openSeeded(t)
	ctx := context.Background()

	tables, err := exec.ListTables(ctx, "client_itc")
	require.NoError(t, err)
	assert.Equal(t, []string{"dim_outlet", "dim_product", "dim_region", "fact_trade_sales"}, tables)

	cat, err := catalog.LoadFile("itc", "../../../../catalogs/itc.yaml")
	require.NoError(t, err)
	assert.NoError(t, catalog.VerifyTables(ctx, cat, exec))
}

func TestExecutor_QueryCapsRows(t *testing.T) {
	exec := openSeeded(t)

	res, err := exec.Query(context.Background(),
		`SELECT txn_key FROM client_itc.fact_trade_sales WHERE trade_value > ? ORDER BY txn_key`,
		[]any{10}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)
	assert.True(t, res.Truncated)
	assert.Equal(t, "txn_key", res.Columns[0].Name)
}

func TestExecutor_RunsCompiledStatementUnderPolicy(t *testing.T) {
	exec := openSeeded(t)
	ctx := context.Background()

	p, err := pipeline.New(pipeline.Deps{
		Catalogs: catalog.NewRegistry("../../../../catalogs", zap.NewNop()),
		Logger:   zap.NewNop(),
		Options: pipeline.Options{
			Dialect:      render.DuckDB{},
			Parameterize: true,
			Clock:        func() time.Time { return time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC) },
		},
	})
	require.NoError(t, err)

	session, err := p.NewSession(ctx, &models.Principal{
		TenantID: "itc",
		UserID:   "tm-7",
		Role:     "territory_manager",
		Scope:    map[string][]string{"territory": {"T1"}},
	})
	require.NoError(t, err)

	result, err := session.Compile(ctx, &models.SemanticQuery{
		Intent:        models.IntentRanking,
		PrimaryMetric: "net_trade_sales",
		GroupBy:       []string{"brand_name"},
		TimeWindow:    &models.TimeWindow{Kind: models.WindowLastNDays, N: 30},
	})
	require.NoError(t, err)

	res, err := exec.Query(ctx, result.Statement.SQL, result.Statement.Args, 0)
	require.NoError(t, err)

	// T2 sales and the December row are filtered out.
	require.Equal(t, 2, res.RowCount)
	assert.Equal(t, "Aashirvaad", res.Rows[0]["brand_name"])
	assert.InDelta(t, 100.0, res.Rows[0]["net_trade_sales"], 0.001)
	assert.Equal(t, "Sunfeast", res.Rows[1]["brand_name"])
	assert.InDelta(t, 40.0, res.Rows[1]["net_trade_sales"], 0.001)
}
