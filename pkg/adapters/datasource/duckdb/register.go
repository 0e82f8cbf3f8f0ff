package duckdb

import (
	"context"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "duckdb",
			DisplayName: "DuckDB",
			Dialect:     "duckdb",
		},
		Factory: func(ctx context.Context, cfg datasource.Config) (datasource.Datasource, error) {
			return NewExecutor(ctx, cfg)
		},
	})
}
