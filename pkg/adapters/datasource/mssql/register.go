package mssql

import (
	"context"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Dialect:     "sqlserver",
		},
		Factory: func(ctx context.Context, cfg datasource.Config) (datasource.Datasource, error) {
			return NewExecutor(ctx, cfg)
		},
	})
}
