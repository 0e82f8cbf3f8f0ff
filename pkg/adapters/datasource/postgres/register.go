package postgres

import (
	"context"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Dialect:     "postgres",
		},
		Factory: func(ctx context.Context, cfg datasource.Config) (datasource.Datasource, error) {
			return NewExecutor(ctx, cfg)
		},
	})
}
