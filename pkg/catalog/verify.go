package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// TableLister lists the tables that exist in a database schema.
type TableLister interface {
	ListTables(ctx context.Context, schema string) ([]string, error)
}

// VerifyTables checks that every table the catalog declares exists in the
// tenant's schema. It is an optional start-up check against a live database.
func VerifyTables(ctx context.Context, cat *Catalog, lister TableLister) error {
	existing, err := lister.ListTables(ctx, cat.Schema())
	if err != nil {
		return fmt.Errorf("list tables in %s: %w", cat.Schema(), err)
	}

	var missing []string
	for _, name := range cat.TableNames() {
		if !slices.Contains(existing, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &LoadError{
			Tenant: cat.TenantID(),
			Entry:  "tables",
			Reason: fmt.Sprintf("missing in schema %s: %s", cat.Schema(), strings.Join(missing, ", ")),
		}
	}
	return nil
}
