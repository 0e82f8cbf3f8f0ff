package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/catalog"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/pipeline"
	"github.com/ekaya-inc/ekaya-insights/pkg/querybuilder"
	"github.com/ekaya-inc/ekaya-insights/pkg/render"
	"github.com/ekaya-inc/ekaya-insights/pkg/validator"
)

// compileOutput is the json form of a compiled statement.
type compileOutput struct {
	Tenant  string   `json:"tenant"`
	Role    string   `json:"role"`
	Dialect string   `json:"dialect"`
	SQL     string   `json:"sql"`
	Args    []any    `json:"args"`
	Tables  []string `json:"tables"`
}

func newCompileCmd() *cobra.Command {
	var (
		dir     string
		tenant  string
		role    string
		user    string
		scopes  []string
		dialect string
		inline  bool
		now     string
	)

	cmd := &cobra.Command{
		Use:   "compile <query.json|->",
		Short: "Compile a semantic query to SQL without a server",
		Long: `Reads a semantic query document with real catalog identifiers and prints
the SQL the pipeline produces for the given caller. Use - to read stdin.`,
		Example: `  ekaya-insights compile --tenant itc --role territory_manager --scope territory=T1 query.json
  echo '{"intent_kind":"aggregate","primary_metric":"net_trade_sales"}' | ekaya-insights compile --tenant itc -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenant == "" {
				return fmt.Errorf("--tenant is required")
			}
			d, err := render.Lookup(dialect)
			if err != nil {
				return err
			}
			scope, err := parseScopes(scopes)
			if err != nil {
				return err
			}
			clock := time.Now
			if now != "" {
				t, err := time.Parse(time.DateOnly, now)
				if err != nil {
					return fmt.Errorf("invalid --now %q: want YYYY-MM-DD", now)
				}
				clock = func() time.Time { return t }
			}

			data, err := readQuery(cmd, args[0])
			if err != nil {
				return err
			}
			query, err := models.ParseSemanticQuery(data)
			if err != nil {
				return err
			}

			p, err := pipeline.New(pipeline.Deps{
				Catalogs: catalog.NewRegistry(dir, zap.NewNop()),
				Logger:   zap.NewNop(),
				Options: pipeline.Options{
					Dialect:             d,
					Parameterize:        !inline,
					DefaultRankingLimit: querybuilder.DefaultRankingLimit,
					MaxLimit:            validator.DefaultMaxLimit,
					Clock:               clock,
				},
			})
			if err != nil {
				return err
			}

			ctx := contextOrBackground(cmd)
			session, err := p.NewSession(ctx, &models.Principal{
				TenantID: tenant,
				UserID:   user,
				Role:     role,
				Scope:    scope,
			})
			if err != nil {
				return err
			}
			result, err := session.Compile(ctx, query)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				bindArgs := result.Statement.Args
				if bindArgs == nil {
					bindArgs = []any{}
				}
				return printJSON(out, compileOutput{
					Tenant:  tenant,
					Role:    role,
					Dialect: result.Statement.Dialect,
					SQL:     result.Statement.SQL,
					Args:    bindArgs,
					Tables:  result.Tables,
				})
			}

			_, _ = fmt.Fprintln(out, result.Statement.SQL)
			for i, a := range result.Statement.Args {
				_, _ = fmt.Fprintf(out, "-- arg %d: %v\n", i+1, a)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "catalogs", "Catalog directory")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant id (catalog file name)")
	cmd.Flags().StringVar(&role, "role", "admin", "Caller role")
	cmd.Flags().StringVar(&user, "user", "cli", "Caller user id")
	cmd.Flags().StringArrayVar(&scopes, "scope", nil, "Row-level scope as dimension=value[,value]; repeatable")
	cmd.Flags().StringVar(&dialect, "dialect", render.DialectPostgres, "SQL dialect (postgres, sqlserver, duckdb)")
	cmd.Flags().BoolVar(&inline, "inline", false, "Write filter values inline instead of binding them")
	cmd.Flags().StringVar(&now, "now", "", "Reference date for relative time windows (YYYY-MM-DD)")
	return cmd
}

func readQuery(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// parseScopes turns dim=a,b flags into a principal scope. Repeating a
// dimension appends values.
func parseScopes(flags []string) (map[string][]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	scope := make(map[string][]string, len(flags))
	for _, f := range flags {
		dim, values, ok := strings.Cut(f, "=")
		dim = strings.TrimSpace(dim)
		if !ok || dim == "" || values == "" {
			return nil, fmt.Errorf("invalid --scope %q: want dimension=value[,value]", f)
		}
		for _, v := range strings.Split(values, ",") {
			if v = strings.TrimSpace(v); v != "" {
				scope[dim] = append(scope[dim], v)
			}
		}
	}
	return scope, nil
}
