package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/anonymizer"
	"github.com/ekaya-inc/ekaya-insights/pkg/catalog"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect tenant catalogs",
	}
	cmd.AddCommand(newCatalogValidateCmd(), newCatalogAnonymizeCmd())
	return cmd
}

// catalogReport is the validation outcome of one catalog file.
type catalogReport struct {
	Tenant     string   `json:"tenant"`
	Path       string   `json:"path"`
	Valid      bool     `json:"valid"`
	Metrics    int      `json:"metrics,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

func newCatalogValidateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "validate [file.yaml...]",
		Short: "Validate catalog files offline",
		Long:  "Loads each catalog and reports every problem found. With no arguments, every *.yaml in --dir is checked. The tenant id is the file name.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				var err error
				if paths, err = filepath.Glob(filepath.Join(dir, "*.yaml")); err != nil {
					return err
				}
				if len(paths) == 0 {
					return fmt.Errorf("no catalogs found in %s", dir)
				}
			}

			reports := make([]catalogReport, 0, len(paths))
			failed := 0
			for _, path := range paths {
				report := validateCatalogFile(path)
				if !report.Valid {
					failed++
				}
				reports = append(reports, report)
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				if err := printJSON(out, reports); err != nil {
					return err
				}
			} else {
				for _, r := range reports {
					if r.Valid {
						_, _ = fmt.Fprintf(out, "ok    %s (%d metrics, %d dimensions)\n", r.Tenant, r.Metrics, r.Dimensions)
						continue
					}
					_, _ = fmt.Fprintf(out, "FAIL  %s\n", r.Tenant)
					for _, e := range r.Errors {
						_, _ = fmt.Fprintf(out, "  - %s\n", e)
					}
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d catalogs invalid", failed, len(reports))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "catalogs", "Catalog directory")
	return cmd
}

func validateCatalogFile(path string) catalogReport {
	tenant := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	report := catalogReport{Tenant: tenant, Path: path}

	cat, err := catalog.LoadFile(tenant, path)
	if err != nil {
		report.Errors = strings.Split(err.Error(), "\n")
		return report
	}

	report.Valid = true
	report.Metrics = len(cat.ListMetrics())
	report.Dimensions = len(cat.ListDimensions())
	return report
}

func newCatalogAnonymizeCmd() *cobra.Command {
	var (
		dir      string
		strategy string
		salt     string
	)

	cmd := &cobra.Command{
		Use:   "anonymize <tenant>",
		Short: "Print the catalog view an intent extractor receives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := anonymizer.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			mapper, err := anonymizer.NewMapper(st, salt)
			if err != nil {
				return err
			}

			cat, err := catalog.NewRegistry(dir, zap.NewNop()).Get(contextOrBackground(cmd), args[0])
			if err != nil {
				return err
			}
			summary, mapping, err := mapper.AnonymizeCatalog(cat)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return printJSON(out, summary)
			}
			for _, m := range summary.Metrics {
				id, _ := mapping.RealMetric(m.Token)
				_, _ = fmt.Fprintf(out, "metric     %-28s %s\n", m.Token, id)
			}
			for _, d := range summary.Dimensions {
				id, _ := mapping.RealDimension(d.Token)
				_, _ = fmt.Fprintf(out, "dimension  %-28s %s\n", d.Token, id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "catalogs", "Catalog directory")
	cmd.Flags().StringVar(&strategy, "strategy", "categorical", "Anonymization strategy (sequential, categorical, hash, none)")
	cmd.Flags().StringVar(&salt, "salt", "", "Salt for the hash strategy")
	return cmd
}
