package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/petro-etl/internal/config"
	"github.com/sells-group/petro-etl/internal/extract"
	"github.com/sells-group/petro-etl/internal/mapping"
	"github.com/sells-group/petro-etl/internal/resilience"
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage label mappings",
}

var mappingsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Propose mappings for every label in the sources",
	Long:  "Scans all configured sources and writes a review workbook of proposed product, company and removal mappings. Approve rows and save the workbook as etl.mapping_path before running the pipeline.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("mappings"); err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		p, err := generateMappings(cmd.Context(), cfg, out)
		if err != nil {
			return err
		}

		formatProposal(os.Stdout, p, out)
		return nil
	},
}

func init() {
	mappingsGenerateCmd.Flags().String("out", "mappings/proposed.xlsx", "path of the review workbook to write")
	mappingsCmd.AddCommand(mappingsGenerateCmd)
	rootCmd.AddCommand(mappingsCmd)
}

// generateMappings streams every source through the mapping generator and
// writes the proposal to out.
func generateMappings(ctx context.Context, c *config.Config, out string) (*mapping.Proposal, error) {
	sources, err := extract.SourcesFromConfig(c.ETL.Sources)
	if err != nil {
		return nil, err
	}
	aliases, err := extract.LoadAliases(c.ETL.AliasesPath)
	if err != nil {
		return nil, err
	}
	rules, err := mapping.LoadRules(c.ETL.ProductRulesPath)
	if err != nil {
		return nil, err
	}

	ex := extract.New(sources, aliases, resilience.FromConfig(c.Retry))
	gen := mapping.NewGenerator(rules)

	recCh, errCh := ex.Stream(ctx)
	if err := gen.Consume(ctx, recCh, errCh); err != nil {
		return nil, eris.Wrap(err, "mappings generate")
	}

	p := gen.Propose()
	if err := mapping.WriteReview(out, p); err != nil {
		return nil, eris.Wrap(err, "mappings generate: write review")
	}

	zap.L().Info("mapping proposal written",
		zap.String("path", out),
		zap.Int("records", p.Records),
		zap.Int("products", len(p.Products)),
		zap.Int("companies", len(p.Companies)),
		zap.Int("removals", len(p.Removals)),
		zap.Int("unmatched", p.Unmatched()),
	)
	return p, nil
}

func formatProposal(w io.Writer, p *mapping.Proposal, path string) {
	_, _ = fmt.Fprintf(w, "Scanned %d records.\n", p.Records)
	_, _ = fmt.Fprintf(w, "Products:  %d (%d without a rule)\n", len(p.Products), p.Unmatched())
	_, _ = fmt.Fprintf(w, "Companies: %d\n", len(p.Companies))
	_, _ = fmt.Fprintf(w, "Removals:  %d\n", len(p.Removals))
	_, _ = fmt.Fprintf(w, "Review workbook: %s\n", path)
}
