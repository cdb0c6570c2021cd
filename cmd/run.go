package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/petro-etl/internal/config"
	"github.com/sells-group/petro-etl/internal/db"
	"github.com/sells-group/petro-etl/internal/etl"
	"github.com/sells-group/petro-etl/internal/extract"
	"github.com/sells-group/petro-etl/internal/mapping"
	"github.com/sells-group/petro-etl/internal/model"
	"github.com/sells-group/petro-etl/internal/resilience"
	"github.com/sells-group/petro-etl/internal/store"
	"github.com/sells-group/petro-etl/internal/warehouse"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline and load the warehouse",
	Long:  "Extracts, standardizes, converts and scores every configured source, then loads the star schema. Full mode rebuilds everything; selective mode reloads one category and leaves the other untouched.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		opts, err := runOptions(cmd)
		if err != nil {
			return err
		}

		mode := "run"
		if opts.DryRun {
			mode = "mappings"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var loader etl.Loader
		if !opts.DryRun {
			pool, err := db.Connect(ctx, cfg.WarehouseURL())
			if err != nil {
				return eris.Wrap(err, "run: connect warehouse")
			}
			defer pool.Close()
			loader = warehouse.NewLoader(pool, resilience.FromConfig(cfg.Retry))
		}

		rep, err := runPipeline(ctx, cfg, loader, st, opts)
		if rep != nil {
			formatReport(os.Stdout, rep)
		}
		return err
	},
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(c *cobra.Command) {
	c.Flags().String("mode", string(warehouse.ModeFull), "load mode: full or selective")
	c.Flags().String("category", "", "category to reload in selective mode (BDC or OMC)")
	c.Flags().Bool("strict", false, "abort when any label is unmapped")
	c.Flags().Bool("dry-run", false, "stop after scoring without touching the warehouse")
}

func runOptions(cmd *cobra.Command) (etl.Options, error) {
	modeFlag, _ := cmd.Flags().GetString("mode")
	catFlag, _ := cmd.Flags().GetString("category")
	strict, _ := cmd.Flags().GetBool("strict")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	mode, err := warehouse.ParseMode(modeFlag)
	if err != nil {
		return etl.Options{}, err
	}
	opts := etl.Options{Mode: mode, Strict: strict, DryRun: dryRun}
	if catFlag != "" {
		cat, err := model.ParseCategory(catFlag)
		if err != nil {
			return etl.Options{}, err
		}
		opts.Category = cat
	}
	if mode == warehouse.ModeSelective && opts.Category == "" {
		return etl.Options{}, eris.New("run: --category is required in selective mode")
	}
	if mode == warehouse.ModeFull && opts.Category != "" {
		return etl.Options{}, eris.New("run: --category only applies to selective mode")
	}
	return opts, nil
}

// runPipeline loads the approved mapping and aliases, then executes one run.
func runPipeline(ctx context.Context, c *config.Config, loader etl.Loader, st store.Store, opts etl.Options) (*etl.Report, error) {
	table, err := mapping.ReadReview(c.ETL.MappingPath)
	if err != nil {
		return nil, eris.Wrap(err, "run: read approved mapping")
	}
	aliases, err := extract.LoadAliases(c.ETL.AliasesPath)
	if err != nil {
		return nil, err
	}

	runner, err := etl.NewRunner(c, table, aliases, loader, st)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, opts)
}

func formatReport(out io.Writer, rep *etl.Report) {
	_, _ = fmt.Fprintf(out, "Run %s (%s, mapping %s)\n\n", rep.RunID, rep.Mode, truncateID(rep.MappingVersion))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tIN\tOUT\tREJECTED\tSKIPPED\tELAPSED")
	for _, s := range rep.Stages {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n", s.Stage, s.In, s.Out, s.Rejected, s.Skipped, s.Elapsed.Round(time.Millisecond))
	}
	_ = w.Flush()

	byReason := rep.RejectionsByReason()
	if len(byReason) > 0 {
		reasons := make([]string, 0, len(byReason))
		for r := range byReason {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		_, _ = fmt.Fprintln(out, "\nRejections:")
		for _, r := range reasons {
			_, _ = fmt.Fprintf(out, "  %-18s %d\n", r, byReason[r])
		}
	}
	if len(rep.Unmapped) > 0 {
		_, _ = fmt.Fprintf(out, "\nUnmapped labels: %d\n", len(rep.Unmapped))
	}
	if rep.ReportPath != "" {
		_, _ = fmt.Fprintf(out, "\nRejection report: %s\n", rep.ReportPath)
	}
}
