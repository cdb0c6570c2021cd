// Package etl chains the pipeline stages into one run and records its history.
package etl

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/petro-etl/internal/config"
	"github.com/sells-group/petro-etl/internal/convert"
	"github.com/sells-group/petro-etl/internal/extract"
	"github.com/sells-group/petro-etl/internal/mapping"
	"github.com/sells-group/petro-etl/internal/model"
	"github.com/sells-group/petro-etl/internal/quality"
	"github.com/sells-group/petro-etl/internal/resilience"
	"github.com/sells-group/petro-etl/internal/standardize"
	"github.com/sells-group/petro-etl/internal/store"
	"github.com/sells-group/petro-etl/internal/warehouse"
)

// Loader writes scored records to the warehouse. *warehouse.Loader satisfies it.
type Loader interface {
	Load(ctx context.Context, req warehouse.Request) (*warehouse.Result, error)
}

// Options select what one run does.
type Options struct {
	Mode     warehouse.Mode
	Category model.Category // selective mode only
	Strict   bool
	DryRun   bool // stop after scoring
}

// Report is the outcome of one run.
type Report struct {
	RunID          string                            `json:"run_id"`
	Mode           warehouse.Mode                    `json:"mode"`
	Categories     []model.Category                  `json:"categories"`
	MappingVersion string                            `json:"mapping_version"`
	Stages         []model.StageSummary              `json:"stages"`
	Extract        extract.Summary                   `json:"extract"`
	Rejections     []model.Rejection                 `json:"-"`
	Unmapped       []string                          `json:"unmapped,omitempty"`
	Bounds         map[quality.Cohort]quality.Bounds `json:"-"`
	Records        []model.ScoredRecord              `json:"-"`
	Load           *warehouse.Result                 `json:"load,omitempty"`
	ReportPath     string                            `json:"report_path,omitempty"`
}

// RejectionsByReason counts rejections per reason.
func (r *Report) RejectionsByReason() map[string]int {
	out := make(map[string]int)
	for _, rej := range r.Rejections {
		out[rej.Reason]++
	}
	return out
}

// Runner executes extract, standardize, convert, score and load.
type Runner struct {
	sources []extract.Source
	aliases *extract.AliasTable
	table   *mapping.Table
	etl     config.ETLConfig
	retry   resilience.RetryConfig
	loader  Loader
	store   store.Store
	log     *zap.Logger
}

// NewRunner builds a runner. st may be nil to skip run history, and loader
// may be nil when every run is a dry run.
func NewRunner(cfg *config.Config, table *mapping.Table, aliases *extract.AliasTable, loader Loader, st store.Store) (*Runner, error) {
	if table == nil {
		return nil, eris.New("etl: mapping table is required")
	}
	sources, err := extract.SourcesFromConfig(cfg.ETL.Sources)
	if err != nil {
		return nil, err
	}
	if err := quality.ValidateWeights(cfg.ETL.Weights); err != nil {
		return nil, err
	}
	return &Runner{
		sources: sources,
		aliases: aliases,
		table:   table,
		etl:     cfg.ETL,
		retry:   resilience.FromConfig(cfg.Retry),
		loader:  loader,
		store:   st,
		log:     zap.L().With(zap.String("component", "etl")),
	}, nil
}

// Run executes one pass. A failed run still returns the report gathered so
// far, and the run history records the failure.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	req := warehouse.Request{Mode: opts.Mode, Category: opts.Category}
	cats, err := req.Categories()
	if err != nil {
		return nil, err
	}
	if !opts.DryRun && r.loader == nil {
		return nil, eris.New("etl: no warehouse loader configured")
	}

	rep := &Report{
		Mode:           opts.Mode,
		Categories:     cats,
		MappingVersion: r.table.Version(),
	}

	if r.store != nil {
		run, err := r.store.CreateRun(ctx, string(opts.Mode), cats, rep.MappingVersion)
		if err != nil {
			return nil, eris.Wrap(err, "etl: create run")
		}
		rep.RunID = run.ID
	} else {
		rep.RunID = uuid.New().String()
	}

	log := r.log.With(zap.String("run_id", rep.RunID), zap.String("mode", string(opts.Mode)))
	log.Info("run starting", zap.Any("categories", cats), zap.String("mapping_version", short(rep.MappingVersion)))

	runErr := r.run(ctx, opts, cats, rep)

	if r.etl.ReportDir != "" && (len(rep.Rejections) > 0 || runErr == nil) {
		path := ReportPath(r.etl.ReportDir, rep.RunID)
		if err := WriteRejectionReport(path, rep); err != nil {
			log.Warn("failed to write rejection report", zap.Error(err))
		} else {
			rep.ReportPath = path
		}
	}

	r.finish(ctx, rep, runErr)
	if runErr != nil {
		log.Error("run failed", zap.Error(runErr))
		return rep, runErr
	}
	log.Info("run complete", zap.Int("rejections", len(rep.Rejections)), zap.String("report", rep.ReportPath))
	return rep, nil
}

func (r *Runner) run(ctx context.Context, opts Options, cats []model.Category, rep *Report) error {
	mode := standardize.Lenient
	if opts.Strict || r.etl.StrictMapping {
		mode = standardize.Strict
	}

	// Extract and standardize overlap: the extractor streams while the
	// standardizer consumes.
	extractStart := time.Now()
	ex := extract.New(extract.FilterSources(r.sources, cats...), r.aliases, r.retry)
	std := standardize.New(r.table, mode)

	var stdRes *standardize.Result
	g, gCtx := errgroup.WithContext(ctx)
	recCh, errCh := ex.Stream(gCtx)
	g.Go(func() error {
		res, err := std.Run(gCtx, recCh)
		stdRes = res
		return err
	})
	g.Go(func() error {
		for err := range errCh {
			if err != nil {
				return err
			}
		}
		return nil
	})
	pairErr := g.Wait()

	exSum := ex.Summary()
	rep.Extract = exSum
	rep.Stages = append(rep.Stages, model.StageSummary{
		Stage:   model.StageExtract,
		Out:     exSum.Rows,
		Skipped: exSum.FilesSkipped + exSum.SheetsSkipped,
		Elapsed: time.Since(extractStart),
	})
	if stdRes != nil {
		rep.Stages = append(rep.Stages, stdRes.Summary)
		rep.Rejections = append(rep.Rejections, stdRes.Rejections...)
		rep.Unmapped = stdRes.Unmapped
	}
	if pairErr != nil {
		return pairErr
	}

	conv := convert.FromTable(r.table, r.etl.LitersPerKg).ConvertAll(stdRes.Records)
	rep.Stages = append(rep.Stages, conv.Summary)
	rep.Rejections = append(rep.Rejections, conv.Rejections...)

	scored := quality.NewScorer(r.etl.Weights, r.etl.MinCohort, r.table).ScoreAll(conv.Records)
	rep.Stages = append(rep.Stages, scored.Summary)
	rep.Bounds = scored.Bounds
	rep.Records = scored.Records

	if opts.DryRun {
		return nil
	}

	res, err := r.loader.Load(ctx, warehouse.Request{
		Mode:     opts.Mode,
		Category: opts.Category,
		RunID:    rep.RunID,
		Records:  scored.Records,
		Catalog:  r.table,
	})
	if err != nil {
		rep.Stages = append(rep.Stages, model.StageSummary{Stage: model.StageLoad, In: len(scored.Records)})
		return err
	}
	rep.Load = res
	rep.Stages = append(rep.Stages, res.Summary)
	return nil
}

func (r *Runner) finish(ctx context.Context, rep *Report, runErr error) {
	if r.store == nil {
		return
	}
	for _, st := range rep.Stages {
		if err := r.store.RecordStage(ctx, rep.RunID, st); err != nil {
			r.log.Warn("failed to record stage", zap.String("stage", st.Stage), zap.Error(err))
		}
	}
	status, msg := model.RunStatusComplete, ""
	if runErr != nil {
		status, msg = model.RunStatusFailed, runErr.Error()
	}
	if err := r.store.CompleteRun(ctx, rep.RunID, status, msg); err != nil {
		r.log.Warn("failed to complete run", zap.Error(err))
	}
}

func short(v string) string {
	if len(v) > 12 {
		return v[:12]
	}
	return v
}
