// Package warehouse owns the petro star schema: migrations, surrogate key
// planning, and transactional loads of scored records.
package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/petro-etl/internal/db"
	"github.com/sells-group/petro-etl/internal/model"
	"github.com/sells-group/petro-etl/internal/resilience"
)

// Table names.
const (
	TableProducts  = "petro.dim_products"
	TableCompanies = "petro.dim_companies"
	TablePeriods   = "petro.dim_periods"
)

// loadLockKey serializes loads against the same warehouse.
const loadLockKey = 5_551_202

// Mode selects how much of the warehouse a load replaces.
type Mode string

const (
	ModeFull      Mode = "full"      // truncate facts and dimensions, reload every category
	ModeSelective Mode = "selective" // replace one category's facts, leave the other untouched
)

// ParseMode parses "full" or "selective".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeFull, ModeSelective:
		return m, nil
	case "":
		return ModeFull, nil
	default:
		return "", eris.Errorf("warehouse: unknown load mode %q (valid: full, selective)", s)
	}
}

// FactTable returns the fact table holding a category's transactions.
func FactTable(cat model.Category) string {
	return "petro.fact_" + strings.ToLower(string(cat)) + "_transactions"
}

var factColumns = []string{
	"category", "company_id", "product_id", "period_id",
	"liters", "kilograms", "metric_tons",
	"quality_score", "is_outlier", "z_score",
	"source_file", "source_sheet", "source_row", "run_id",
}

// Request describes one load.
type Request struct {
	Mode     Mode
	Category model.Category // required for ModeSelective
	RunID    string
	Records  []model.ScoredRecord
	Catalog  ProductCatalog
}

// Categories returns the categories the request replaces.
func (r Request) Categories() ([]model.Category, error) {
	switch r.Mode {
	case ModeFull:
		return model.Categories, nil
	case ModeSelective:
		if !r.Category.Valid() {
			return nil, eris.Errorf("warehouse: selective load needs a category, got %q", r.Category)
		}
		return []model.Category{r.Category}, nil
	default:
		return nil, eris.Errorf("warehouse: unknown load mode %q", r.Mode)
	}
}

// Result reports what a committed load wrote.
type Result struct {
	Summary      model.StageSummary
	Deleted      int64
	NewProducts  int
	NewCompanies int
	NewPeriods   int
	Facts        map[model.Category]int64
	Untouched    []Snapshot
}

// Loader writes scored records into the star schema.
type Loader struct {
	pool  db.Pool
	retry resilience.RetryConfig
	log   *zap.Logger
}

// NewLoader creates a Loader. Beginning the transaction is retried on
// transient connection errors.
func NewLoader(pool db.Pool, retry resilience.RetryConfig) *Loader {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(model.StageLoad, "begin")
	}
	return &Loader{
		pool:  pool,
		retry: retry,
		log:   zap.L().With(zap.String("component", "warehouse.loader")),
	}
}

// Load runs the whole request in one transaction. Any key resolution
// failure or a change to an untouched category rolls everything back.
func (l *Loader) Load(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	cats, err := req.Categories()
	if err != nil {
		return nil, err
	}
	if req.Catalog == nil {
		return nil, eris.New("warehouse: load needs a product catalog")
	}
	untouched := otherCategories(cats)

	tx, err := resilience.DoVal(ctx, l.retry, func(ctx context.Context) (pgx.Tx, error) {
		return l.pool.Begin(ctx)
	})
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: begin load")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", loadLockKey); err != nil {
		return nil, eris.Wrap(err, "warehouse: acquire load lock")
	}

	before, err := snapshotAll(ctx, tx, untouched)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Summary: model.StageSummary{Stage: model.StageLoad, In: len(req.Records)},
		Facts:   make(map[model.Category]int64, len(cats)),
	}

	dims := NewDimensions()
	switch req.Mode {
	case ModeFull:
		if err := truncateAll(ctx, tx); err != nil {
			return nil, err
		}
	case ModeSelective:
		tag, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", db.Identifier(FactTable(req.Category)).Sanitize()))
		if err != nil {
			return nil, eris.Wrapf(err, "warehouse: clear %s", FactTable(req.Category))
		}
		res.Deleted = tag.RowsAffected()

		dims, err = readDimensions(ctx, tx, req.Category)
		if err != nil {
			return nil, err
		}
	}

	plan, err := BuildPlan(req.Records, dims, req.Catalog, cats)
	if err != nil {
		return nil, err
	}

	if err := writeDimensions(ctx, tx, plan); err != nil {
		return nil, err
	}
	res.NewProducts = len(plan.Products)
	res.NewCompanies = len(plan.Companies)
	res.NewPeriods = len(plan.Periods)

	for _, cat := range cats {
		n, err := db.CopyFrom(ctx, tx, FactTable(cat), factColumns, factRows(plan.Facts[cat], req.RunID))
		if err != nil {
			return nil, eris.Wrapf(err, "warehouse: load %s facts", cat)
		}
		res.Facts[cat] = n
		res.Summary.Out += int(n)
	}

	after, err := snapshotAll(ctx, tx, untouched)
	if err != nil {
		return nil, err
	}
	if err := CompareSnapshots(before, after); err != nil {
		l.log.Error("untouched category changed during load, rolling back",
			zap.String("mode", string(req.Mode)), zap.Error(err))
		return nil, err
	}
	res.Untouched = after

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "warehouse: commit load")
	}

	res.Summary.Elapsed = time.Since(start)
	l.log.Info("load committed",
		zap.String("mode", string(req.Mode)),
		zap.String("run_id", req.RunID),
		zap.Int64("deleted", res.Deleted),
		zap.Int("facts", res.Summary.Out),
		zap.Int("new_products", res.NewProducts),
		zap.Int("new_companies", res.NewCompanies),
		zap.Int("new_periods", res.NewPeriods),
		zap.Duration("elapsed", res.Summary.Elapsed),
	)
	return res, nil
}

func otherCategories(cats []model.Category) []model.Category {
	in := make(map[model.Category]bool, len(cats))
	for _, c := range cats {
		in[c] = true
	}
	var out []model.Category
	for _, c := range model.Categories {
		if !in[c] {
			out = append(out, c)
		}
	}
	return out
}

func snapshotAll(ctx context.Context, conn db.Conn, cats []model.Category) ([]Snapshot, error) {
	var out []Snapshot
	for _, cat := range cats {
		s, err := TakeSnapshot(ctx, conn, cat)
		if err != nil {
			return nil, err
		}
		out = append(out, s...)
	}
	return out, nil
}

func truncateAll(ctx context.Context, conn db.Conn) error {
	tables := make([]string, 0, len(model.Categories)+3)
	for _, cat := range model.Categories {
		tables = append(tables, db.Identifier(FactTable(cat)).Sanitize())
	}
	for _, t := range []string{TableCompanies, TableProducts, TablePeriods} {
		tables = append(tables, db.Identifier(t).Sanitize())
	}
	if _, err := conn.Exec(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" RESTART IDENTITY"); err != nil {
		return eris.Wrap(err, "warehouse: truncate")
	}
	return nil
}

func readDimensions(ctx context.Context, conn db.Conn, cat model.Category) (Dimensions, error) {
	dims := NewDimensions()

	rows, err := conn.Query(ctx, "SELECT product_id, product_name FROM petro.dim_products")
	if err != nil {
		return dims, eris.Wrap(err, "warehouse: read products")
	}
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return dims, eris.Wrap(err, "warehouse: scan product")
		}
		dims.Products[name] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return dims, eris.Wrap(err, "warehouse: read products")
	}

	rows, err = conn.Query(ctx, "SELECT company_id, company_name FROM petro.dim_companies WHERE category = $1", string(cat))
	if err != nil {
		return dims, eris.Wrap(err, "warehouse: read companies")
	}
	companies := make(map[string]int)
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return dims, eris.Wrap(err, "warehouse: scan company")
		}
		companies[name] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return dims, eris.Wrap(err, "warehouse: read companies")
	}
	dims.Companies[cat] = companies

	rows, err = conn.Query(ctx, "SELECT period_id FROM petro.dim_periods")
	if err != nil {
		return dims, eris.Wrap(err, "warehouse: read periods")
	}
	defer rows.Close()
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return dims, eris.Wrap(err, "warehouse: scan period")
		}
		dims.Periods[id] = true
	}
	return dims, eris.Wrap(rows.Err(), "warehouse: read periods")
}

func writeDimensions(ctx context.Context, conn db.Conn, plan *Plan) error {
	if len(plan.Products) > 0 {
		rows := make([][]any, 0, len(plan.Products))
		for _, p := range plan.Products {
			var factor any
			if p.Factor > 0 {
				factor = p.Factor
			}
			rows = append(rows, []any{p.ID, p.Name, p.Family, string(p.UnitClass), factor})
		}
		if _, err := db.BulkUpsert(ctx, conn, db.UpsertConfig{
			Table:        TableProducts,
			Columns:      []string{"product_id", "product_name", "product_category", "unit_class", "conversion_factor"},
			ConflictKeys: []string{"product_id"},
			DoNothing:    true,
		}, rows); err != nil {
			return eris.Wrap(err, "warehouse: insert products")
		}
	}

	if len(plan.Companies) > 0 {
		rows := make([][]any, 0, len(plan.Companies))
		for _, c := range plan.Companies {
			rows = append(rows, []any{string(c.Category), c.ID, c.Name})
		}
		if _, err := db.BulkUpsert(ctx, conn, db.UpsertConfig{
			Table:        TableCompanies,
			Columns:      []string{"category", "company_id", "company_name"},
			ConflictKeys: []string{"category", "company_id"},
			DoNothing:    true,
		}, rows); err != nil {
			return eris.Wrap(err, "warehouse: insert companies")
		}
	}

	if len(plan.Periods) > 0 {
		rows := make([][]any, 0, len(plan.Periods))
		for _, p := range plan.Periods {
			rows = append(rows, []any{p.ID, p.Year, p.Month, p.Quarter, p.Start})
		}
		if _, err := db.BulkUpsert(ctx, conn, db.UpsertConfig{
			Table:        TablePeriods,
			Columns:      []string{"period_id", "year", "month", "quarter", "period_start"},
			ConflictKeys: []string{"period_id"},
			DoNothing:    true,
		}, rows); err != nil {
			return eris.Wrap(err, "warehouse: insert periods")
		}
	}
	return nil
}

// factRows orders facts by provenance so COPY input is reproducible.
func factRows(facts []FactRow, runID string) [][]any {
	sorted := append([]FactRow(nil), facts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Record, sorted[j].Record
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		if a.Sheet != b.Sheet {
			return a.Sheet < b.Sheet
		}
		return a.Row < b.Row
	})

	rows := make([][]any, 0, len(sorted))
	for _, f := range sorted {
		r := f.Record
		rows = append(rows, []any{
			string(f.Category), f.CompanyID, f.ProductID, f.PeriodID,
			r.Liters, r.Kilograms, r.MetricTons,
			r.Score, r.Outlier, r.ZScore,
			r.SourceFile, r.Sheet, r.Row, runID,
		})
	}
	return rows
}
