package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/petro-etl/internal/db"
	"github.com/sells-group/petro-etl/internal/model"
	"github.com/sells-group/petro-etl/internal/warehouse"
)

// PostgresStore implements Store on the petro schema. The runs and
// run_stages tables ship with the warehouse migrations.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to dsn and returns a store that owns the pool.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close does not close it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool so the warehouse can share it.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(warehouse.Migrate(ctx, s.pool), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, mode string, categories []model.Category, mappingVersion string) (*model.Run, error) {
	run := &model.Run{
		ID:             uuid.New().String(),
		Mode:           mode,
		Categories:     categories,
		MappingVersion: mappingVersion,
		Status:         model.RunStatusRunning,
		StartedAt:      time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO petro.runs (id, mode, categories, mapping_version, status, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Mode, joinCategories(categories), run.MappingVersion, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) RecordStage(ctx context.Context, runID string, st model.StageSummary) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO petro.run_stages (run_id, seq, stage, records_in, records_out, rejected, skipped, elapsed_ms)
		 SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5, $6, $7 FROM petro.run_stages WHERE run_id = $1`,
		runID, st.Stage, st.In, st.Out, st.Rejected, st.Skipped, st.Elapsed.Milliseconds(),
	)
	return eris.Wrapf(err, "postgres: record stage %s for run %s", st.Stage, runID)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE petro.runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, mode, categories, mapping_version, status, error, started_at, completed_at FROM petro.runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT stage, records_in, records_out, rejected, skipped, elapsed_ms FROM petro.run_stages WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list stages for run %s", runID)
	}
	defer rows.Close()

	for rows.Next() {
		var st model.StageSummary
		var elapsedMs int64
		if err := rows.Scan(&st.Stage, &st.In, &st.Out, &st.Rejected, &st.Skipped, &elapsedMs); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage")
		}
		st.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		r.Stages = append(r.Stages, st)
	}
	return r, eris.Wrap(rows.Err(), "postgres: list stages iterate")
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, mode, categories, mapping_version, status, error, started_at, completed_at FROM petro.runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status, categories string
	var completed *time.Time

	if err := row.Scan(&r.ID, &r.Mode, &categories, &r.MappingVersion, &status, &r.Error, &r.StartedAt, &completed); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.Categories = splitCategories(categories)
	r.CompletedAt = completed
	return &r, nil
}
