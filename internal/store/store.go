// Package store persists pipeline run history.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/petro-etl/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store records runs and their per-stage summaries.
type Store interface {
	CreateRun(ctx context.Context, mode string, categories []model.Category, mappingVersion string) (*model.Run, error)
	RecordStage(ctx context.Context, runID string, stage model.StageSummary) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func joinCategories(cats []model.Category) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func splitCategories(s string) []model.Category {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]model.Category, 0, len(parts))
	for _, p := range parts {
		out = append(out, model.Category(p))
	}
	return out
}
