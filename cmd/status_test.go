package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/petro-etl/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := now.Add(95 * time.Second)
	runs := []model.Run{
		{
			ID:             "abc12345-6789-0000-0000-000000000000",
			Mode:           "full",
			Categories:     []model.Category{model.CategoryBDC, model.CategoryOMC},
			MappingVersion: "9f86d081884c7d65",
			Status:         model.RunStatusComplete,
			StartedAt:      now,
			CompletedAt:    &done,
		},
		{
			ID:         "def12345-6789-0000-0000-000000000000",
			Mode:       "selective",
			Categories: []model.Category{model.CategoryOMC},
			Status:     model.RunStatusRunning,
			StartedAt:  now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "CATEGORIES")
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-6789")
	assert.Contains(t, out, "BDC,OMC")
	assert.Contains(t, out, "9f86d081")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "2025-06-15 10:30")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "selective")
	assert.Contains(t, out, "running")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}
