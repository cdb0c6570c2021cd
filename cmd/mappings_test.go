package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/petro-etl/internal/config"
	"github.com/sells-group/petro-etl/internal/mapping"
	"github.com/sells-group/petro-etl/internal/model"
)

func writeSheet(t *testing.T, path, sheet string, rows [][]string) {
	t.Helper()
	f := xlsx.NewFile()
	s, err := f.AddSheet(sheet)
	require.NoError(t, err)
	for _, r := range rows {
		row := s.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	require.NoError(t, f.Save(path))
}

// testConfig lays out one BDC and one OMC workbook under a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	bdc := filepath.Join(root, "bdc")
	omc := filepath.Join(root, "omc")
	require.NoError(t, os.MkdirAll(bdc, 0o755))
	require.NoError(t, os.MkdirAll(omc, 0o755))

	writeSheet(t, filepath.Join(bdc, "BDC_2020.xlsx"), "FEB", [][]string{
		{"Company", "Product", "Unit", "Volume"},
		{"Alpha Oil Ltd", "Premium Gasoline", "L", "132450"},
		{"Alpha Oil Ltd", "Gas Oil", "L", "118343"},
		{"Beta Energy", "LPG", "KG", "1000"},
		{"TOTAL", "", "", "251793"},
	})
	writeSheet(t, filepath.Join(omc, "OMC_2020.xlsx"), "February", [][]string{
		{"OMC", "Product", "Volume"},
		{"Star Fuels", "PMS", "264900"},
		{"Star Fuels", "Lubricants", "50"},
	})

	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(root, "runs.db")},
		ETL: config.ETLConfig{
			Sources: []config.SourceConfig{
				{Category: "BDC", Dir: bdc, Pattern: "*.xlsx"},
				{Category: "OMC", Dir: omc, Pattern: "*.xlsx"},
			},
			MappingPath: filepath.Join(root, "mappings", "approved.xlsx"),
			ReportDir:   filepath.Join(root, "reports"),
			LitersPerKg: 1.8,
			MinCohort:   4,
			Weights:     config.QualityWeights{Completeness: 0.4, Consistency: 0.3, Validity: 0.3},
		},
		Retry: config.RetryConfig{MaxAttempts: 1},
	}
}

func TestGenerateMappings(t *testing.T) {
	c := testConfig(t)
	out := filepath.Join(t.TempDir(), "review", "proposed.xlsx")

	p, err := generateMappings(context.Background(), c, out)
	require.NoError(t, err)

	assert.Equal(t, 6, p.Records)
	assert.Equal(t, 1, p.Unmatched(), "Lubricants has no rule")
	assert.FileExists(t, out)

	byOriginal := map[string]model.MappingEntry{}
	for _, e := range p.Products {
		byOriginal[e.Original] = e
	}
	assert.Equal(t, "Gasoline", byOriginal["Premium Gasoline"].Canonical)
	assert.Equal(t, "Gasoline", byOriginal["PMS"].Canonical)
	assert.Equal(t, "Gasoil", byOriginal["Gas Oil"].Canonical)
	assert.Equal(t, model.UnitClassWeight, byOriginal["LPG"].UnitClass)

	// The written workbook reads back as a mapping table.
	table, err := mapping.ReadReview(out)
	require.NoError(t, err)
	assert.True(t, table.KnownProduct("Gasoline"))
	assert.False(t, table.KnownProduct("Lubricants"))
}

func TestGenerateMappings_SourceMissing(t *testing.T) {
	c := testConfig(t)
	c.ETL.Sources[0].Dir = filepath.Join(t.TempDir(), "nope")

	_, err := generateMappings(context.Background(), c, filepath.Join(t.TempDir(), "p.xlsx"))
	assert.Error(t, err)
}

func TestGenerateMappings_BadRulesPath(t *testing.T) {
	c := testConfig(t)
	c.ETL.ProductRulesPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := generateMappings(context.Background(), c, filepath.Join(t.TempDir(), "p.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read rules")
}

func TestFormatProposal(t *testing.T) {
	p := &mapping.Proposal{
		Products:  []model.MappingEntry{{Original: "PMS"}, {Original: "Lubes", Reason: mapping.ReasonNoRule}},
		Companies: []model.MappingEntry{{Original: "Star Fuels"}},
		Records:   12,
	}

	var buf bytes.Buffer
	formatProposal(&buf, p, "out.xlsx")

	out := buf.String()
	assert.Contains(t, out, "Scanned 12 records.")
	assert.Contains(t, out, "Products:  2 (1 without a rule)")
	assert.Contains(t, out, "Companies: 1")
	assert.Contains(t, out, "Review workbook: out.xlsx")
}
