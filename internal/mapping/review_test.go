package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/petro-etl/internal/model"
	"github.com/sells-group/petro-etl/internal/workbook"
)

func TestWriteReview_Sheets(t *testing.T) {
	g := NewGenerator(nil)
	for _, r := range sampleRecords() {
		g.Add(r)
	}
	path := filepath.Join(t.TempDir(), "review", "proposed.xlsx")
	require.NoError(t, WriteReview(path, g.Propose()))

	sheets, err := workbook.Open(path)
	require.NoError(t, err)
	var names []string
	for _, s := range sheets {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{SheetProducts, SheetCompanies, SheetRemovals, SheetSummary}, names)
	assert.Equal(t, productHeader, sheets[0].Rows[0])

	summary, ok := workbook.Find(sheets, SheetSummary)
	require.True(t, ok)
	kv := map[string]string{}
	for _, row := range summary.Rows[1:] {
		kv[row[0]] = row[1]
	}
	assert.Equal(t, "8", kv["records"])
	assert.Equal(t, "1", kv["unmatched_products"])
}

func TestReviewRoundTrip(t *testing.T) {
	g := NewGenerator(nil)
	for _, r := range sampleRecords() {
		g.Add(r)
	}
	path := filepath.Join(t.TempDir(), "proposed.xlsx")
	require.NoError(t, WriteReview(path, g.Propose()))

	tbl, err := ReadReview(path)
	require.NoError(t, err)
	assert.Len(t, tbl.Version(), 64)

	e, res := tbl.ResolveProduct("PREMIUM GASOLINE")
	require.Equal(t, Mapped, res)
	assert.Equal(t, "Gasoline", e.Canonical)
	assert.Equal(t, "Gasoline", e.Category)
	assert.InDelta(t, 1324.5, e.ConversionFactor, 1e-9)

	_, res = tbl.ResolveProduct("Lubricants")
	assert.Equal(t, Unmapped, res, "undecided rows stay unmapped")

	_, res = tbl.ResolveProduct("Sub-Total")
	assert.Equal(t, Removed, res)

	e, res = tbl.ResolveCompany(model.CategoryBDC, "Alpha Oil Co. Ltd.")
	require.Equal(t, Mapped, res)
	assert.Equal(t, "Alpha Oil Ltd", e.Canonical)

	_, res = tbl.ResolveCompany(model.CategoryBDC, "Total")
	assert.Equal(t, Removed, res)

	lpg, ok := tbl.Product("LPG")
	require.True(t, ok)
	assert.Equal(t, model.UnitClassWeight, lpg.UnitClass)
}

func TestReadReview_VersionTracksBytes(t *testing.T) {
	dir := t.TempDir()
	write := func(name, canonical string) string {
		w := workbook.NewWriter()
		p, err := w.AddSheet(SheetProducts, productHeader...)
		require.NoError(t, err)
		p.Append("PMS", canonical, "Gasoline", "volume", 1324.5, "yes", 3, "")
		_, err = w.AddSheet(SheetCompanies, companyHeader...)
		require.NoError(t, err)
		path := filepath.Join(dir, name)
		require.NoError(t, w.Save(path))
		return path
	}

	a, err := ReadReview(write("a.xlsx", "Gasoline"))
	require.NoError(t, err)
	again, err := ReadReview(filepath.Join(dir, "a.xlsx"))
	require.NoError(t, err)
	b, err := ReadReview(write("b.xlsx", "Motor Gasoline"))
	require.NoError(t, err)

	assert.Equal(t, a.Version(), again.Version())
	assert.NotEqual(t, a.Version(), b.Version())
}

func TestReadReview_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadReview(filepath.Join(dir, "missing.xlsx"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.xlsx")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))
	_, err = ReadReview(bad)
	require.Error(t, err)

	w := workbook.NewWriter()
	_, err = w.AddSheet(SheetCompanies, companyHeader...)
	require.NoError(t, err)
	noProducts := filepath.Join(dir, "noproducts.xlsx")
	require.NoError(t, w.Save(noProducts))
	_, err = ReadReview(noProducts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no "products" sheet`)

	w = workbook.NewWriter()
	p, err := w.AddSheet(SheetProducts, productHeader...)
	require.NoError(t, err)
	p.Append("PMS", "Gasoline", "Gasoline", "volume", "abc", "yes", 1, "")
	p.Append("DPK", "Kerosene", "Kerosene", "volume", 1240.6, "maybe", 1, "")
	c, err := w.AddSheet(SheetCompanies, companyHeader...)
	require.NoError(t, err)
	c.Append("BDC", "Alpha", "Alpha", "perhaps", 1, "")
	r, err := w.AddSheet(SheetRemovals, removalHeader...)
	require.NoError(t, err)
	r.Append("depot", "", "Tema", 1, "")
	invalid := filepath.Join(dir, "invalid.xlsx")
	require.NoError(t, w.Save(invalid))

	_, err = ReadReview(invalid)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `products row 2: conversion_factor "abc" is not a number`)
	assert.Contains(t, msg, `products row 3: include must be yes or no, got "maybe"`)
	assert.Contains(t, msg, `companies row 2: include must be yes or no`)
	assert.Contains(t, msg, "removals row 2: entity must be product or company")
}
