package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Company", "company"},
		{"  Volume (Ltrs.) ", "volume ltrs"},
		{"PRODUCT_NAME", "product name"},
		{"Qty/KG", "qty kg"},
		{"", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeHeader(tt.in), tt.in)
	}
}

func TestDefaultAliases_Resolve(t *testing.T) {
	a := DefaultAliases()
	cols := a.Resolve(2022, []string{"No.", "BDC Name", "Product Type", "Volume (Litres)"})

	require.True(t, cols.Complete())
	assert.Equal(t, 1, cols.Index[FieldCompany])
	assert.Equal(t, 2, cols.Index[FieldProduct])
	assert.Equal(t, 3, cols.Index[FieldVolume])
	assert.Equal(t, "L", cols.ImpliedUnit)
	_, hasUnit := cols.Index[FieldUnit]
	assert.False(t, hasUnit)
}

func TestResolve_YearSpecificAlias(t *testing.T) {
	a := DefaultAliases()
	header := []string{"Company", "Product", "Liftings"}

	assert.True(t, a.Resolve(2019, header).Complete())
	assert.False(t, a.Resolve(2023, header).Complete(), "liftings is only an alias for 2019-2020")
}

func TestResolve_LeftmostWins(t *testing.T) {
	a := DefaultAliases()
	cols := a.Resolve(2022, []string{"Company", "OMC", "Product", "Quantity", "Volume"})
	assert.Equal(t, 0, cols.Index[FieldCompany])
	assert.Equal(t, 3, cols.Index[FieldVolume])
}

func TestDetectHeader(t *testing.T) {
	a := DefaultAliases()
	rows := [][]string{
		{"NATIONAL PETROLEUM AUTHORITY"},
		{"BDC LIFTINGS FOR JANUARY"},
		{},
		{"Company", "Product", "Unit", "Volume"},
		{"Alpha", "Gasoline", "L", "100"},
	}

	idx, cols, ok := a.DetectHeader(2022, rows)
	require.True(t, ok)
	assert.Equal(t, 3, idx)
	assert.Equal(t, 2, cols.Index[FieldUnit])
}

func TestDetectHeader_BeyondScanWindow(t *testing.T) {
	a := DefaultAliases()
	rows := make([][]string, 12)
	rows[11] = []string{"Company", "Product", "Volume"}

	_, _, ok := a.DetectHeader(2022, rows)
	assert.False(t, ok)
}

func TestColumnsGet(t *testing.T) {
	cols := Columns{Index: map[Field]int{FieldCompany: 0, FieldVolume: 5}}
	row := []string{" Alpha ", "x"}
	assert.Equal(t, "Alpha", cols.Get(row, FieldCompany))
	assert.Equal(t, "", cols.Get(row, FieldVolume))
	assert.Equal(t, "", cols.Get(row, FieldProduct))
}

func TestLoadAliases_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	data := `
default:
  company: [firm]
  product: [item]
  volume: [amount tonnes]
  units:
    amount tonnes: mt
years:
  2018:
    company: [dealer]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	a, err := LoadAliases(path)
	require.NoError(t, err)

	cols := a.Resolve(2021, []string{"Firm", "Item", "Amount (Tonnes)"})
	require.True(t, cols.Complete())
	assert.Equal(t, "MT", cols.ImpliedUnit)

	assert.True(t, a.Resolve(2018, []string{"Dealer", "Item", "Amount Tonnes"}).Complete())
	assert.False(t, a.Resolve(2021, []string{"Company", "Item", "Amount Tonnes"}).Complete())
}

func TestLoadAliases_EmptyPathUsesDefault(t *testing.T) {
	a, err := LoadAliases("")
	require.NoError(t, err)
	assert.True(t, a.Resolve(2024, []string{"Company", "Product", "Volume"}).Complete())
}

func TestLoadAliases_Errors(t *testing.T) {
	_, err := LoadAliases(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = ParseAliases([]byte("default: [unclosed"))
	require.Error(t, err)

	_, err = ParseAliases([]byte("years:\n  2019:\n    company: [x]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no default section")
}
