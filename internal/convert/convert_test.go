package convert

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/petro-etl/internal/mapping"
	"github.com/sells-group/petro-etl/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testConverter() *Converter {
	return New(map[string]Factor{
		"Gasoline": {UnitClass: model.UnitClassVolume, LitersPerTon: 1324.5},
		"LPG":      {UnitClass: model.UnitClassWeight},
		"Naphtha":  {UnitClass: model.UnitClassVolume},
	}, 1.8)
}

func std(product, unit string, volume float64) model.StandardizedRecord {
	return model.StandardizedRecord{
		SourceFile: "BDC_2023.xlsx", Sheet: "JAN", Category: model.CategoryBDC, Year: 2023, Month: 1,
		Company: "Alpha Oil Ltd", Product: product, CanonicalCompany: "Alpha Oil", CanonicalProduct: product,
		Unit: unit, Volume: volume,
	}
}

func TestConvert_VolumeClass(t *testing.T) {
	out, err := testConverter().Convert(std("Gasoline", "", 132450))
	require.NoError(t, err)
	assert.InDelta(t, 132450, out.Liters, 1e-9)
	assert.InDelta(t, 100, out.MetricTons, 1e-9)
	assert.InDelta(t, 100000, out.Kilograms, 1e-6)
	assert.Equal(t, "Alpha Oil", out.CanonicalCompany)
}

func TestConvert_WeightClass(t *testing.T) {
	out, err := testConverter().Convert(std("LPG", "kg", 1000))
	require.NoError(t, err)
	assert.InDelta(t, 1000, out.Kilograms, 1e-9)
	assert.InDelta(t, 1, out.MetricTons, 1e-9)
	assert.InDelta(t, 1800, out.Liters, 1e-9)
}

func TestConvert_TonsInput(t *testing.T) {
	c := testConverter()

	out, err := c.Convert(std("Gasoline", "Tonnes", 2))
	require.NoError(t, err)
	assert.InDelta(t, 2649, out.Liters, 1e-9)
	assert.InDelta(t, 2000, out.Kilograms, 1e-9)

	out, err = c.Convert(std("LPG", "MT", 2))
	require.NoError(t, err)
	assert.InDelta(t, 3600, out.Liters, 1e-9)
}

func TestConvert_RoundTripInvariants(t *testing.T) {
	c := testConverter()
	for _, v := range []float64{0, 1, 1324.5, 98765.4321, -50} {
		out, err := c.Convert(std("Gasoline", "LTRS", v))
		require.NoError(t, err)
		assert.InDelta(t, out.Liters/1324.5, out.MetricTons, 1e-9)
		assert.InDelta(t, out.MetricTons*1000, out.Kilograms, 1e-6)

		out, err = c.Convert(std("LPG", "KGS", v))
		require.NoError(t, err)
		assert.InDelta(t, out.Kilograms/1000, out.MetricTons, 1e-12)
	}
}

func TestConvert_Deterministic(t *testing.T) {
	c := testConverter()
	a, err := c.Convert(std("Gasoline", "L", 555.5))
	require.NoError(t, err)
	b, err := c.Convert(std("Gasoline", "L", 555.5))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestConvert_MissingFactor(t *testing.T) {
	c := testConverter()

	_, err := c.Convert(std("Naphtha", "", 10))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMissingFactor))

	_, err = c.Convert(std("Bitumen", "", 10))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMissingFactor))
}

func TestConvert_UnitMismatch(t *testing.T) {
	c := testConverter()

	_, err := c.Convert(std("Gasoline", "KG", 10))
	assert.True(t, eris.Is(err, ErrUnitMismatch))

	_, err = c.Convert(std("LPG", "litres", 10))
	assert.True(t, eris.Is(err, ErrUnitMismatch))

	_, err = c.Convert(std("LPG", "barrels", 10))
	assert.True(t, eris.Is(err, ErrUnitMismatch))
}

func TestConvertAll(t *testing.T) {
	res := testConverter().ConvertAll([]model.StandardizedRecord{
		std("Gasoline", "", 132450),
		std("Naphtha", "", 1),
		std("Naphtha", "", 2),
		std("LPG", "L", 3),
	})

	assert.Equal(t, 4, res.Summary.In)
	assert.Equal(t, 1, res.Summary.Out)
	assert.Equal(t, 3, res.Summary.Rejected)
	require.Len(t, res.Rejections, 3)
	assert.Equal(t, model.ReasonMissingFactor, res.Rejections[0].Reason)
	assert.Equal(t, model.ReasonUnitMismatch, res.Rejections[2].Reason)
	assert.Equal(t, model.StageConvert, res.Rejections[2].Stage)
	require.NotNil(t, res.Rejections[0].Record.Volume)
	assert.InDelta(t, 1, *res.Rejections[0].Record.Volume, 1e-9)
}

func TestFromTable(t *testing.T) {
	tbl, err := mapping.NewTable("v", []model.MappingEntry{
		{Entity: model.EntityProduct, Original: "ATK", Canonical: "Aviation Turbine Kerosene", Category: "Kerosene",
			UnitClass: model.UnitClassVolume, ConversionFactor: 1257.86, Include: true},
	})
	require.NoError(t, err)

	c := FromTable(tbl, 0)
	out, err := c.Convert(std("Aviation Turbine Kerosene", "", 1257.86))
	require.NoError(t, err)
	assert.InDelta(t, 1, out.MetricTons, 1e-12)
	assert.InDelta(t, DefaultLitersPerKg, c.litersPerKg, 0)
}

func TestParseUnit(t *testing.T) {
	assert.Equal(t, UnitNone, ParseUnit("  "))
	assert.Equal(t, UnitLiters, ParseUnit("Ltrs."))
	assert.Equal(t, UnitKilograms, ParseUnit("kgs"))
	assert.Equal(t, UnitTons, ParseUnit("metric  tons"))
	assert.Equal(t, UnitUnknown, ParseUnit("bbl"))
}
