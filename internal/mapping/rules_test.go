package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/petro-etl/internal/model"
)

func TestDefaultRules_Match(t *testing.T) {
	r := DefaultRules()

	tests := []struct {
		label     string
		canonical string
		class     model.UnitClass
		factor    float64
	}{
		{"Premium Gasoline", "Gasoline", model.UnitClassVolume, 1324.5},
		{"PMS", "Gasoline", model.UnitClassVolume, 1324.5},
		{"Gas Oil", "Gasoil", model.UnitClassVolume, 1183.43},
		{"Premium Diesel", "Gasoil", model.UnitClassVolume, 1183.43},
		{"Marine Gasoil (MGO)", "Marine Gasoil", model.UnitClassVolume, 1183.43},
		{"ATK / Jet A1", "Aviation Turbine Kerosene", model.UnitClassVolume, 1257.86},
		{"Kerosene", "Kerosene", model.UnitClassVolume, 1240.6},
		{"Premix", "Premix Gasoline", model.UnitClassVolume, 1324.5},
		{"LPG", "LPG", model.UnitClassWeight, 0},
		{"Residual Fuel Oil", "Residual Fuel Oil", model.UnitClassVolume, 1050},
	}
	for _, tt := range tests {
		rule, ok := r.Match(tt.label)
		require.True(t, ok, tt.label)
		assert.Equal(t, tt.canonical, rule.Canonical, tt.label)
		assert.Equal(t, tt.class, rule.UnitClass, tt.label)
		assert.InDelta(t, tt.factor, rule.Factor, 1e-9, tt.label)
	}

	_, ok := r.Match("Lubricants")
	assert.False(t, ok)
}

func TestParseRules_Validation(t *testing.T) {
	_, err := ParseRules([]byte(`
rules:
  - canonical: ""
    unit_class: volume
    keywords: [x]
  - canonical: Widget
    unit_class: volume
    keywords: [widget]
  - canonical: Gizmo
    unit_class: liquid
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule 0: canonical is required")
	assert.Contains(t, err.Error(), `rule "Widget": volume products need a factor > 0`)
	assert.Contains(t, err.Error(), `rule "Gizmo": unit_class must be volume or weight`)
	assert.Contains(t, err.Error(), `rule "Gizmo": at least one keyword is required`)
}

func TestLoadRules(t *testing.T) {
	r, err := LoadRules("")
	require.NoError(t, err)
	assert.Positive(t, r.Len())

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - canonical: Bitumen
    family: Asphalt
    unit_class: weight
    keywords: [bitumen, asphalt]
`), 0o644))
	r, err = LoadRules(path)
	require.NoError(t, err)
	rule, ok := r.Match("Bitumen 60/70")
	require.True(t, ok)
	assert.Equal(t, "Asphalt", rule.Family)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
