package extract

import (
	_ "embed"
	"os"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var defaultAliases []byte

// Field is a logical column of a transaction sheet.
type Field string

const (
	FieldCompany Field = "company"
	FieldProduct Field = "product"
	FieldUnit    Field = "unit"
	FieldVolume  Field = "volume"
)

// headerScanRows is how far down a sheet the header row may sit.
const headerScanRows = 10

// aliasSection is one block of the alias file.
type aliasSection struct {
	Company []string          `yaml:"company"`
	Product []string          `yaml:"product"`
	Unit    []string          `yaml:"unit"`
	Volume  []string          `yaml:"volume"`
	Units   map[string]string `yaml:"units"`
}

type aliasFile struct {
	Default aliasSection         `yaml:"default"`
	Years   map[int]aliasSection `yaml:"years"`
}

// aliasSet is a resolved section: normalized header → field.
type aliasSet struct {
	fields map[string]Field
	units  map[string]string
}

// AliasTable resolves spreadsheet headers to fields, keyed by the year the
// file was published. It is read-only after loading.
type AliasTable struct {
	def   aliasSet
	years map[int]aliasSet
}

// Columns is a resolved header: field → column index, plus the unit implied
// by the volume header when the sheet has no unit column.
type Columns struct {
	Index       map[Field]int
	ImpliedUnit string
}

// DefaultAliases returns the alias table compiled into the binary.
func DefaultAliases() *AliasTable {
	t, err := ParseAliases(defaultAliases)
	if err != nil {
		panic(err)
	}
	return t
}

// LoadAliases reads an alias table from path, or the built-in table when
// path is empty.
func LoadAliases(path string) (*AliasTable, error) {
	if path == "" {
		return DefaultAliases(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read aliases %s", path)
	}
	return ParseAliases(data)
}

// ParseAliases decodes the YAML alias format.
func ParseAliases(data []byte) (*AliasTable, error) {
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "extract: parse aliases")
	}

	t := &AliasTable{def: buildSet(f.Default), years: make(map[int]aliasSet, len(f.Years))}
	if len(t.def.fields) == 0 {
		return nil, eris.New("extract: alias table has no default section")
	}
	for year, sec := range f.Years {
		t.years[year] = buildSet(sec)
	}
	return t, nil
}

func buildSet(sec aliasSection) aliasSet {
	s := aliasSet{fields: make(map[string]Field), units: make(map[string]string)}
	add := func(field Field, names []string) {
		for _, n := range names {
			if k := normalizeHeader(n); k != "" {
				s.fields[k] = field
			}
		}
	}
	add(FieldCompany, sec.Company)
	add(FieldProduct, sec.Product)
	add(FieldUnit, sec.Unit)
	add(FieldVolume, sec.Volume)
	for h, u := range sec.Units {
		s.units[normalizeHeader(h)] = strings.ToUpper(strings.TrimSpace(u))
	}
	return s
}

// lookup resolves one normalized header, year section first.
func (t *AliasTable) lookup(year int, key string) (Field, bool) {
	if ys, ok := t.years[year]; ok {
		if f, ok := ys.fields[key]; ok {
			return f, true
		}
	}
	f, ok := t.def.fields[key]
	return f, ok
}

func (t *AliasTable) impliedUnit(year int, key string) string {
	if ys, ok := t.years[year]; ok {
		if u, ok := ys.units[key]; ok {
			return u
		}
	}
	return t.def.units[key]
}

// Resolve maps a header row to column indexes. The leftmost column wins
// when two headers resolve to the same field.
func (t *AliasTable) Resolve(year int, header []string) Columns {
	cols := Columns{Index: make(map[Field]int)}
	for i, h := range header {
		key := normalizeHeader(h)
		if key == "" {
			continue
		}
		f, ok := t.lookup(year, key)
		if !ok {
			continue
		}
		if _, seen := cols.Index[f]; seen {
			continue
		}
		cols.Index[f] = i
		if f == FieldVolume {
			cols.ImpliedUnit = t.impliedUnit(year, key)
		}
	}
	return cols
}

// Complete reports whether the required fields were all found.
func (c Columns) Complete() bool {
	for _, f := range []Field{FieldCompany, FieldProduct, FieldVolume} {
		if _, ok := c.Index[f]; !ok {
			return false
		}
	}
	return true
}

// Get returns the cell for field, or "" when the column is absent.
func (c Columns) Get(row []string, f Field) string {
	idx, ok := c.Index[f]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// DetectHeader finds the header row within the first rows of a sheet.
// It returns the row index and its resolved columns.
func (t *AliasTable) DetectHeader(year int, rows [][]string) (int, Columns, bool) {
	limit := min(len(rows), headerScanRows)
	for i := 0; i < limit; i++ {
		cols := t.Resolve(year, rows[i])
		if cols.Complete() {
			return i, cols, true
		}
	}
	return -1, Columns{}, false
}

// normalizeHeader lowercases and collapses punctuation and whitespace.
// "Volume (Ltrs.)" → "volume ltrs"
func normalizeHeader(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}
