package model

// EntityType distinguishes product mappings from company mappings.
type EntityType string

const (
	EntityProduct EntityType = "product"
	EntityCompany EntityType = "company"
)

// UnitClass describes how a product's source volumes are denominated.
type UnitClass string

const (
	UnitClassVolume UnitClass = "volume" // liters
	UnitClassWeight UnitClass = "weight" // kilograms
)

// MappingEntry maps one free-text label onto its canonical form.
type MappingEntry struct {
	Entity           EntityType `json:"entity"`
	Original         string     `json:"original"`
	Canonical        string     `json:"canonical"`
	Category         string     `json:"category"`
	ConversionFactor float64    `json:"conversion_factor,omitempty"`
	UnitClass        UnitClass  `json:"unit_class,omitempty"`
	Include          bool       `json:"include"`
	Occurrences      int        `json:"occurrences,omitempty"`
	Reason           string     `json:"reason,omitempty"`
}
