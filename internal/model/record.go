package model

// RawRecord is one company/product/period/volume tuple as read from a sheet.
type RawRecord struct {
	SourceFile string   `json:"source_file"`
	Sheet      string   `json:"sheet"`
	Row        int      `json:"row"`
	Category   Category `json:"category"`
	Year       int      `json:"year"`
	Month      int      `json:"month"`
	Company    string   `json:"company"`
	Product    string   `json:"product"`
	Unit       string   `json:"unit"`
	Volume     *float64 `json:"volume,omitempty"` // nil when blank or non-numeric
	VolumeText string   `json:"volume_text,omitempty"`
}

// StandardizedRecord is a RawRecord whose labels resolved through the approved mapping table.
type StandardizedRecord struct {
	SourceFile       string   `json:"source_file"`
	Sheet            string   `json:"sheet"`
	Row              int      `json:"row"`
	Category         Category `json:"category"`
	Year             int      `json:"year"`
	Month            int      `json:"month"`
	Company          string   `json:"company"`
	Product          string   `json:"product"`
	CanonicalCompany string   `json:"canonical_company"`
	CanonicalProduct string   `json:"canonical_product"`
	ProductCategory  string   `json:"product_category"`
	Unit             string   `json:"unit"`
	Volume           float64  `json:"volume"`
}

// Raw rebuilds the source view of the record for rejection reports.
func (r StandardizedRecord) Raw() RawRecord {
	v := r.Volume
	return RawRecord{
		SourceFile: r.SourceFile,
		Sheet:      r.Sheet,
		Row:        r.Row,
		Category:   r.Category,
		Year:       r.Year,
		Month:      r.Month,
		Company:    r.Company,
		Product:    r.Product,
		Unit:       r.Unit,
		Volume:     &v,
	}
}

// PeriodID returns the time dimension key for the record (YYYYMM).
func (r StandardizedRecord) PeriodID() int {
	return PeriodID(r.Year, r.Month)
}

// ConvertedRecord carries the three output volume units.
type ConvertedRecord struct {
	StandardizedRecord
	Liters     float64 `json:"liters"`
	Kilograms  float64 `json:"kilograms"`
	MetricTons float64 `json:"metric_tons"`
}

// ScoredRecord is a ConvertedRecord annotated with quality sub-scores.
type ScoredRecord struct {
	ConvertedRecord
	Completeness float64 `json:"completeness"`
	Consistency  float64 `json:"consistency"`
	Validity     float64 `json:"validity"`
	Score        float64 `json:"score"`
	Outlier      bool    `json:"outlier"`
	ZScore       float64 `json:"z_score"`
}

// PeriodID encodes a year/month pair as YYYYMM.
func PeriodID(year, month int) int {
	return year*100 + month
}
