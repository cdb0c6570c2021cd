package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Stage names, in pipeline order.
const (
	StageExtract     = "extract"
	StageStandardize = "standardize"
	StageConvert     = "convert"
	StageScore       = "score"
	StageLoad        = "load"
)

// StageSummary reports how many records entered and left a stage.
type StageSummary struct {
	Stage    string        `json:"stage"`
	In       int           `json:"in"`
	Out      int           `json:"out"`
	Rejected int           `json:"rejected"`
	Skipped  int           `json:"skipped,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Run is one pipeline execution.
type Run struct {
	ID             string         `json:"id"`
	Mode           string         `json:"mode"`
	Categories     []Category     `json:"categories"`
	MappingVersion string         `json:"mapping_version"`
	Status         RunStatus      `json:"status"`
	Error          string         `json:"error,omitempty"`
	Stages         []StageSummary `json:"stages,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// Rejection reasons.
const (
	ReasonMissingField    = "missing_field"
	ReasonRemovedCompany  = "removed_company"
	ReasonRemovedProduct  = "removed_product"
	ReasonUnmappedCompany = "unmapped_company"
	ReasonUnmappedProduct = "unmapped_product"
	ReasonMissingFactor   = "missing_factor"
	ReasonUnitMismatch    = "unit_mismatch"
)

// RejectionReasons lists every reason in the order checks run.
var RejectionReasons = []string{
	ReasonMissingField,
	ReasonRemovedProduct,
	ReasonRemovedCompany,
	ReasonUnmappedProduct,
	ReasonUnmappedCompany,
	ReasonMissingFactor,
	ReasonUnitMismatch,
}

// Rejection records a raw record that was dropped and why.
type Rejection struct {
	Stage  string    `json:"stage"`
	Reason string    `json:"reason"`
	Detail string    `json:"detail,omitempty"`
	Record RawRecord `json:"record"`
}
