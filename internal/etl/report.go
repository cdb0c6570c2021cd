package etl

import (
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/petro-etl/internal/model"
	"github.com/sells-group/petro-etl/internal/workbook"
)

// Rejection report sheet names.
const (
	SheetRejections = "rejections"
	SheetSummary    = "summary"
)

var rejectionHeader = []string{
	"stage", "reason", "detail", "category", "source_file", "sheet", "row",
	"year", "month", "company", "product", "unit", "volume", "volume_text",
}

// ReportPath returns where a run's rejection report is written.
func ReportPath(dir, runID string) string {
	return filepath.Join(dir, "rejections_"+runID+".xlsx")
}

// WriteRejectionReport saves every rejected record plus the stage summaries.
func WriteRejectionReport(path string, rep *Report) error {
	w := workbook.NewWriter()

	rej, err := w.AddSheet(SheetRejections, rejectionHeader...)
	if err != nil {
		return eris.Wrap(err, "etl: report")
	}
	for _, r := range rep.Rejections {
		rec := r.Record
		rej.Append(
			r.Stage, r.Reason, r.Detail, string(rec.Category), rec.SourceFile, rec.Sheet, rec.Row,
			rec.Year, rec.Month, rec.Company, rec.Product, rec.Unit, rec.Volume, rec.VolumeText,
		)
	}

	sum, err := w.AddSheet(SheetSummary, "stage", "in", "out", "rejected", "skipped", "elapsed_ms")
	if err != nil {
		return eris.Wrap(err, "etl: report")
	}
	for _, s := range rep.Stages {
		sum.Append(s.Stage, s.In, s.Out, s.Rejected, s.Skipped, s.Elapsed.Milliseconds())
	}
	sum.Append()
	sum.Append("run_id", rep.RunID)
	sum.Append("mode", string(rep.Mode))
	sum.Append("mapping_version", rep.MappingVersion)
	sum.Append("generated_at", time.Now().UTC().Format(time.RFC3339))
	for _, reason := range sortedReasons(rep.RejectionsByReason()) {
		sum.Append("rejected:"+reason.name, reason.count)
	}

	if err := w.Save(path); err != nil {
		return eris.Wrapf(err, "etl: save report %s", path)
	}
	return nil
}

type reasonCount struct {
	name  string
	count int
}

func sortedReasons(m map[string]int) []reasonCount {
	out := make([]reasonCount, 0, len(m))
	for _, name := range model.RejectionReasons {
		if n, ok := m[name]; ok {
			out = append(out, reasonCount{name, n})
		}
	}
	return out
}
