package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/petro-etl/internal/db"
	"github.com/sells-group/petro-etl/internal/model"
)

// ErrIntegrity is returned when rows outside the load changed during it.
var ErrIntegrity = eris.New("warehouse: integrity check failed")

// Snapshot is the row count and ordered-row checksum of one table slice.
type Snapshot struct {
	Table    string         `json:"table"`
	Category model.Category `json:"category"`
	Rows     int64          `json:"rows"`
	Checksum string         `json:"checksum"`
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s[%s] rows=%d md5=%s", s.Table, s.Category, s.Rows, s.Checksum)
}

// TakeSnapshot captures the fact rows and company dimension rows of one
// category. Checksums hash every column of every row in key order.
func TakeSnapshot(ctx context.Context, conn db.Conn, cat model.Category) ([]Snapshot, error) {
	facts := Snapshot{Table: FactTable(cat), Category: cat}
	factSQL := fmt.Sprintf(
		"SELECT count(*), coalesce(md5(string_agg(t::text, '|' ORDER BY t.id)), '') FROM %s t",
		db.Identifier(facts.Table).Sanitize(),
	)
	if err := conn.QueryRow(ctx, factSQL).Scan(&facts.Rows, &facts.Checksum); err != nil {
		return nil, eris.Wrapf(err, "warehouse: snapshot %s", facts.Table)
	}

	companies := Snapshot{Table: TableCompanies, Category: cat}
	companySQL := "SELECT count(*), coalesce(md5(string_agg(d::text, '|' ORDER BY d.company_id)), '') " +
		"FROM petro.dim_companies d WHERE d.category = $1"
	if err := conn.QueryRow(ctx, companySQL, string(cat)).Scan(&companies.Rows, &companies.Checksum); err != nil {
		return nil, eris.Wrapf(err, "warehouse: snapshot %s[%s]", TableCompanies, cat)
	}

	return []Snapshot{facts, companies}, nil
}

// CompareSnapshots returns ErrIntegrity listing every slice that differs.
func CompareSnapshots(before, after []Snapshot) error {
	if len(before) != len(after) {
		return eris.Wrapf(ErrIntegrity, "snapshot count changed from %d to %d", len(before), len(after))
	}
	var diffs []string
	for i := range before {
		if before[i] != after[i] {
			diffs = append(diffs, fmt.Sprintf("%s -> rows=%d md5=%s", before[i], after[i].Rows, after[i].Checksum))
		}
	}
	if len(diffs) > 0 {
		return eris.Wrap(ErrIntegrity, strings.Join(diffs, "; "))
	}
	return nil
}
