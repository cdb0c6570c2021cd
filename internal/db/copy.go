package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a table using PostgreSQL COPY protocol.
// table may be schema-qualified ("petro.fact_bdc_transactions").
func CopyFrom(ctx context.Context, conn Conn, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := conn.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	if n != int64(len(rows)) {
		return n, eris.Errorf("db: COPY INTO %s: wrote %d of %d rows", table, n, len(rows))
	}

	return n, nil
}

// Identifier splits a possibly schema-qualified table name into a pgx.Identifier.
func Identifier(table string) pgx.Identifier {
	schema, name, ok := splitTable(table)
	if ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}
