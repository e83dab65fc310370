package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a table using the PostgreSQL COPY
// protocol, the fastest path for loading a full relation rebuild.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	copySource := pgx.CopyFromRows(rows)
	n, err := pool.CopyFrom(ctx, splitIdentifier(table), columns, copySource)
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}

	return n, nil
}

// SwapTables atomically replaces live with staging inside one transaction:
// the old table stays visible to readers until the single rename switch.
// The previous live table is kept under a _prev suffix for rollback.
func SwapTables(ctx context.Context, pool Pool, live, staging string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: swap: begin tx")
	}
	defer tx.Rollback(ctx)

	prev := live + "_prev"
	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", sanitizeTable(prev)),
		fmt.Sprintf("ALTER TABLE IF EXISTS %s RENAME TO %s", sanitizeTable(live), sanitizeLocal(prev)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", sanitizeTable(staging), sanitizeLocal(live)),
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "db: swap: %s", stmt)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "db: swap: commit tx")
	}
	return nil
}

// sanitizeTable handles schema-qualified table names like "features.rows".
func sanitizeTable(table string) string {
	return splitIdentifier(table).Sanitize()
}

// sanitizeLocal quotes the table part only; RENAME TO takes an unqualified
// name.
func sanitizeLocal(table string) string {
	parts := strings.SplitN(table, ".", 2)
	return pgx.Identifier{parts[len(parts)-1]}.Sanitize()
}

func splitIdentifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}
