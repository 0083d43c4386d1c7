// Copyright 2025 James Ross
package store

import (
	"context"
	"fmt"
)

// diagTables is the fixed set of tables the diagnostic helpers accept;
// table names are interpolated into SQL, so only known names pass.
var diagTables = map[string]bool{
	"users":           true,
	"catalog_items":   true,
	"jobs":            true,
	"download_audit":  true,
	"meta":            true,
	"search_sessions": true,
	"admin_sessions":  true,
}

// CountRows reports the row count of table. Informational only, used by
// the metrics surface to expose table sizes.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if !diagTables[table] {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n)
	return n, err
}

// GroupCount reports row counts of table grouped by column, e.g. jobs by
// state or users by status.
func (s *Store) GroupCount(ctx context.Context, table, column string) (map[string]int64, error) {
	if !diagTables[table] {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	ok, err := func() (bool, error) {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
		if err != nil {
			return false, err
		}
		defer rows.Close()
		for rows.Next() {
			var cid, notnull, pk int
			var name, ctype string
			var dflt any
			if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
				return false, err
			}
			if name == column {
				return true, nil
			}
		}
		return false, rows.Err()
	}()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("unknown column %q on %q", column, table)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM %s GROUP BY %s`, column, table, column))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var key any
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[fmt.Sprintf("%v", key)] = n
	}
	return out, rows.Err()
}
