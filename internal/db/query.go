package db

import (
	"context"
	"fmt"
)

// RawQuery runs an arbitrary parameterized SELECT on behalf of a module
// plane instance's databaseQuery IPC message and returns each row as a
// column-name-keyed map, the simplest shape that survives a JSON round
// trip back to an arbitrary-language module. Modules have no direct
// connection: every statement passes through here, so this is the
// entire trust boundary — callers (internal/modules) are responsible
// for whatever per-module query restrictions the deployment wants.
func (d *Database) RawQuery(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db: raw query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("db: raw query columns: %w", err)
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		pointers := make([]any, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("db: raw query scan: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
