package dbadapter

import (
	"context"
	"database/sql"
)

// sqlBackend is the real-driver backend shared by the mysql and postgres
// dialects: both speak database/sql, so one implementation covers both once
// the dialect-specific driver has been registered via its import's side
// effect (see dbadapter.go's blank imports of go-sql-driver/mysql and
// lib/pq).
type sqlBackend struct {
	db *sql.DB
}

func (b *sqlBackend) Close() error {
	return b.db.Close()
}

func (b *sqlBackend) Query(ctx context.Context, query string) (rowsAffected, rowsReturned int64, resultSet []map[string]interface{}, err error) {
	keyword := firstKeyword(query)
	if keyword == "SELECT" {
		rows, err := b.db.QueryContext(ctx, query)
		if err != nil {
			return 0, 0, nil, err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return 0, 0, nil, err
		}

		for rows.Next() {
			values := make([]interface{}, len(cols))
			ptrs := make([]interface{}, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return 0, 0, nil, err
			}
			row := make(map[string]interface{}, len(cols))
			for i, c := range cols {
				row[c] = values[i]
			}
			resultSet = append(resultSet, row)
		}
		rowsReturned = int64(len(resultSet))
		return 0, rowsReturned, resultSet, rows.Err()
	}

	result, err := b.db.ExecContext(ctx, query)
	if err != nil {
		return 0, 0, nil, err
	}
	n, _ := result.RowsAffected()
	return n, 0, nil, nil
}
