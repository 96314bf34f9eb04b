package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditTables maps each exported table to the column that places a row in a month.
var AuditTables = []struct {
	Name       string
	TimeColumn string
}{
	{"aufguss_claims", "start_time"},
	{"festivals", "start_date"},
	{"posts", "created_at"},
}

// GetTableNames returns the tables included in the monthly export.
func (db *DB) GetTableNames(ctx context.Context) ([]string, error) {
	names := make([]string, len(AuditTables))
	for i, t := range AuditTables {
		names[i] = t.Name
	}
	return names, nil
}

// GetTableData returns the rows of tableName whose time column falls in [from, to).
func (db *DB) GetTableData(ctx context.Context, tableName string, from, to time.Time) (data []map[string]interface{}, columns []string, err error) {
	timeColumn := ""
	for _, t := range AuditTables {
		if t.Name == tableName {
			timeColumn = t.TimeColumn
			break
		}
	}
	if timeColumn == "" {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}

	var rows *sql.Rows
	rows, err = db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, nil, err
	}
	for rows.Next() {
		var cid int
		var name, typeName string
		var notNull, pk int
		var dfltValue sql.NullString
		if err = rows.Scan(&cid, &name, &typeName, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return nil, nil, err
		}
		columns = append(columns, name)
	}
	rows.Close()

	if len(columns) == 0 {
		return nil, nil, fmt.Errorf("table %s has no columns", tableName)
	}

	dataRows, err := db.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE %s >= ? AND %s < ? ORDER BY %s", tableName, timeColumn, timeColumn, timeColumn),
		ts(from), ts(to))
	if err != nil {
		return nil, nil, err
	}
	defer dataRows.Close()

	for dataRows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err = dataRows.Scan(valuePtrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		data = append(data, row)
	}

	return data, columns, dataRows.Err()
}

// DeleteOldClaims removes tallied claims that started more than olderThan ago.
func (db *DB) DeleteOldClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	return db.DeleteClaimsBefore(ctx, time.Now().Add(-olderThan))
}
