package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gerhard-ee/sqlload/internal/ingest"
)

// queryBuilder renders the SQL shared by every backend
type queryBuilder interface {
	quoteIdent(name string) string
	tableName(t Table) string
	// deleteFrom returns the DELETE head for t and the reference used to
	// qualify t's columns inside the statement.
	deleteFrom(t Table) (stmt, ref string)
	matchCondition(left, right string, fn MatchFunc) string
}

// dialect covers the catalog queries and DDL of a database/sql backend
type dialect interface {
	queryBuilder
	tableExistsQuery(t Table) (string, []interface{})
	columnsQuery(t Table) (string, []interface{})
	createTable(t Table, replace bool) []string
	createTableLike(t, parent Table, replace bool) []string
	dropTable(t Table) string
	truncateTable(t Table) string
	renameTable(t Table, renameTo string) string
}

// rowCopier is implemented by dialects that stream staged rows through the
// client rather than reading the file server-side.
type rowCopier interface {
	copyRows(ctx context.Context, tx *sql.Tx, t Table, columns []string, next rowFunc) (int64, error)
}

func columnDefs(q queryBuilder, columns []Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = fmt.Sprintf("%s %s", q.quoteIdent(c.Name), c.Type)
	}
	return strings.Join(defs, ", ")
}

func quoteAll(q queryBuilder, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = q.quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func insertIntoSQL(q queryBuilder, t, from Table, columns, fromColumns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s)\nSELECT %s\nFROM %s",
		q.tableName(t), quoteAll(q, columns), quoteAll(q, fromColumns), q.tableName(from))
}

func deleteOverlappingSQL(q queryBuilder, t, match Table, keys []MatchKey) string {
	head, ref := q.deleteFrom(t)
	conds := make([]string, len(keys))
	for i, k := range keys {
		col := q.quoteIdent(k.Column)
		conds[i] = q.matchCondition(ref+"."+col, "stg."+col, k.Func)
	}
	return fmt.Sprintf("%s\nWHERE EXISTS (\n    SELECT 1 FROM %s AS stg\n    WHERE %s\n)",
		head, q.tableName(match), strings.Join(conds, "\n      AND "))
}

func countSQL(q queryBuilder, t Table) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", q.tableName(t))
}

// quoteWith doubles any embedded closing quote
func quoteWith(name, open, close string) string {
	return open + strings.ReplaceAll(name, close, close+close) + close
}

func nullSafeOr(left, right string) string {
	return fmt.Sprintf("(%s = %s OR (%s IS NULL AND %s IS NULL))", left, right, left, right)
}

// rowFunc returns the next row to copy, or io.EOF
type rowFunc func() ([]interface{}, error)

// projectRows orders the fields of each file row as the file columns are
// listed. Parquet files carry names and are matched case-insensitively; CSV
// rows are positional.
func projectRows(rows ingest.RowReader, columns []string, byName bool) (rowFunc, error) {
	if !byName {
		line := 0
		return func() ([]interface{}, error) {
			row, err := rows.Read()
			if err != nil {
				return nil, err
			}
			line++
			if len(row) != len(columns) {
				return nil, fmt.Errorf("row %d has %d fields, expected %d", line, len(row), len(columns))
			}
			return row, nil
		}, nil
	}

	header := rows.Header()
	index := make([]int, len(columns))
	for i, c := range columns {
		index[i] = -1
		for j, h := range header {
			if strings.EqualFold(h, c) {
				index[i] = j
				break
			}
		}
		if index[i] < 0 {
			return nil, fmt.Errorf("column %s not found in file", c)
		}
	}
	return func() ([]interface{}, error) {
		row, err := rows.Read()
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(index))
		for i, j := range index {
			out[i] = row[j]
		}
		return out, nil
	}, nil
}
