package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gerhard-ee/sqlload/internal/config"
)

// NewSQLite opens a SQLite database file. Staged files are read through the
// object store and inserted row by row inside one transaction.
func NewSQLite(ctx context.Context, cfg *config.Config, objects Opener, logger *slog.Logger) (TableStore, error) {
	db, err := sql.Open("sqlite3", cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %v", err)
	}
	// A single connection keeps in-memory databases shared across calls
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return &sqlStore{db: db, dialect: sqliteDialect{}, objects: objects, logger: logger}, nil
}

// sqliteDialect treats Table.Schema as the attached database name and
// ignores Table.Database.
type sqliteDialect struct{}

func (sqliteDialect) quoteIdent(name string) string {
	return quoteWith(name, `"`, `"`)
}

func (d sqliteDialect) tableName(t Table) string {
	return d.quoteIdent(schemaOrMain(t)) + "." + d.quoteIdent(t.Name)
}

func (d sqliteDialect) tableExistsQuery(t Table) (string, []interface{}) {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s.sqlite_master WHERE type = 'table' AND name = ?", d.quoteIdent(schemaOrMain(t))),
		[]interface{}{t.Name}
}

func (sqliteDialect) columnsQuery(t Table) (string, []interface{}) {
	return "SELECT name, type FROM pragma_table_info(?, ?) ORDER BY cid", []interface{}{t.Name, schemaOrMain(t)}
}

func (d sqliteDialect) createTable(t Table, replace bool) []string {
	var stmts []string
	if replace {
		stmts = append(stmts, d.dropTable(t))
	}
	return append(stmts, fmt.Sprintf("CREATE TABLE %s (%s)", d.tableName(t), columnDefs(d, t.Columns)))
}

func (d sqliteDialect) createTableLike(t, parent Table, replace bool) []string {
	var stmts []string
	if replace {
		stmts = append(stmts, d.dropTable(t))
	}
	return append(stmts, fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s WHERE 0", d.tableName(t), d.tableName(parent)))
}

func (d sqliteDialect) dropTable(t Table) string {
	return "DROP TABLE IF EXISTS " + d.tableName(t)
}

func (d sqliteDialect) truncateTable(t Table) string {
	return "DELETE FROM " + d.tableName(t)
}

func (d sqliteDialect) renameTable(t Table, renameTo string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.tableName(t), d.quoteIdent(renameTo))
}

// deleteFrom qualifies columns by the bare table name since SQLite does not
// accept an alias on DELETE.
func (d sqliteDialect) deleteFrom(t Table) (string, string) {
	return "DELETE FROM " + d.tableName(t), d.quoteIdent(t.Name)
}

func (sqliteDialect) matchCondition(left, right string, fn MatchFunc) string {
	switch fn {
	case MatchDay:
		return fmt.Sprintf("date(%s) = date(%s)", left, right)
	case MatchNullSafe:
		return fmt.Sprintf("%s IS %s", left, right)
	default:
		return left + " = " + right
	}
}

func (d sqliteDialect) copyRows(ctx context.Context, tx *sql.Tx, t Table, columns []string, next rowFunc) (int64, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.tableName(t), quoteAll(d, columns), placeholders)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %v", err)
	}
	defer stmt.Close()

	var n int64
	for {
		row, err := next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return n, fmt.Errorf("failed to insert row %d: %v", n+1, err)
		}
		n++
	}
}
