package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/gerhard-ee/sqlload/internal/config"
	"github.com/gerhard-ee/sqlload/internal/ingest"
)

// NewDuckDB opens a DuckDB database file. DuckDB reads staged files itself,
// through httpfs for remote locations.
func NewDuckDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (TableStore, error) {
	db, err := sql.Open("duckdb", cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB database: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return &sqlStore{
		db:       db,
		dialect:  duckdbDialect{},
		ingester: ingest.NewDuckDBIngester(),
		logger:   logger,
	}, nil
}

// duckdbDialect treats Table.Database as the attached catalog
type duckdbDialect struct{}

func (duckdbDialect) quoteIdent(name string) string {
	return quoteWith(name, `"`, `"`)
}

func (d duckdbDialect) tableName(t Table) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Database, schemaOrMain(t), t.Name} {
		if p != "" {
			parts = append(parts, d.quoteIdent(p))
		}
	}
	return strings.Join(parts, ".")
}

func schemaOrMain(t Table) string {
	if t.Schema == "" {
		return "main"
	}
	return t.Schema
}

func (duckdbDialect) catalogFilter(t Table) (string, []interface{}) {
	args := []interface{}{schemaOrMain(t), t.Name}
	if t.Database == "" {
		return "table_schema = ? AND table_name = ?", args
	}
	return "table_catalog = ? AND table_schema = ? AND table_name = ?", append([]interface{}{t.Database}, args...)
}

func (d duckdbDialect) tableExistsQuery(t Table) (string, []interface{}) {
	where, args := d.catalogFilter(t)
	return "SELECT COUNT(*) FROM information_schema.tables WHERE " + where, args
}

func (d duckdbDialect) columnsQuery(t Table) (string, []interface{}) {
	where, args := d.catalogFilter(t)
	return "SELECT column_name, data_type FROM information_schema.columns WHERE " + where + " ORDER BY ordinal_position", args
}

func (d duckdbDialect) createTable(t Table, replace bool) []string {
	head := "CREATE TABLE"
	if replace {
		head = "CREATE OR REPLACE TABLE"
	}
	return []string{fmt.Sprintf("%s %s (%s)", head, d.tableName(t), columnDefs(d, t.Columns))}
}

func (d duckdbDialect) createTableLike(t, parent Table, replace bool) []string {
	head := "CREATE TABLE"
	if replace {
		head = "CREATE OR REPLACE TABLE"
	}
	return []string{fmt.Sprintf("%s %s AS SELECT * FROM %s LIMIT 0", head, d.tableName(t), d.tableName(parent))}
}

func (d duckdbDialect) dropTable(t Table) string {
	return "DROP TABLE IF EXISTS " + d.tableName(t)
}

func (d duckdbDialect) truncateTable(t Table) string {
	return "TRUNCATE " + d.tableName(t)
}

func (d duckdbDialect) renameTable(t Table, renameTo string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.tableName(t), d.quoteIdent(renameTo))
}

func (d duckdbDialect) deleteFrom(t Table) (string, string) {
	return fmt.Sprintf("DELETE FROM %s AS tgt", d.tableName(t)), "tgt"
}

func (duckdbDialect) matchCondition(left, right string, fn MatchFunc) string {
	switch fn {
	case MatchDay:
		return fmt.Sprintf("date_trunc('day', %s) = date_trunc('day', %s)", left, right)
	case MatchNullSafe:
		return fmt.Sprintf("%s IS NOT DISTINCT FROM %s", left, right)
	default:
		return left + " = " + right
	}
}
