package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/lib/pq"

	"github.com/gerhard-ee/sqlload/internal/config"
)

// NewPostgres connects to PostgreSQL. Staged files are streamed through
// COPY FROM STDIN.
func NewPostgres(ctx context.Context, cfg *config.Config, objects Opener, logger *slog.Logger) (TableStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return &sqlStore{db: db, dialect: postgresDialect{}, objects: objects, logger: logger}, nil
}

// postgresDialect ignores Table.Database; the connection selects it.
type postgresDialect struct{}

func (postgresDialect) quoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

func (d postgresDialect) tableName(t Table) string {
	if t.Schema == "" {
		return d.quoteIdent(t.Name)
	}
	return d.quoteIdent(t.Schema) + "." + d.quoteIdent(t.Name)
}

func schemaOrPublic(t Table) string {
	if t.Schema == "" {
		return "public"
	}
	return t.Schema
}

func (postgresDialect) tableExistsQuery(t Table) (string, []interface{}) {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2",
		[]interface{}{schemaOrPublic(t), t.Name}
}

func (postgresDialect) columnsQuery(t Table) (string, []interface{}) {
	return "SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position",
		[]interface{}{schemaOrPublic(t), t.Name}
}

func (d postgresDialect) createTable(t Table, replace bool) []string {
	var stmts []string
	if replace {
		stmts = append(stmts, d.dropTable(t))
	}
	return append(stmts, fmt.Sprintf("CREATE TABLE %s (%s)", d.tableName(t), columnDefs(d, t.Columns)))
}

func (d postgresDialect) createTableLike(t, parent Table, replace bool) []string {
	var stmts []string
	if replace {
		stmts = append(stmts, d.dropTable(t))
	}
	return append(stmts, fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)", d.tableName(t), d.tableName(parent)))
}

func (d postgresDialect) dropTable(t Table) string {
	return "DROP TABLE IF EXISTS " + d.tableName(t)
}

func (d postgresDialect) truncateTable(t Table) string {
	return "TRUNCATE TABLE " + d.tableName(t)
}

func (d postgresDialect) renameTable(t Table, renameTo string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.tableName(t), d.quoteIdent(renameTo))
}

func (d postgresDialect) deleteFrom(t Table) (string, string) {
	return fmt.Sprintf("DELETE FROM %s AS tgt", d.tableName(t)), "tgt"
}

func (postgresDialect) matchCondition(left, right string, fn MatchFunc) string {
	switch fn {
	case MatchDay:
		return fmt.Sprintf("date_trunc('day', %s) = date_trunc('day', %s)", left, right)
	case MatchNullSafe:
		return fmt.Sprintf("%s IS NOT DISTINCT FROM %s", left, right)
	default:
		return left + " = " + right
	}
}

func (postgresDialect) copyRows(ctx context.Context, tx *sql.Tx, t Table, columns []string, next rowFunc) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(schemaOrPublic(t), t.Name, columns...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %v", err)
	}
	defer stmt.Close()

	var n int64
	for {
		row, err := next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return n, fmt.Errorf("failed to copy row %d: %v", n+1, err)
		}
		n++
	}
	// Flush the buffered rows
	if _, err := stmt.ExecContext(ctx); err != nil {
		return n, fmt.Errorf("failed to flush copy: %v", err)
	}
	return n, nil
}
