package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"

	"github.com/gerhard-ee/sqlload/internal/config"
)

// NewMSSQL connects to SQL Server. Staged files are streamed through the
// bulk copy protocol.
func NewMSSQL(ctx context.Context, cfg *config.Config, objects Opener, logger *slog.Logger) (TableStore, error) {
	query := url.Values{}
	query.Set("database", cfg.Database)
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		RawQuery: query.Encode(),
	}

	db, err := sql.Open("sqlserver", u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return &sqlStore{db: db, dialect: mssqlDialect{}, objects: objects, logger: logger}, nil
}

type mssqlDialect struct{}

func (mssqlDialect) quoteIdent(name string) string {
	return quoteWith(name, "[", "]")
}

func (d mssqlDialect) tableName(t Table) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Database, schemaOrDbo(t), t.Name} {
		if p != "" {
			parts = append(parts, d.quoteIdent(p))
		}
	}
	return strings.Join(parts, ".")
}

func schemaOrDbo(t Table) string {
	if t.Schema == "" {
		return "dbo"
	}
	return t.Schema
}

func (d mssqlDialect) infoSchema(t Table) string {
	if t.Database == "" {
		return "INFORMATION_SCHEMA"
	}
	return d.quoteIdent(t.Database) + ".INFORMATION_SCHEMA"
}

func (d mssqlDialect) tableExistsQuery(t Table) (string, []interface{}) {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2", d.infoSchema(t)),
		[]interface{}{schemaOrDbo(t), t.Name}
}

func (d mssqlDialect) columnsQuery(t Table) (string, []interface{}) {
	return fmt.Sprintf("SELECT COLUMN_NAME, DATA_TYPE FROM %s.COLUMNS WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 ORDER BY ORDINAL_POSITION", d.infoSchema(t)),
		[]interface{}{schemaOrDbo(t), t.Name}
}

func (d mssqlDialect) createTable(t Table, replace bool) []string {
	var stmts []string
	if replace {
		stmts = append(stmts, d.dropTable(t))
	}
	return append(stmts, fmt.Sprintf("CREATE TABLE %s (%s)", d.tableName(t), columnDefs(d, t.Columns)))
}

func (d mssqlDialect) createTableLike(t, parent Table, replace bool) []string {
	var stmts []string
	if replace {
		stmts = append(stmts, d.dropTable(t))
	}
	return append(stmts, fmt.Sprintf("SELECT TOP 0 * INTO %s FROM %s", d.tableName(t), d.tableName(parent)))
}

func (d mssqlDialect) dropTable(t Table) string {
	return "DROP TABLE IF EXISTS " + d.tableName(t)
}

func (d mssqlDialect) truncateTable(t Table) string {
	return "TRUNCATE TABLE " + d.tableName(t)
}

// renameTable calls sp_rename in the table's database
func (d mssqlDialect) renameTable(t Table, renameTo string) string {
	proc := "sp_rename"
	if t.Database != "" {
		proc = d.quoteIdent(t.Database) + ".sys.sp_rename"
	}
	object := d.quoteIdent(schemaOrDbo(t)) + "." + d.quoteIdent(t.Name)
	return fmt.Sprintf("EXEC %s N'%s', N'%s'", proc,
		strings.ReplaceAll(object, "'", "''"), strings.ReplaceAll(renameTo, "'", "''"))
}

func (d mssqlDialect) deleteFrom(t Table) (string, string) {
	return fmt.Sprintf("DELETE tgt FROM %s AS tgt", d.tableName(t)), "tgt"
}

func (mssqlDialect) matchCondition(left, right string, fn MatchFunc) string {
	switch fn {
	case MatchDay:
		return fmt.Sprintf("CAST(%s AS DATE) = CAST(%s AS DATE)", left, right)
	case MatchNullSafe:
		return nullSafeOr(left, right)
	default:
		return left + " = " + right
	}
}

func (d mssqlDialect) copyRows(ctx context.Context, tx *sql.Tx, t Table, columns []string, next rowFunc) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(d.tableName(t), mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare bulk copy: %v", err)
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
		return n, fmt.Errorf("failed to flush bulk copy: %v", err)
	}
	return n, nil
}
