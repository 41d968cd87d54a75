package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	sf "github.com/snowflakedb/gosnowflake"

	"github.com/gerhard-ee/sqlload/internal/config"
	"github.com/gerhard-ee/sqlload/internal/ingest"
)

// NewSnowflake connects to Snowflake. Staged files are loaded server-side
// through a transient stage bound to the configured storage integration.
func NewSnowflake(ctx context.Context, cfg *config.Config, logger *slog.Logger) (TableStore, error) {
	dsn, err := sf.DSN(&sf.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %v", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return &sqlStore{
		db:                 db,
		dialect:            snowflakeDialect{},
		ingester:           ingest.NewSnowflakeIngester(),
		storageIntegration: cfg.StorageIntegration,
		logger:             logger,
	}, nil
}

// snowflakeDialect uppercases table identifiers, matching how Snowflake
// resolves unquoted names. Column names are quoted as given.
type snowflakeDialect struct{}

func (snowflakeDialect) quoteIdent(name string) string {
	return quoteWith(name, `"`, `"`)
}

func (d snowflakeDialect) tableName(t Table) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Database, t.Schema, t.Name} {
		if p != "" {
			parts = append(parts, d.quoteIdent(strings.ToUpper(p)))
		}
	}
	return strings.Join(parts, ".")
}

func (d snowflakeDialect) infoSchema(t Table) string {
	if t.Database == "" {
		return "INFORMATION_SCHEMA"
	}
	return d.quoteIdent(strings.ToUpper(t.Database)) + ".INFORMATION_SCHEMA"
}

func (d snowflakeDialect) tableExistsQuery(t Table) (string, []interface{}) {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?", d.infoSchema(t)),
		[]interface{}{strings.ToUpper(t.Schema), strings.ToUpper(t.Name)}
}

func (d snowflakeDialect) columnsQuery(t Table) (string, []interface{}) {
	return fmt.Sprintf("SELECT COLUMN_NAME, DATA_TYPE FROM %s.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION", d.infoSchema(t)),
		[]interface{}{strings.ToUpper(t.Schema), strings.ToUpper(t.Name)}
}

func (d snowflakeDialect) createTable(t Table, replace bool) []string {
	head := "CREATE TABLE"
	if replace {
		head = "CREATE OR REPLACE TABLE"
	}
	return []string{fmt.Sprintf("%s %s (%s)", head, d.tableName(t), columnDefs(d, t.Columns))}
}

func (d snowflakeDialect) createTableLike(t, parent Table, replace bool) []string {
	head := "CREATE TABLE"
	if replace {
		head = "CREATE OR REPLACE TABLE"
	}
	return []string{fmt.Sprintf("%s %s LIKE %s", head, d.tableName(t), d.tableName(parent))}
}

func (d snowflakeDialect) dropTable(t Table) string {
	return "DROP TABLE IF EXISTS " + d.tableName(t)
}

func (d snowflakeDialect) truncateTable(t Table) string {
	return "TRUNCATE TABLE " + d.tableName(t)
}

func (d snowflakeDialect) renameTable(t Table, renameTo string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.tableName(t), d.tableName(t.WithName(renameTo)))
}

func (d snowflakeDialect) deleteFrom(t Table) (string, string) {
	name := d.tableName(t)
	return "DELETE FROM " + name, name
}

func (snowflakeDialect) matchCondition(left, right string, fn MatchFunc) string {
	switch fn {
	case MatchDay:
		return fmt.Sprintf("DATE_TRUNC('day', %s) = DATE_TRUNC('day', %s)", left, right)
	case MatchNullSafe:
		return fmt.Sprintf("EQUAL_NULL(%s, %s)", left, right)
	default:
		return left + " = " + right
	}
}
