package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	dbsql "github.com/databricks/databricks-sql-go"

	"github.com/gerhard-ee/sqlload/internal/config"
	"github.com/gerhard-ee/sqlload/internal/ingest"
)

// NewDatabricks connects to a Databricks SQL warehouse. Staged files are
// loaded with COPY INTO.
func NewDatabricks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (TableStore, error) {
	port := cfg.Port
	if port == 0 {
		port = 443
	}
	connector, err := dbsql.NewConnector(
		dbsql.WithServerHostname(cfg.Workspace),
		dbsql.WithPort(port),
		dbsql.WithHTTPPath(cfg.HTTPPath),
		dbsql.WithAccessToken(cfg.Token),
		dbsql.WithInitialNamespace(cfg.Catalog, cfg.Schema),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Databricks connector: %v", err)
	}

	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return &sqlStore{
		db:       db,
		dialect:  databricksDialect{},
		ingester: ingest.NewDatabricksIngester(),
		logger:   logger,
	}, nil
}

// databricksDialect treats Table.Database as the Unity Catalog catalog.
// Unity Catalog stores names in lower case.
type databricksDialect struct{}

func (databricksDialect) quoteIdent(name string) string {
	return quoteWith(name, "`", "`")
}

func (d databricksDialect) tableName(t Table) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Database, t.Schema, t.Name} {
		if p != "" {
			parts = append(parts, d.quoteIdent(p))
		}
	}
	return strings.Join(parts, ".")
}

func (d databricksDialect) infoSchema(t Table) string {
	if t.Database == "" {
		return "information_schema"
	}
	return d.quoteIdent(t.Database) + ".information_schema"
}

func (d databricksDialect) tableExistsQuery(t Table) (string, []interface{}) {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s.tables WHERE table_schema = ? AND table_name = ?", d.infoSchema(t)),
		[]interface{}{strings.ToLower(t.Schema), strings.ToLower(t.Name)}
}

func (d databricksDialect) columnsQuery(t Table) (string, []interface{}) {
	return fmt.Sprintf("SELECT column_name, full_data_type FROM %s.columns WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position", d.infoSchema(t)),
		[]interface{}{strings.ToLower(t.Schema), strings.ToLower(t.Name)}
}

func (d databricksDialect) createTable(t Table, replace bool) []string {
	head := "CREATE TABLE"
	if replace {
		head = "CREATE OR REPLACE TABLE"
	}
	return []string{fmt.Sprintf("%s %s (%s)", head, d.tableName(t), columnDefs(d, t.Columns))}
}

func (d databricksDialect) createTableLike(t, parent Table, replace bool) []string {
	var stmts []string
	if replace {
		stmts = append(stmts, d.dropTable(t))
	}
	return append(stmts, fmt.Sprintf("CREATE TABLE %s LIKE %s", d.tableName(t), d.tableName(parent)))
}

func (d databricksDialect) dropTable(t Table) string {
	return "DROP TABLE IF EXISTS " + d.tableName(t)
}

func (d databricksDialect) truncateTable(t Table) string {
	return "TRUNCATE TABLE " + d.tableName(t)
}

func (d databricksDialect) renameTable(t Table, renameTo string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.tableName(t), d.tableName(t.WithName(renameTo)))
}

func (d databricksDialect) deleteFrom(t Table) (string, string) {
	return fmt.Sprintf("DELETE FROM %s AS tgt", d.tableName(t)), "tgt"
}

func (databricksDialect) matchCondition(left, right string, fn MatchFunc) string {
	switch fn {
	case MatchDay:
		return fmt.Sprintf("date_trunc('DAY', %s) = date_trunc('DAY', %s)", left, right)
	case MatchNullSafe:
		return fmt.Sprintf("%s <=> %s", left, right)
	default:
		return left + " = " + right
	}
}
