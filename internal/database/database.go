package database

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gerhard-ee/sqlload/internal/config"
	"github.com/gerhard-ee/sqlload/internal/ingest"
)

// StagingPrefix is prepended to a target name to form its staging table
const StagingPrefix = "STG_"

// Column is a named, typed column
type Column struct {
	Name string `yaml:"name"`
	Type string `yaml:"dtype"`
}

// Table is a fully qualified table reference. Columns is consulted by
// CreateTable for the definition and by BulkLoad as the columns the file's
// columns load into, by position.
type Table struct {
	Database string   `yaml:"database"`
	Schema   string   `yaml:"schema"`
	Name     string   `yaml:"name"`
	Columns  []Column `yaml:"columns,omitempty"`
}

func (t Table) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Database, t.Schema, t.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// WithName returns a reference to a sibling table in the same schema
func (t Table) WithName(name string) Table {
	return Table{Database: t.Database, Schema: t.Schema, Name: name}
}

// Staging returns the staging table used while loading into t
func (t Table) Staging() Table {
	return t.WithName(StagingPrefix + t.Name)
}

// ColumnNames returns the column names in order
func ColumnNames(columns []Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

// TableStore is the set of table operations the loader needs from a warehouse
type TableStore interface {
	// TableExists reports whether the table is present
	TableExists(ctx context.Context, t Table) (bool, error)
	// CreateTable creates t from t.Columns, replacing an existing table when replace is set
	CreateTable(ctx context.Context, t Table, replace bool) error
	// CreateTableLike creates t with the structure of parent
	CreateTableLike(ctx context.Context, t, parent Table, replace bool) error
	// DropTable drops t if it exists
	DropTable(ctx context.Context, t Table) error
	// TruncateTable removes every row from t
	TruncateTable(ctx context.Context, t Table) error
	// RenameTable renames t within its schema. An existing table named
	// renameTo is dropped first when dropIfExists is set, otherwise it is an error.
	RenameTable(ctx context.Context, t Table, renameTo string, dropIfExists bool) error
	// GetColumns returns the ordered columns of t
	GetColumns(ctx context.Context, t Table) ([]Column, error)
	// GetTotalRows returns the number of rows in t
	GetTotalRows(ctx context.Context, t Table) (int64, error)
	// InsertInto appends the rows of from into t, mapping columns by position
	InsertInto(ctx context.Context, t, from Table, columns, fromColumns []string) error
	// DeleteOverlappingData deletes rows of t that have a match in match on every key
	DeleteOverlappingData(ctx context.Context, t, match Table, keys []MatchKey) error
	// BulkLoad copies the file at location into t. columns describe the file;
	// they load by position into t.Columns, or into same-named columns when
	// t.Columns is empty.
	BulkLoad(ctx context.Context, location string, t Table, columns []Column, profile ingest.FileProfile) error
	// Close releases the connection
	Close() error
}

// loadTargets pairs file columns with the table columns they load into
func loadTargets(t Table, columns []Column) ([]Column, error) {
	if len(t.Columns) == 0 {
		return columns, nil
	}
	if len(t.Columns) != len(columns) {
		return nil, fmt.Errorf("file has %d columns but %s has %d", len(columns), t, len(t.Columns))
	}
	return t.Columns, nil
}

// Opener opens staged files for stores that load rows client side
type Opener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// NewTableStore creates a table store based on the configured type
func NewTableStore(ctx context.Context, cfg *config.Config, objects Opener, logger *slog.Logger) (TableStore, error) {
	logger = logger.With("store", cfg.Type)
	switch cfg.Type {
	case "snowflake":
		return NewSnowflake(ctx, cfg, logger)
	case "postgres":
		return NewPostgres(ctx, cfg, objects, logger)
	case "mssql":
		return NewMSSQL(ctx, cfg, objects, logger)
	case "duckdb":
		return NewDuckDB(ctx, cfg, logger)
	case "databricks":
		return NewDatabricks(ctx, cfg, logger)
	case "sqlite":
		return NewSQLite(ctx, cfg, objects, logger)
	case "bigquery":
		return NewBigQuery(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}
