package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Column is a column of the staged file and the table column it loads into.
// Files are loaded by position; Source is only read for formats that carry
// column names.
type Column struct {
	// Name is the table column
	Name string
	// Source is the column name in the file, Name when empty
	Source string
	Type   string
}

func (c Column) sourceName() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Name
}

// Request describes one staged file to copy into one table
type Request struct {
	// Source is the URI of the staged file
	Source  string
	Profile FileProfile
	// Target is the fully qualified, already quoted table name
	Target  string
	Columns []Column

	// Resource names the transient file format and stage, where the backend needs them
	Resource           string
	StorageIntegration string
}

// Script is the statement sequence that performs a bulk load. Cleanup runs
// whether or not Load succeeded.
type Script struct {
	Setup   []string
	Load    []string
	Cleanup []string
}

// Statements returns every statement in execution order
func (s *Script) Statements() []string {
	out := make([]string, 0, len(s.Setup)+len(s.Load)+len(s.Cleanup))
	out = append(out, s.Setup...)
	out = append(out, s.Load...)
	return append(out, s.Cleanup...)
}

func (s *Script) String() string {
	return strings.Join(s.Statements(), ";\n") + ";"
}

// Ingester defines the interface for generating ingestion scripts
type Ingester interface {
	// GenerateCSVIngestScript generates a script to ingest CSV data
	GenerateCSVIngestScript(req Request) (*Script, error)

	// GenerateParquetIngestScript generates a script to ingest Parquet data
	GenerateParquetIngestScript(req Request) (*Script, error)
}

// ErrClientSide is returned for backends that cannot read staged files
// server-side; their stores stream rows through a RowReader instead.
var ErrClientSide = errors.New("backend loads staged files client-side")

// NewIngester creates a new ingester based on the database type
func NewIngester(dbType string) (Ingester, error) {
	switch dbType {
	case "snowflake":
		return NewSnowflakeIngester(), nil
	case "duckdb":
		return NewDuckDBIngester(), nil
	case "databricks":
		return NewDatabricksIngester(), nil
	case "postgres", "mssql", "sqlite", "bigquery":
		return nil, fmt.Errorf("%s: %w", dbType, ErrClientSide)
	default:
		return nil, fmt.Errorf("unsupported database type for ingestion: %s", dbType)
	}
}

// Generate validates the request and dispatches on the profile's format
func Generate(i Ingester, req Request) (*Script, error) {
	if i == nil {
		return nil, errors.New("no ingester")
	}
	req.Profile = req.Profile.WithDefaults()
	if err := req.Profile.Validate(); err != nil {
		return nil, err
	}
	if req.Source == "" {
		return nil, errors.New("source location is required")
	}
	if len(req.Columns) == 0 {
		return nil, errors.New("at least one column is required")
	}
	switch req.Profile.Format {
	case FormatParquet:
		return i.GenerateParquetIngestScript(req)
	default:
		return i.GenerateCSVIngestScript(req)
	}
}
