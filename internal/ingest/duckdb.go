package ingest

import (
	"fmt"
	"strings"
)

// DuckDBIngester loads staged files with COPY ... FROM, which reads local
// paths directly and remote objects through the httpfs extension.
type DuckDBIngester struct{}

func NewDuckDBIngester() *DuckDBIngester {
	return &DuckDBIngester{}
}

func (d *DuckDBIngester) GenerateCSVIngestScript(req Request) (*Script, error) {
	p := req.Profile
	opts := []string{
		"FORMAT csv",
		fmt.Sprintf("HEADER %t", !p.NoHeader),
		"DELIMITER " + quoteLiteral(p.Delimiter),
		"QUOTE " + quoteLiteral(p.Quote),
	}
	if len(p.NullIf) > 0 {
		// COPY accepts a single null string
		opts = append(opts, "NULLSTR "+quoteLiteral(p.NullIf[0]))
	}
	return d.script(req, opts), nil
}

// GenerateParquetIngestScript selects the file's columns by name, since
// COPY would map Parquet columns by their order in the file.
func (d *DuckDBIngester) GenerateParquetIngestScript(req Request) (*Script, error) {
	selects := make([]string, len(req.Columns))
	for i, c := range req.Columns {
		selects[i] = quoteSnowflake(c.sourceName())
	}
	return d.withHTTPFS(req, fmt.Sprintf("INSERT INTO %s (%s)\nSELECT %s\nFROM read_parquet(%s)",
		req.Target, d.columns(req), strings.Join(selects, ", "), quoteLiteral(LocalPath(req.Source)))), nil
}

func (d *DuckDBIngester) script(req Request, opts []string) *Script {
	return d.withHTTPFS(req, fmt.Sprintf("COPY %s (%s) FROM %s (%s)",
		req.Target, d.columns(req), quoteLiteral(LocalPath(req.Source)), strings.Join(opts, ", ")))
}

func (d *DuckDBIngester) columns(req Request) string {
	cols := make([]string, len(req.Columns))
	for i, c := range req.Columns {
		cols[i] = quoteSnowflake(c.Name)
	}
	return strings.Join(cols, ", ")
}

func (d *DuckDBIngester) withHTTPFS(req Request, load string) *Script {
	s := &Script{Load: []string{load}}
	if isRemote(req.Source) {
		s.Setup = []string{"INSTALL httpfs", "LOAD httpfs"}
	}
	return s
}

func isRemote(uri string) bool {
	for _, scheme := range []string{"s3://", "gs://", "gcs://", "http://", "https://", "azure://"} {
		if strings.HasPrefix(uri, scheme) {
			return true
		}
	}
	return false
}
