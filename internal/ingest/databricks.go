package ingest

import (
	"fmt"
	"strings"
)

// DatabricksIngester loads staged files with COPY INTO from a path the
// workspace can already read (external location or instance profile).
type DatabricksIngester struct{}

func NewDatabricksIngester() *DatabricksIngester {
	return &DatabricksIngester{}
}

func (d *DatabricksIngester) GenerateCSVIngestScript(req Request) (*Script, error) {
	p := req.Profile
	// Columns are mapped by position; the header row, if any, is skipped.
	selects := make([]string, len(req.Columns))
	for i, c := range req.Columns {
		selects[i] = fmt.Sprintf("CAST(_c%d AS %s) AS %s", i, c.Type, quoteDatabricks(c.Name))
	}
	opts := []string{
		"'header' = 'false'",
		fmt.Sprintf("'sep' = %s", quoteLiteral(p.Delimiter)),
		fmt.Sprintf("'quote' = %s", quoteLiteral(p.Quote)),
	}
	if !p.NoHeader {
		opts = append(opts, "'skipRows' = '1'")
	}
	if len(p.NullIf) > 0 {
		opts = append(opts, fmt.Sprintf("'nullValue' = %s", quoteLiteral(p.NullIf[0])))
	}
	return d.script(req, selects, "CSV", opts), nil
}

func (d *DatabricksIngester) GenerateParquetIngestScript(req Request) (*Script, error) {
	selects := make([]string, len(req.Columns))
	for i, c := range req.Columns {
		selects[i] = fmt.Sprintf("CAST(%s AS %s) AS %s", quoteDatabricks(c.sourceName()), c.Type, quoteDatabricks(c.Name))
	}
	return d.script(req, selects, "PARQUET", nil), nil
}

func (d *DatabricksIngester) script(req Request, selects []string, format string, opts []string) *Script {
	q := fmt.Sprintf("COPY INTO %s\nFROM (SELECT %s\n      FROM %s)\nFILEFORMAT = %s",
		req.Target, strings.Join(selects, ",\n             "), quoteLiteral(req.Source), format)
	if len(opts) > 0 {
		q += fmt.Sprintf("\nFORMAT_OPTIONS (%s)", strings.Join(opts, ", "))
	}
	q += "\nCOPY_OPTIONS ('mergeSchema' = 'false')"
	return &Script{Load: []string{q}}
}

func quoteDatabricks(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
