package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// SnowflakeIngester loads staged files through a temporary file format and an
// external stage pointed at the file's directory.
type SnowflakeIngester struct{}

func NewSnowflakeIngester() *SnowflakeIngester {
	return &SnowflakeIngester{}
}

func (s *SnowflakeIngester) GenerateCSVIngestScript(req Request) (*Script, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	p := req.Profile

	var ff strings.Builder
	fmt.Fprintf(&ff, "CREATE OR REPLACE FILE FORMAT %s\n", req.Resource)
	ff.WriteString("    TYPE = CSV\n")
	fmt.Fprintf(&ff, "    FIELD_DELIMITER = %s\n", quoteLiteral(p.Delimiter))
	fmt.Fprintf(&ff, "    FIELD_OPTIONALLY_ENCLOSED_BY = %s\n", quoteLiteral(p.Quote))
	fmt.Fprintf(&ff, "    NULL_IF = (%s)", joinLiterals(p.NullIf))
	if !p.NoHeader {
		ff.WriteString("\n    SKIP_HEADER = 1")
	}

	selects := make([]string, len(req.Columns))
	for i := range req.Columns {
		selects[i] = fmt.Sprintf("$%d", i+1)
	}
	return s.script(req, ff.String(), selects), nil
}

func (s *SnowflakeIngester) GenerateParquetIngestScript(req Request) (*Script, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	ff := fmt.Sprintf("CREATE OR REPLACE FILE FORMAT %s\n    TYPE = PARQUET", req.Resource)

	selects := make([]string, len(req.Columns))
	for i, c := range req.Columns {
		selects[i] = fmt.Sprintf(`$1:%s::%s`, quoteSnowflake(c.sourceName()), c.Type)
	}
	return s.script(req, ff, selects), nil
}

func (s *SnowflakeIngester) check(req Request) error {
	if req.Resource == "" {
		return errors.New("snowflake ingest needs a transient resource name")
	}
	if req.StorageIntegration == "" {
		return errors.New("snowflake ingest needs a storage integration")
	}
	return nil
}

func (s *SnowflakeIngester) script(req Request, fileFormat string, selects []string) *Script {
	dir, file := SplitLocation(req.Source)
	stage := fmt.Sprintf("CREATE OR REPLACE STAGE %s\n    STORAGE_INTEGRATION = %s\n    URL = %s\n    FILE_FORMAT = %s",
		req.Resource, req.StorageIntegration, quoteLiteral(dir+"/"), req.Resource)

	cols := make([]string, len(req.Columns))
	for i, c := range req.Columns {
		cols[i] = quoteSnowflake(c.Name)
	}
	copyInto := fmt.Sprintf("COPY INTO %s (%s)\n    FROM (SELECT %s\n          FROM @%s/%s)\n    FILE_FORMAT = (FORMAT_NAME = %s)\n    ON_ERROR = 'ABORT_STATEMENT'\n    PURGE = FALSE",
		req.Target, strings.Join(cols, ", "), strings.Join(selects, ",\n                 "),
		req.Resource, file, quoteLiteral(req.Resource))

	return &Script{
		Setup: []string{fileFormat, stage},
		Load:  []string{copyInto},
		Cleanup: []string{
			fmt.Sprintf("DROP STAGE IF EXISTS %s", req.Resource),
			fmt.Sprintf("DROP FILE FORMAT IF EXISTS %s", req.Resource),
		},
	}
}

func quoteSnowflake(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func joinLiterals(values []string) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = quoteLiteral(v)
	}
	return strings.Join(out, ", ")
}
