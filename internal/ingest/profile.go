package ingest

import (
	"fmt"
	"path"
	"strings"
)

// Format is the on-disk format of a staged file
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// DefaultNullIf are the strings read as NULL when a profile does not set its own
var DefaultNullIf = []string{"NULL", "null", "N/A"}

// FileProfile describes how a staged file is laid out
type FileProfile struct {
	Format    Format   `yaml:"format"`
	Delimiter string   `yaml:"delimiter"`
	NoHeader  bool     `yaml:"no_header"`
	Quote     string   `yaml:"quote"`
	NullIf    []string `yaml:"null_if"`
}

// WithDefaults returns a copy of the profile with empty fields filled in
func (p FileProfile) WithDefaults() FileProfile {
	if p.Format == "" {
		p.Format = FormatCSV
	}
	p.Format = Format(strings.ToLower(string(p.Format)))
	if p.Delimiter == "" {
		p.Delimiter = ","
	}
	if p.Quote == "" {
		p.Quote = `"`
	}
	if p.NullIf == nil {
		p.NullIf = append([]string(nil), DefaultNullIf...)
	}
	return p
}

// Validate checks the profile after defaults are applied
func (p FileProfile) Validate() error {
	switch p.Format {
	case FormatCSV, FormatParquet:
	default:
		return fmt.Errorf("unsupported file format: %s", p.Format)
	}
	if len([]rune(p.Delimiter)) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", p.Delimiter)
	}
	if len([]rune(p.Quote)) != 1 {
		return fmt.Errorf("quote must be a single character, got %q", p.Quote)
	}
	return nil
}

// IsNull reports whether a raw field value should be loaded as NULL
func (p FileProfile) IsNull(v string) bool {
	for _, n := range p.NullIf {
		if v == n {
			return true
		}
	}
	return false
}

// SplitLocation splits a staged file URI into its directory and file name,
// e.g. "s3://bucket/a/b.csv" into "s3://bucket/a" and "b.csv".
func SplitLocation(uri string) (dir, file string) {
	scheme := ""
	rest := uri
	if i := strings.Index(uri, "://"); i >= 0 {
		scheme = uri[:i+3]
		rest = uri[i+3:]
	}
	dir, file = path.Split(rest)
	return scheme + strings.TrimSuffix(dir, "/"), file
}

// LocalPath strips a file:// scheme, leaving other URIs untouched
func LocalPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
