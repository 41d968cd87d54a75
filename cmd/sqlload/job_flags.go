package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gerhard-ee/sqlload/internal/database"
	"github.com/gerhard-ee/sqlload/internal/ingest"
	"github.com/gerhard-ee/sqlload/internal/loader"
	"github.com/gerhard-ee/sqlload/internal/pipeline"
)

// jobFlags describe a single load on the command line
type jobFlags struct {
	name          string
	source        string
	upload        string
	target        string
	format        string
	delimiter     string
	noHeader      bool
	columns       []string
	overlap       []string
	truncate      bool
	replace       bool
	dependency    bool
	extractScript string
	deleteSource  bool
}

func (f *jobFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.name, "name", "", "Job name recorded with the run")
	fl.StringVarP(&f.source, "source", "s", "", "Location of the staged file (s3://, gs://, azure://, file:// or a local path)")
	fl.StringVar(&f.upload, "upload", "", "Local file uploaded to the source location before loading")
	fl.StringVarP(&f.target, "target", "T", "", "Target table as [database.][schema.]table")
	fl.StringVarP(&f.format, "format", "f", "csv", "File format (csv or parquet)")
	fl.StringVar(&f.delimiter, "delimiter", ",", "CSV field delimiter")
	fl.BoolVar(&f.noHeader, "no-header", false, "CSV files have no header row")
	fl.StringArrayVar(&f.columns, "column", nil, "Column of the file as name:type, repeated in file order")
	fl.StringArrayVarP(&f.overlap, "overlap", "k", nil, "Match key replacing existing rows, e.g. id or trunc(created_at)")
	fl.BoolVar(&f.truncate, "truncate", false, "Empty the target before inserting")
	fl.BoolVar(&f.replace, "replace", false, "Replace the target with the loaded file")
	fl.BoolVar(&f.dependency, "dependency-on-file", false, "Build staging from the file's columns instead of cloning the target")
	fl.StringVar(&f.extractScript, "extract-script", "", "SQL run on the staging table after loading, or @file to read it from a file. {{staging}} names the staging table")
	fl.BoolVar(&f.deleteSource, "delete-source", false, "Delete the staged file after a successful load")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
}

func (f *jobFlags) job() (pipeline.Job, error) {
	schema, err := parseColumns(f.columns)
	if err != nil {
		return pipeline.Job{}, err
	}
	overlap := make([]loader.OverlapColumn, len(f.overlap))
	for i, k := range f.overlap {
		overlap[i] = loader.OverlapColumn(k)
	}
	script := f.extractScript
	if path, ok := strings.CutPrefix(script, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return pipeline.Job{}, fmt.Errorf("failed to read extract script: %w", err)
		}
		script = string(data)
	}
	return pipeline.Job{
		Name:         f.name,
		Upload:       f.upload,
		DeleteSource: f.deleteSource,
		Request: loader.Request{
			Source: f.source,
			Target: parseTable(f.target),
			Profile: ingest.FileProfile{
				Format:    ingest.Format(f.format),
				Delimiter: f.delimiter,
				NoHeader:  f.noHeader,
			},
			DependencyOnFile: f.dependency,
			ExtractScript:    script,
			TruncateTable:    f.truncate,
			ReplaceTable:     f.replace,
			OverlapColumns:   overlap,
		},
		Schema: schema,
	}, nil
}

// parseTable splits [database.][schema.]table
func parseTable(s string) database.Table {
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1:
		return database.Table{Name: parts[0]}
	case 2:
		return database.Table{Schema: parts[0], Name: parts[1]}
	default:
		return database.Table{
			Database: strings.Join(parts[:len(parts)-2], "."),
			Schema:   parts[len(parts)-2],
			Name:     parts[len(parts)-1],
		}
	}
}

// parseColumns reads name:type pairs. Types may contain colons and commas.
func parseColumns(specs []string) ([]database.Column, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	cols := make([]database.Column, 0, len(specs))
	for _, s := range specs {
		name, typ, ok := strings.Cut(s, ":")
		name, typ = strings.TrimSpace(name), strings.TrimSpace(typ)
		if !ok || name == "" || typ == "" {
			return nil, fmt.Errorf("invalid column %q: expected name:type", s)
		}
		cols = append(cols, database.Column{Name: name, Type: typ})
	}
	return cols, nil
}
