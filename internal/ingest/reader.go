package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
)

// RowReader streams the rows of a staged file for backends that load client-side
type RowReader interface {
	// Header returns the column names found in the file, if it has any
	Header() []string
	// Read returns the next row, or io.EOF
	Read() ([]interface{}, error)
	Close() error
}

// NewRowReader opens a reader over r according to the profile
func NewRowReader(r io.Reader, profile FileProfile) (RowReader, error) {
	profile = profile.WithDefaults()
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	switch profile.Format {
	case FormatParquet:
		return newParquetRowReader(r)
	default:
		return newCSVRowReader(r, profile)
	}
}

type csvRowReader struct {
	r       *csv.Reader
	profile FileProfile
	header  []string
}

func newCSVRowReader(r io.Reader, profile FileProfile) (*csvRowReader, error) {
	if profile.Quote != `"` {
		return nil, fmt.Errorf("client-side CSV loads only support the %q quote character, got %q", `"`, profile.Quote)
	}
	cr := csv.NewReader(r)
	cr.Comma = []rune(profile.Delimiter)[0]
	cr.ReuseRecord = false
	// Row width is checked against the target columns by the caller
	cr.FieldsPerRecord = -1

	rr := &csvRowReader{r: cr, profile: profile}
	if !profile.NoHeader {
		header, err := cr.Read()
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read header: %v", err)
		}
		rr.header = header
	}
	return rr, nil
}

func (c *csvRowReader) Header() []string {
	return c.header
}

func (c *csvRowReader) Read() ([]interface{}, error) {
	record, err := c.r.Read()
	if err != nil {
		return nil, err
	}
	row := make([]interface{}, len(record))
	for i, v := range record {
		if c.profile.IsNull(v) {
			row[i] = nil
		} else {
			row[i] = v
		}
	}
	return row, nil
}

func (c *csvRowReader) Close() error {
	return nil
}

const parquetBatchSize = 1024

type parquetRowReader struct {
	file    source.ParquetFile
	pr      *reader.ParquetReader
	header  []string
	remain  int64
	pending []interface{}
}

// parquetSource opens a seekable parquet file over r. Local files are read
// in place. Any other stream is buffered in memory in full, since the footer
// sits at the end of the file.
func parquetSource(r io.Reader) (source.ParquetFile, error) {
	if f, ok := r.(*os.File); ok {
		pf, err := local.NewLocalFileReader(f.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to open parquet file %s: %v", f.Name(), err)
		}
		return pf, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet data: %v", err)
	}
	return buffer.NewBufferFileFromBytes(data), nil
}

func newParquetRowReader(r io.Reader) (*parquetRowReader, error) {
	file, err := parquetSource(r)
	if err != nil {
		return nil, err
	}
	pr, err := reader.NewParquetReader(file, nil, 1)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open parquet reader: %v", err)
	}

	var header []string
	for i, el := range pr.Footer.Schema {
		if i == 0 {
			continue
		}
		if el.NumChildren != nil && *el.NumChildren > 0 {
			pr.ReadStop()
			file.Close()
			return nil, errors.New("nested parquet schemas are not supported")
		}
		header = append(header, el.Name)
	}

	return &parquetRowReader{file: file, pr: pr, header: header, remain: pr.GetNumRows()}, nil
}

func (p *parquetRowReader) Header() []string {
	return p.header
}

func (p *parquetRowReader) Read() ([]interface{}, error) {
	if len(p.pending) == 0 {
		if p.remain <= 0 {
			return nil, io.EOF
		}
		n := p.remain
		if n > parquetBatchSize {
			n = parquetBatchSize
		}
		batch, err := p.pr.ReadByNumber(int(n))
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %v", err)
		}
		if len(batch) == 0 {
			return nil, io.EOF
		}
		p.remain -= int64(len(batch))
		p.pending = batch
	}

	rec := p.pending[0]
	p.pending = p.pending[1:]
	return flattenRecord(rec), nil
}

func (p *parquetRowReader) Close() error {
	p.pr.ReadStop()
	return p.file.Close()
}

// flattenRecord turns a dynamically built parquet row struct into values in
// schema order, dereferencing optional fields.
func flattenRecord(rec interface{}) []interface{} {
	v := reflect.ValueOf(rec)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return []interface{}{rec}
	}
	row := make([]interface{}, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.Ptr {
			if f.IsNil() {
				row[i] = nil
				continue
			}
			f = f.Elem()
		}
		row[i] = f.Interface()
	}
	return row
}
