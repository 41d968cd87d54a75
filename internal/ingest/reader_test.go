package ingest

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

func readAll(t *testing.T, rr RowReader) [][]interface{} {
	t.Helper()
	var rows [][]interface{}
	for {
		row, err := rr.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
	return rows
}

func TestCSVRowReader(t *testing.T) {
	data := "id,val\n1,a\n2,NULL\n3,\"c,d\"\n"
	rr, err := NewRowReader(strings.NewReader(data), FileProfile{})
	require.NoError(t, err)
	defer rr.Close()

	assert.Equal(t, []string{"id", "val"}, rr.Header())
	rows := readAll(t, rr)
	require.Len(t, rows, 3)
	assert.Equal(t, []interface{}{"1", "a"}, rows[0])
	assert.Equal(t, []interface{}{"2", nil}, rows[1])
	assert.Equal(t, []interface{}{"3", "c,d"}, rows[2])
}

func TestCSVRowReaderNoHeader(t *testing.T) {
	data := "1|x\n2|N/A\n"
	rr, err := NewRowReader(strings.NewReader(data), FileProfile{Delimiter: "|", NoHeader: true})
	require.NoError(t, err)

	assert.Nil(t, rr.Header())
	rows := readAll(t, rr)
	assert.Equal(t, [][]interface{}{{"1", "x"}, {"2", nil}}, rows)
}

func TestCSVRowReaderRejectsCustomQuote(t *testing.T) {
	_, err := NewRowReader(strings.NewReader(""), FileProfile{Quote: "'"})
	require.Error(t, err)
}

type parquetRecord struct {
	ID  int64  `parquet:"name=id, type=INT64"`
	Val string `parquet:"name=val, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func TestParquetRowReader(t *testing.T) {
	var fw source.ParquetFile = buffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(parquetRecord), 1)
	require.NoError(t, err)
	for i, v := range []string{"a", "b", "c"} {
		require.NoError(t, pw.Write(parquetRecord{ID: int64(i + 1), Val: v}))
	}
	require.NoError(t, pw.WriteStop())
	data := fw.(*buffer.BufferFile).Bytes()

	rr, err := NewRowReader(strings.NewReader(string(data)), FileProfile{Format: FormatParquet})
	require.NoError(t, err)
	defer rr.Close()

	header := rr.Header()
	require.Len(t, header, 2)
	assert.True(t, strings.EqualFold("id", header[0]))
	assert.True(t, strings.EqualFold("val", header[1]))

	rows := readAll(t, rr)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(1), rows[0][0])
	assert.Equal(t, "c", rows[2][1])
}

func TestParquetRowReaderFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.parquet")
	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	pw, err := writer.NewParquetWriter(fw, new(parquetRecord), 1)
	require.NoError(t, err)
	for i := 0; i < 2500; i++ {
		require.NoError(t, pw.Write(parquetRecord{ID: int64(i), Val: "x"}))
	}
	require.NoError(t, pw.WriteStop())
	require.NoError(t, fw.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rr, err := NewRowReader(f, FileProfile{Format: FormatParquet})
	require.NoError(t, err)
	rows := readAll(t, rr)
	require.NoError(t, rr.Close())

	require.Len(t, rows, 2500)
	assert.Equal(t, int64(2499), rows[2499][0])
}
