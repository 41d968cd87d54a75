package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/gerhard-ee/sqlload/internal/database"
	"github.com/gerhard-ee/sqlload/internal/ingest"
)

type fakeTable struct {
	columns []database.Column
	rows    [][]interface{}
}

// fakeStore is an in-memory TableStore that records every call
type fakeStore struct {
	tables map[string]*fakeTable
	files  map[string][][]interface{}
	ops    []string
	fail   map[string]error

	// loadedInto is the table column list of the last bulk load
	loadedInto []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables: make(map[string]*fakeTable),
		files:  make(map[string][][]interface{}),
		fail:   make(map[string]error),
	}
}

func (f *fakeStore) record(op string, t database.Table) error {
	f.ops = append(f.ops, op+" "+t.Name)
	return f.fail[op]
}

func (f *fakeStore) put(t database.Table, columns []database.Column, rows ...[]interface{}) {
	f.tables[t.String()] = &fakeTable{columns: columns, rows: rows}
}

func (f *fakeStore) get(t database.Table) *fakeTable {
	return f.tables[t.String()]
}

func (f *fakeStore) TableExists(ctx context.Context, t database.Table) (bool, error) {
	if err := f.record("exists", t); err != nil {
		return false, err
	}
	return f.get(t) != nil, nil
}

func (f *fakeStore) CreateTable(ctx context.Context, t database.Table, replace bool) error {
	if err := f.record("create", t); err != nil {
		return err
	}
	if f.get(t) != nil && !replace {
		return fmt.Errorf("table %s already exists", t)
	}
	f.put(t, t.Columns)
	return nil
}

func (f *fakeStore) CreateTableLike(ctx context.Context, t, parent database.Table, replace bool) error {
	if err := f.record("create_like", t); err != nil {
		return err
	}
	p := f.get(parent)
	if p == nil {
		return fmt.Errorf("table %s does not exist", parent)
	}
	if f.get(t) != nil && !replace {
		return fmt.Errorf("table %s already exists", t)
	}
	f.put(t, append([]database.Column(nil), p.columns...))
	return nil
}

func (f *fakeStore) DropTable(ctx context.Context, t database.Table) error {
	if err := f.record("drop", t); err != nil {
		return err
	}
	delete(f.tables, t.String())
	return nil
}

func (f *fakeStore) TruncateTable(ctx context.Context, t database.Table) error {
	if err := f.record("truncate", t); err != nil {
		return err
	}
	tbl := f.get(t)
	if tbl == nil {
		return fmt.Errorf("table %s does not exist", t)
	}
	tbl.rows = nil
	return nil
}

func (f *fakeStore) RenameTable(ctx context.Context, t database.Table, renameTo string, dropIfExists bool) error {
	if err := f.record("rename", t); err != nil {
		return err
	}
	src := f.get(t)
	if src == nil {
		return fmt.Errorf("table %s does not exist", t)
	}
	dest := t.WithName(renameTo)
	if f.get(dest) != nil && !dropIfExists {
		return fmt.Errorf("table %s already exists", dest)
	}
	delete(f.tables, t.String())
	f.tables[dest.String()] = src
	return nil
}

func (f *fakeStore) GetColumns(ctx context.Context, t database.Table) ([]database.Column, error) {
	if err := f.record("columns", t); err != nil {
		return nil, err
	}
	tbl := f.get(t)
	if tbl == nil {
		return nil, fmt.Errorf("table %s not found", t)
	}
	return tbl.columns, nil
}

func (f *fakeStore) GetTotalRows(ctx context.Context, t database.Table) (int64, error) {
	tbl := f.get(t)
	if tbl == nil {
		return 0, fmt.Errorf("table %s not found", t)
	}
	return int64(len(tbl.rows)), nil
}

func (f *fakeStore) InsertInto(ctx context.Context, t, from database.Table, columns, fromColumns []string) error {
	if err := f.record("insert", t); err != nil {
		return err
	}
	if len(columns) != len(fromColumns) {
		return fmt.Errorf("column count mismatch")
	}
	dst, src := f.get(t), f.get(from)
	if dst == nil || src == nil {
		return fmt.Errorf("missing table")
	}
	dst.rows = append(dst.rows, src.rows...)
	return nil
}

func (f *fakeStore) DeleteOverlappingData(ctx context.Context, t, match database.Table, keys []database.MatchKey) error {
	if err := f.record("delete_overlap", t); err != nil {
		return err
	}
	dst, src := f.get(t), f.get(match)
	var kept [][]interface{}
	for _, row := range dst.rows {
		overlaps := false
		for _, srow := range src.rows {
			if rowsMatch(dst, src, row, srow, keys) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, row)
		}
	}
	dst.rows = kept
	return nil
}

func (f *fakeStore) BulkLoad(ctx context.Context, location string, t database.Table, columns []database.Column, profile ingest.FileProfile) error {
	if err := f.record("bulk_load", t); err != nil {
		return err
	}
	rows, ok := f.files[location]
	if !ok {
		return fmt.Errorf("no such file %s", location)
	}
	tbl := f.get(t)
	if len(t.Columns) > 0 && len(t.Columns) != len(columns) {
		return fmt.Errorf("file has %d columns but %s has %d", len(columns), t, len(t.Columns))
	}
	f.loadedInto = database.ColumnNames(t.Columns)
	for _, r := range rows {
		if len(r) != len(tbl.columns) {
			return fmt.Errorf("row has %d fields, expected %d", len(r), len(tbl.columns))
		}
	}
	tbl.rows = append(tbl.rows, rows...)
	return nil
}

func (f *fakeStore) Close() error { return nil }

func columnIndex(t *fakeTable, name string) int {
	for i, c := range t.columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

func rowsMatch(dst, src *fakeTable, row, srow []interface{}, keys []database.MatchKey) bool {
	for _, k := range keys {
		a, b := row[columnIndex(dst, k.Column)], srow[columnIndex(src, k.Column)]
		switch k.Func {
		case database.MatchNullSafe:
			if a == nil || b == nil {
				if a != nil || b != nil {
					return false
				}
				continue
			}
		case database.MatchDay:
			if a == nil || b == nil {
				return false
			}
			a, b = fmt.Sprint(a)[:10], fmt.Sprint(b)[:10]
		default:
			if a == nil || b == nil {
				return false
			}
		}
		if a != b {
			return false
		}
	}
	return true
}
