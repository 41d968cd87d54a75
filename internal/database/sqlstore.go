package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gerhard-ee/sqlload/internal/ingest"
)

// sqlStore implements TableStore over database/sql. The dialect supplies
// the SQL text; bulk loads go through the ingester when the backend reads
// staged files itself and through a rowCopier otherwise.
type sqlStore struct {
	db                 *sql.DB
	dialect            dialect
	ingester           ingest.Ingester
	objects            Opener
	storageIntegration string
	logger             *slog.Logger
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...interface{}) error {
	s.logger.Debug("executing statement", "sql", query)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute %q: %w", firstLine(query), err)
	}
	return nil
}

func (s *sqlStore) execAll(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if err := s.exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) TableExists(ctx context.Context, t Table) (bool, error) {
	query, args := s.dialect.tableExistsQuery(t)
	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check whether %s exists: %w", t, err)
	}
	return count > 0, nil
}

func (s *sqlStore) CreateTable(ctx context.Context, t Table, replace bool) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("cannot create %s without columns", t)
	}
	return s.execAll(ctx, s.dialect.createTable(t, replace))
}

func (s *sqlStore) CreateTableLike(ctx context.Context, t, parent Table, replace bool) error {
	return s.execAll(ctx, s.dialect.createTableLike(t, parent, replace))
}

func (s *sqlStore) DropTable(ctx context.Context, t Table) error {
	return s.exec(ctx, s.dialect.dropTable(t))
}

func (s *sqlStore) TruncateTable(ctx context.Context, t Table) error {
	return s.exec(ctx, s.dialect.truncateTable(t))
}

func (s *sqlStore) RenameTable(ctx context.Context, t Table, renameTo string, dropIfExists bool) error {
	dest := t.WithName(renameTo)
	if dropIfExists {
		if err := s.DropTable(ctx, dest); err != nil {
			return err
		}
	} else {
		exists, err := s.TableExists(ctx, dest)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("cannot rename %s to %s because the table already exists", t, dest)
		}
	}
	return s.exec(ctx, s.dialect.renameTable(t, renameTo))
}

func (s *sqlStore) GetColumns(ctx context.Context, t Table) ([]Column, error) {
	query, args := s.dialect.columnsQuery(t)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns of %s: %w", t, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", t, err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get columns of %s: %w", t, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", t)
	}
	return columns, nil
}

func (s *sqlStore) GetTotalRows(ctx context.Context, t Table) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, countSQL(s.dialect, t)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get row count of %s: %w", t, err)
	}
	return count, nil
}

func (s *sqlStore) InsertInto(ctx context.Context, t, from Table, columns, fromColumns []string) error {
	if err := checkInsertColumns(t, from, columns, fromColumns); err != nil {
		return err
	}
	exists, err := s.TableExists(ctx, t)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("cannot insert into %s because it does not exist", t)
	}
	return s.exec(ctx, insertIntoSQL(s.dialect, t, from, columns, fromColumns))
}

func (s *sqlStore) DeleteOverlappingData(ctx context.Context, t, match Table, keys []MatchKey) error {
	if len(keys) == 0 {
		return fmt.Errorf("no overlap keys given for %s", t)
	}
	return s.exec(ctx, deleteOverlappingSQL(s.dialect, t, match, keys))
}

func (s *sqlStore) BulkLoad(ctx context.Context, location string, t Table, columns []Column, profile ingest.FileProfile) error {
	if len(columns) == 0 {
		return fmt.Errorf("no columns given for loading %s", t)
	}
	into, err := loadTargets(t, columns)
	if err != nil {
		return err
	}
	if s.ingester != nil {
		return s.runIngestScript(ctx, location, t, columns, into, profile)
	}
	return s.copyFile(ctx, location, t, columns, into, profile)
}

func (s *sqlStore) runIngestScript(ctx context.Context, location string, t Table, columns, into []Column, profile ingest.FileProfile) error {
	cols := make([]ingest.Column, len(columns))
	for i, c := range columns {
		cols[i] = ingest.Column{Name: into[i].Name, Source: c.Name, Type: c.Type}
	}
	script, err := ingest.Generate(s.ingester, ingest.Request{
		Source:             location,
		Profile:            profile,
		Target:             s.dialect.tableName(t),
		Columns:            cols,
		Resource:           resourceName(t),
		StorageIntegration: s.storageIntegration,
	})
	if err != nil {
		return fmt.Errorf("failed to generate ingest script for %s: %w", t, err)
	}

	// Cleanup runs regardless of how setup and load went
	defer func() {
		for _, stmt := range script.Cleanup {
			if err := s.exec(context.WithoutCancel(ctx), stmt); err != nil {
				s.logger.Warn("ingest cleanup failed", "table", t.String(), "error", err)
			}
		}
	}()

	if err := s.execAll(ctx, script.Setup); err != nil {
		return err
	}
	return s.execAll(ctx, script.Load)
}

func (s *sqlStore) copyFile(ctx context.Context, location string, t Table, columns, into []Column, profile ingest.FileProfile) error {
	copier, ok := s.dialect.(rowCopier)
	if !ok {
		return fmt.Errorf("bulk load is not supported for %s", t)
	}
	if s.objects == nil {
		return fmt.Errorf("no object store available to read %s", location)
	}

	rc, err := s.objects.Open(ctx, location)
	if err != nil {
		return err
	}
	defer rc.Close()

	rows, err := ingest.NewRowReader(rc, profile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", location, err)
	}
	defer rows.Close()

	next, err := projectRows(rows, ColumnNames(columns), profile.Format == ingest.FormatParquet)
	if err != nil {
		return fmt.Errorf("failed to map %s onto %s: %w", location, t, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	n, err := copier.copyRows(ctx, tx, t, ColumnNames(into), next)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to copy %s into %s: %w", location, t, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load of %s: %w", t, err)
	}

	s.logger.Info("copied rows", "table", t.String(), "source", location, "rows", n)
	return nil
}

func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func checkInsertColumns(t, from Table, columns, fromColumns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("no columns given for inserting into %s", t)
	}
	if len(columns) != len(fromColumns) {
		return fmt.Errorf("column count mismatch: %s has %d columns, %s has %d",
			t, len(columns), from, len(fromColumns))
	}
	return nil
}

// resourceName names the transient file format and stage of a bulk load
func resourceName(t Table) string {
	name := "tmp_" + strings.Join([]string{t.Database, t.Schema, t.Name}, "_")
	return strings.Map(func(r rune) rune {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
