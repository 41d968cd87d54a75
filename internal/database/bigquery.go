package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/gerhard-ee/sqlload/internal/config"
	"github.com/gerhard-ee/sqlload/internal/ingest"
)

// BigQueryStore implements TableStore with the BigQuery API. Table.Database
// is the project and Table.Schema the dataset. Staged files must live in GCS.
type BigQueryStore struct {
	client   *bigquery.Client
	project  string
	location string
	logger   *slog.Logger
}

func NewBigQuery(ctx context.Context, cfg *config.Config, logger *slog.Logger) (TableStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %v", err)
	}

	return &BigQueryStore{
		client:   client,
		project:  cfg.ProjectID,
		location: cfg.Location,
		logger:   logger,
	}, nil
}

func (b *BigQueryStore) table(t Table) *bigquery.Table {
	project := t.Database
	if project == "" {
		project = b.project
	}
	return b.client.DatasetInProject(project, t.Schema).Table(t.Name)
}

func (b *BigQueryStore) qualify(t Table) Table {
	if t.Database == "" {
		t.Database = b.project
	}
	return t
}

// run executes a statement and waits for the job to finish
func (b *BigQueryStore) run(ctx context.Context, query string) error {
	b.logger.Debug("executing statement", "sql", query)
	q := b.client.Query(query)
	q.Location = b.location

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for query: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func (b *BigQueryStore) TableExists(ctx context.Context, t Table) (bool, error) {
	_, err := b.table(t).Metadata(ctx)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check whether %s exists: %w", t, err)
}

func bigquerySchema(columns []Column) bigquery.Schema {
	schema := make(bigquery.Schema, len(columns))
	for i, c := range columns {
		schema[i] = &bigquery.FieldSchema{
			Name: c.Name,
			Type: bigquery.FieldType(strings.ToUpper(c.Type)),
		}
	}
	return schema
}

func (b *BigQueryStore) create(ctx context.Context, t Table, schema bigquery.Schema, replace bool) error {
	if replace {
		if err := b.DropTable(ctx, t); err != nil {
			return err
		}
	}
	if err := b.table(t).Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return fmt.Errorf("failed to create %s: %w", t, err)
	}
	return nil
}

func (b *BigQueryStore) CreateTable(ctx context.Context, t Table, replace bool) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("cannot create %s without columns", t)
	}
	return b.create(ctx, t, bigquerySchema(t.Columns), replace)
}

func (b *BigQueryStore) CreateTableLike(ctx context.Context, t, parent Table, replace bool) error {
	meta, err := b.table(parent).Metadata(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema of %s: %w", parent, err)
	}
	return b.create(ctx, t, meta.Schema, replace)
}

func (b *BigQueryStore) DropTable(ctx context.Context, t Table) error {
	if err := b.table(t).Delete(ctx); err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to drop %s: %w", t, err)
	}
	return nil
}

func (b *BigQueryStore) TruncateTable(ctx context.Context, t Table) error {
	return b.run(ctx, "TRUNCATE TABLE "+bigqueryDialect{}.tableName(b.qualify(t)))
}

func (b *BigQueryStore) RenameTable(ctx context.Context, t Table, renameTo string, dropIfExists bool) error {
	dest := t.WithName(renameTo)
	if dropIfExists {
		if err := b.DropTable(ctx, dest); err != nil {
			return err
		}
	} else {
		exists, err := b.TableExists(ctx, dest)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("cannot rename %s to %s because the table already exists", t, dest)
		}
	}
	d := bigqueryDialect{}
	return b.run(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.tableName(b.qualify(t)), d.quoteIdent(renameTo)))
}

func (b *BigQueryStore) GetColumns(ctx context.Context, t Table) ([]Column, error) {
	meta, err := b.table(t).Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns of %s: %w", t, err)
	}
	columns := make([]Column, len(meta.Schema))
	for i, f := range meta.Schema {
		columns[i] = Column{Name: f.Name, Type: string(f.Type)}
	}
	return columns, nil
}

func (b *BigQueryStore) GetTotalRows(ctx context.Context, t Table) (int64, error) {
	q := b.client.Query(countSQL(bigqueryDialect{}, b.qualify(t)))
	q.Location = b.location
	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get row count of %s: %w", t, err)
	}
	var row []bigquery.Value
	if err := it.Next(&row); err != nil {
		if err == iterator.Done {
			return 0, fmt.Errorf("no row count returned for %s", t)
		}
		return 0, fmt.Errorf("failed to read row count of %s: %w", t, err)
	}
	count, ok := row[0].(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected row count type %T for %s", row[0], t)
	}
	return count, nil
}

func (b *BigQueryStore) InsertInto(ctx context.Context, t, from Table, columns, fromColumns []string) error {
	if err := checkInsertColumns(t, from, columns, fromColumns); err != nil {
		return err
	}
	exists, err := b.TableExists(ctx, t)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("cannot insert into %s because it does not exist", t)
	}
	return b.run(ctx, insertIntoSQL(bigqueryDialect{}, b.qualify(t), b.qualify(from), columns, fromColumns))
}

func (b *BigQueryStore) DeleteOverlappingData(ctx context.Context, t, match Table, keys []MatchKey) error {
	if len(keys) == 0 {
		return fmt.Errorf("no overlap keys given for %s", t)
	}
	return b.run(ctx, deleteOverlappingSQL(bigqueryDialect{}, b.qualify(t), b.qualify(match), keys))
}

// BulkLoad runs a load job from GCS. CSV fields load by position under the
// table's column names. Only the first NULL marker of the profile is
// honoured since BigQuery accepts a single one.
func (b *BigQueryStore) BulkLoad(ctx context.Context, location string, t Table, columns []Column, profile ingest.FileProfile) error {
	if !strings.HasPrefix(location, "gs://") {
		return fmt.Errorf("BigQuery loads require a gs:// location, got %s", location)
	}
	profile = profile.WithDefaults()
	if err := profile.Validate(); err != nil {
		return err
	}
	into, err := loadTargets(t, columns)
	if err != nil {
		return err
	}

	ref := bigquery.NewGCSReference(location)
	switch profile.Format {
	case ingest.FormatParquet:
		ref.SourceFormat = bigquery.Parquet
		// Load jobs match Parquet columns by name, not position
		for i, c := range columns {
			if !strings.EqualFold(c.Name, into[i].Name) {
				return fmt.Errorf("BigQuery loads Parquet columns by name: file column %s cannot load into %s.%s", c.Name, t, into[i].Name)
			}
		}
	default:
		ref.SourceFormat = bigquery.CSV
		ref.FieldDelimiter = profile.Delimiter
		ref.Quote = profile.Quote
		if !profile.NoHeader {
			ref.SkipLeadingRows = 1
		}
		if len(profile.NullIf) > 0 {
			ref.NullMarker = profile.NullIf[0]
		}
		ref.Schema = bigquerySchema(into)
	}

	loader := b.table(t).LoaderFrom(ref)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.Location = b.location

	b.logger.Debug("starting load job", "table", t.String(), "source", location)
	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to start load job for %s: %w", t, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for load job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load job failed: %w", err)
	}
	return nil
}

func (b *BigQueryStore) Close() error {
	return b.client.Close()
}

type bigqueryDialect struct{}

func (bigqueryDialect) quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

func (d bigqueryDialect) tableName(t Table) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Database, t.Schema, t.Name} {
		if p != "" {
			parts = append(parts, d.quoteIdent(p))
		}
	}
	return strings.Join(parts, ".")
}

func (d bigqueryDialect) deleteFrom(t Table) (string, string) {
	return fmt.Sprintf("DELETE FROM %s AS tgt", d.tableName(t)), "tgt"
}

func (bigqueryDialect) matchCondition(left, right string, fn MatchFunc) string {
	switch fn {
	case MatchDay:
		return fmt.Sprintf("DATE(%s) = DATE(%s)", left, right)
	case MatchNullSafe:
		return fmt.Sprintf("%s IS NOT DISTINCT FROM %s", left, right)
	default:
		return left + " = " + right
	}
}
