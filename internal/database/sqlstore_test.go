package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gerhard-ee/sqlload/internal/ingest"
)

func newMockStore(t *testing.T, d dialect, ing ingest.Ingester) (*sqlStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &sqlStore{
		db:                 db,
		dialect:            d,
		ingester:           ing,
		storageIntegration: "LANDING",
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, mock
}

func TestTableExists(t *testing.T) {
	store, mock := newMockStore(t, snowflakeDialect{}, nil)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "ANALYTICS".INFORMATION_SCHEMA.TABLES`).
		WithArgs("PUBLIC", "EVENTS").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := store.TableExists(context.Background(), events)
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRenameTableRefusesExistingTarget(t *testing.T) {
	store, mock := newMockStore(t, postgresDialect{}, nil)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM information_schema.tables`).
		WithArgs("public", "events").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := store.RenameTable(context.Background(), events.Staging(), "events", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRenameTableDropsExistingTarget(t *testing.T) {
	store, mock := newMockStore(t, postgresDialect{}, nil)
	mock.ExpectExec(`DROP TABLE IF EXISTS "public"."events"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ALTER TABLE "public"."STG_events" RENAME TO "events"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.RenameTable(context.Background(), events.Staging(), "events", true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetColumns(t *testing.T) {
	store, mock := newMockStore(t, postgresDialect{}, nil)
	mock.ExpectQuery(`SELECT column_name, data_type FROM information_schema.columns`).
		WithArgs("public", "events").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("id", "integer").
			AddRow("Region", "text"))

	cols, err := store.GetColumns(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, []Column{{Name: "id", Type: "integer"}, {Name: "Region", Type: "text"}}, cols)

	mock.ExpectQuery(`SELECT column_name, data_type FROM information_schema.columns`).
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}))
	_, err = store.GetColumns(context.Background(), events.WithName("missing"))
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIntoChecksColumnsAndTarget(t *testing.T) {
	store, mock := newMockStore(t, postgresDialect{}, nil)
	ctx := context.Background()

	err := store.InsertInto(ctx, events, events.Staging(), []string{"id", "region"}, []string{"id"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column count mismatch")

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM information_schema.tables`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	err = store.InsertInto(ctx, events, events.Staging(), []string{"id"}, []string{"id"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM information_schema.tables`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO "public"."events"`).WillReturnResult(sqlmock.NewResult(0, 3))
	require.NoError(t, store.InsertInto(ctx, events, events.Staging(), []string{"id"}, []string{"id"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOverlappingRequiresKeys(t *testing.T) {
	store, mock := newMockStore(t, postgresDialect{}, nil)
	require.Error(t, store.DeleteOverlappingData(context.Background(), events, events.Staging(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkLoadRunsCleanupAfterFailedCopy(t *testing.T) {
	store, mock := newMockStore(t, snowflakeDialect{}, ingest.NewSnowflakeIngester())
	mock.ExpectExec(`CREATE OR REPLACE FILE FORMAT tmp_analytics_public_STG_events`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE OR REPLACE STAGE tmp_analytics_public_STG_events`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`COPY INTO "ANALYTICS"."PUBLIC"."STG_EVENTS"`).WillReturnError(errors.New("file not found"))
	mock.ExpectExec(`DROP STAGE IF EXISTS tmp_analytics_public_STG_events`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DROP FILE FORMAT IF EXISTS tmp_analytics_public_STG_events`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.BulkLoad(context.Background(), "s3://landing/events.csv", events.Staging(),
		[]Column{{Name: "id", Type: "NUMBER"}}, ingest.FileProfile{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkLoadWithoutCopierOrObjects(t *testing.T) {
	store, _ := newMockStore(t, snowflakeDialect{}, nil)
	err := store.BulkLoad(context.Background(), "s3://landing/events.csv", events, []Column{{Name: "id"}}, ingest.FileProfile{})
	require.Error(t, err)

	store, _ = newMockStore(t, postgresDialect{}, nil)
	err = store.BulkLoad(context.Background(), "s3://landing/events.csv", events, []Column{{Name: "id"}}, ingest.FileProfile{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no object store")
}
