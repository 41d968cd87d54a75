package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() Request {
	return Request{
		Source:             "s3://landing/events/2024/events.csv",
		Target:             `"ANALYTICS"."PUBLIC"."STG_EVENTS"`,
		Columns:            []Column{{Name: "id", Type: "INTEGER"}, {Name: "val", Type: "STRING"}},
		Resource:           "tmp_ANALYTICS_PUBLIC_EVENTS",
		StorageIntegration: "LANDING_INTEGRATION",
	}
}

func TestIngestionScripts(t *testing.T) {
	databases := []struct {
		name   string
		dbType string
	}{
		{"Snowflake", "snowflake"},
		{"DuckDB", "duckdb"},
		{"Databricks", "databricks"},
	}

	for _, db := range databases {
		t.Run(db.name, func(t *testing.T) {
			ingester, err := NewIngester(db.dbType)
			require.NoError(t, err)

			req := testRequest()
			script, err := Generate(ingester, req)
			require.NoError(t, err)
			require.NotEmpty(t, script.Load)
			assert.Contains(t, script.String(), req.Target)

			req.Profile.Format = FormatParquet
			script, err = Generate(ingester, req)
			require.NoError(t, err)
			require.NotEmpty(t, script.Load)
		})
	}
}

func TestClientSideBackends(t *testing.T) {
	for _, dbType := range []string{"postgres", "mssql", "sqlite", "bigquery"} {
		_, err := NewIngester(dbType)
		assert.True(t, errors.Is(err, ErrClientSide), dbType)
	}

	_, err := NewIngester("invalid_db")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrClientSide))
}

func TestSnowflakeScriptContent(t *testing.T) {
	script, err := Generate(NewSnowflakeIngester(), testRequest())
	require.NoError(t, err)

	require.Len(t, script.Setup, 2)
	assert.Contains(t, script.Setup[0], "CREATE OR REPLACE FILE FORMAT tmp_ANALYTICS_PUBLIC_EVENTS")
	assert.Contains(t, script.Setup[0], "SKIP_HEADER = 1")
	assert.Contains(t, script.Setup[0], "NULL_IF = ('NULL', 'null', 'N/A')")
	assert.Contains(t, script.Setup[1], "STORAGE_INTEGRATION = LANDING_INTEGRATION")
	assert.Contains(t, script.Setup[1], "URL = 's3://landing/events/2024/'")

	require.Len(t, script.Load, 1)
	for _, element := range []string{
		`COPY INTO "ANALYTICS"."PUBLIC"."STG_EVENTS" ("id", "val")`,
		"$1,",
		"$2",
		"FROM @tmp_ANALYTICS_PUBLIC_EVENTS/events.csv",
		"ON_ERROR = 'ABORT_STATEMENT'",
		"PURGE = FALSE",
	} {
		assert.Contains(t, script.Load[0], element)
	}

	assert.Equal(t, []string{
		"DROP STAGE IF EXISTS tmp_ANALYTICS_PUBLIC_EVENTS",
		"DROP FILE FORMAT IF EXISTS tmp_ANALYTICS_PUBLIC_EVENTS",
	}, script.Cleanup)
}

func TestSnowflakeParquetSelectsByName(t *testing.T) {
	req := testRequest()
	req.Profile.Format = FormatParquet
	script, err := Generate(NewSnowflakeIngester(), req)
	require.NoError(t, err)

	assert.Contains(t, script.Setup[0], "TYPE = PARQUET")
	assert.Contains(t, script.Load[0], `$1:"id"::INTEGER`)
	assert.Contains(t, script.Load[0], `$1:"val"::STRING`)
}

func TestRenamedColumnsLoadByPosition(t *testing.T) {
	req := testRequest()
	req.Columns = []Column{
		{Name: "ID", Source: "event_id", Type: "INTEGER"},
		{Name: "VAL", Source: "label", Type: "STRING"},
	}

	script, err := Generate(NewSnowflakeIngester(), req)
	require.NoError(t, err)
	assert.Contains(t, script.Load[0], `COPY INTO "ANALYTICS"."PUBLIC"."STG_EVENTS" ("ID", "VAL")`)
	assert.NotContains(t, script.Load[0], "event_id")

	req.Profile.Format = FormatParquet
	script, err = Generate(NewSnowflakeIngester(), req)
	require.NoError(t, err)
	assert.Contains(t, script.Load[0], `("ID", "VAL")`)
	assert.Contains(t, script.Load[0], `$1:"event_id"::INTEGER`)
	assert.Contains(t, script.Load[0], `$1:"label"::STRING`)

	script, err = Generate(NewDatabricksIngester(), req)
	require.NoError(t, err)
	assert.Contains(t, script.Load[0], "CAST(`event_id` AS INTEGER) AS `ID`")

	req.Source = "/tmp/events.parquet"
	req.Target = `"main"."STG_EVENTS"`
	script, err = Generate(NewDuckDBIngester(), req)
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO \"main\".\"STG_EVENTS\" (\"ID\", \"VAL\")\nSELECT \"event_id\", \"label\"\nFROM read_parquet('/tmp/events.parquet')",
		script.Load[0])
}

func TestSnowflakeRequiresIntegration(t *testing.T) {
	req := testRequest()
	req.StorageIntegration = ""
	_, err := Generate(NewSnowflakeIngester(), req)
	require.Error(t, err)
}

func TestDuckDBScript(t *testing.T) {
	req := testRequest()
	req.Source = "file:///tmp/events.csv"
	req.Target = `"main"."STG_EVENTS"`
	script, err := Generate(NewDuckDBIngester(), req)
	require.NoError(t, err)

	assert.Empty(t, script.Setup)
	assert.Equal(t,
		`COPY "main"."STG_EVENTS" ("id", "val") FROM '/tmp/events.csv' (FORMAT csv, HEADER true, DELIMITER ',', QUOTE '"', NULLSTR 'NULL')`,
		script.Load[0])

	req.Source = "s3://landing/events.csv"
	script, err = Generate(NewDuckDBIngester(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"INSTALL httpfs", "LOAD httpfs"}, script.Setup)
}

func TestDatabricksScript(t *testing.T) {
	req := testRequest()
	req.Target = "`main`.`analytics`.`STG_EVENTS`"
	script, err := Generate(NewDatabricksIngester(), req)
	require.NoError(t, err)

	q := script.Load[0]
	assert.True(t, strings.HasPrefix(q, "COPY INTO `main`.`analytics`.`STG_EVENTS`"))
	assert.Contains(t, q, "CAST(_c0 AS INTEGER) AS `id`")
	assert.Contains(t, q, "CAST(_c1 AS STRING) AS `val`")
	assert.Contains(t, q, "'skipRows' = '1'")
	assert.Contains(t, q, "FILEFORMAT = CSV")
}

func TestGenerateValidation(t *testing.T) {
	req := testRequest()
	req.Columns = nil
	_, err := Generate(NewDuckDBIngester(), req)
	require.Error(t, err)

	req = testRequest()
	req.Profile.Format = "xlsx"
	_, err = Generate(NewDuckDBIngester(), req)
	require.Error(t, err)

	_, err = Generate(nil, testRequest())
	require.Error(t, err)
}

func TestSplitLocation(t *testing.T) {
	tests := []struct {
		uri  string
		dir  string
		file string
	}{
		{"s3://bucket/a/b/file.csv", "s3://bucket/a/b", "file.csv"},
		{"s3://bucket/file.csv", "s3://bucket", "file.csv"},
		{"/tmp/data/file.csv", "/tmp/data", "file.csv"},
		{"file.csv", "", "file.csv"},
	}
	for _, tt := range tests {
		dir, file := SplitLocation(tt.uri)
		assert.Equal(t, tt.dir, dir, tt.uri)
		assert.Equal(t, tt.file, file, tt.uri)
	}
}
