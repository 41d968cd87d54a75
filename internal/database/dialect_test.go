package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	events  = Table{Database: "analytics", Schema: "public", Name: "events"}
	overlap = []MatchKey{
		{Column: "id"},
		{Column: "ts", Func: MatchDay},
		{Column: "region", Func: MatchNullSafe},
	}
)

func TestTableStaging(t *testing.T) {
	stg := events.Staging()
	assert.Equal(t, "analytics.public.STG_events", stg.String())
	assert.Equal(t, "analytics.public.archive", events.WithName("archive").String())
}

func TestTableNames(t *testing.T) {
	tests := []struct {
		name string
		q    queryBuilder
		want string
	}{
		{"snowflake", snowflakeDialect{}, `"ANALYTICS"."PUBLIC"."EVENTS"`},
		{"postgres", postgresDialect{}, `"public"."events"`},
		{"mssql", mssqlDialect{}, `[analytics].[public].[events]`},
		{"duckdb", duckdbDialect{}, `"analytics"."public"."events"`},
		{"databricks", databricksDialect{}, "`analytics`.`public`.`events`"},
		{"sqlite", sqliteDialect{}, `"public"."events"`},
		{"bigquery", bigqueryDialect{}, "`analytics`.`public`.`events`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.tableName(events))
		})
	}
}

func TestSnowflakeDeleteOverlapping(t *testing.T) {
	got := deleteOverlappingSQL(snowflakeDialect{}, events, events.Staging(), overlap)
	want := `DELETE FROM "ANALYTICS"."PUBLIC"."EVENTS"
WHERE EXISTS (
    SELECT 1 FROM "ANALYTICS"."PUBLIC"."STG_EVENTS" AS stg
    WHERE "ANALYTICS"."PUBLIC"."EVENTS"."id" = stg."id"
      AND DATE_TRUNC('day', "ANALYTICS"."PUBLIC"."EVENTS"."ts") = DATE_TRUNC('day', stg."ts")
      AND EQUAL_NULL("ANALYTICS"."PUBLIC"."EVENTS"."region", stg."region")
)`
	assert.Equal(t, want, got)
}

func TestMatchConditions(t *testing.T) {
	tests := []struct {
		name      string
		q         queryBuilder
		day, null string
	}{
		{"postgres", postgresDialect{}, "date_trunc('day', a) = date_trunc('day', b)", "a IS NOT DISTINCT FROM b"},
		{"mssql", mssqlDialect{}, "CAST(a AS DATE) = CAST(b AS DATE)", "(a = b OR (a IS NULL AND b IS NULL))"},
		{"duckdb", duckdbDialect{}, "date_trunc('day', a) = date_trunc('day', b)", "a IS NOT DISTINCT FROM b"},
		{"databricks", databricksDialect{}, "date_trunc('DAY', a) = date_trunc('DAY', b)", "a <=> b"},
		{"sqlite", sqliteDialect{}, "date(a) = date(b)", "a IS b"},
		{"bigquery", bigqueryDialect{}, "DATE(a) = DATE(b)", "a IS NOT DISTINCT FROM b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, "a = b", tt.q.matchCondition("a", "b", MatchEqual))
			assert.Equal(t, tt.day, tt.q.matchCondition("a", "b", MatchDay))
			assert.Equal(t, tt.null, tt.q.matchCondition("a", "b", MatchNullSafe))
		})
	}
}

func TestDeleteOverlappingUsesAlias(t *testing.T) {
	got := deleteOverlappingSQL(mssqlDialect{}, events, events.Staging(), overlap[:1])
	assert.Contains(t, got, "DELETE tgt FROM [analytics].[public].[events] AS tgt")
	assert.Contains(t, got, "WHERE tgt.[id] = stg.[id]")

	got = deleteOverlappingSQL(sqliteDialect{}, events, events.Staging(), overlap[:1])
	assert.Contains(t, got, `DELETE FROM "public"."events"`)
	assert.Contains(t, got, `WHERE "events"."id" = stg."id"`)
}

func TestInsertIntoSQL(t *testing.T) {
	got := insertIntoSQL(postgresDialect{}, events, events.Staging(), []string{"id", "Region"}, []string{"ID", "REGION"})
	assert.Equal(t, `INSERT INTO "public"."events" ("id", "Region")
SELECT "ID", "REGION"
FROM "public"."STG_events"`, got)
}

func TestCreateStatements(t *testing.T) {
	tbl := events
	tbl.Columns = []Column{{Name: "id", Type: "INTEGER"}, {Name: "region", Type: "VARCHAR"}}

	assert.Equal(t, []string{`CREATE OR REPLACE TABLE "ANALYTICS"."PUBLIC"."EVENTS" ("id" INTEGER, "region" VARCHAR)`},
		snowflakeDialect{}.createTable(tbl, true))
	assert.Equal(t, []string{`CREATE OR REPLACE TABLE "ANALYTICS"."PUBLIC"."STG_EVENTS" LIKE "ANALYTICS"."PUBLIC"."EVENTS"`},
		snowflakeDialect{}.createTableLike(tbl.Staging(), tbl, true))
	assert.Equal(t, []string{
		`DROP TABLE IF EXISTS "public"."STG_events"`,
		`CREATE TABLE "public"."STG_events" (LIKE "public"."events" INCLUDING ALL)`,
	}, postgresDialect{}.createTableLike(tbl.Staging(), tbl, true))
	assert.Equal(t, []string{`SELECT TOP 0 * INTO [analytics].[public].[STG_events] FROM [analytics].[public].[events]`},
		mssqlDialect{}.createTableLike(tbl.Staging(), tbl, false))
	assert.Equal(t, `EXEC [analytics].sys.sp_rename N'[public].[STG_events]', N'events'`,
		mssqlDialect{}.renameTable(tbl.Staging(), "events"))
	assert.Equal(t, `ALTER TABLE "ANALYTICS"."PUBLIC"."STG_EVENTS" RENAME TO "ANALYTICS"."PUBLIC"."EVENTS"`,
		snowflakeDialect{}.renameTable(tbl.Staging(), "events"))
}

func TestQuoteIdentEscapes(t *testing.T) {
	assert.Equal(t, `"a""b"`, snowflakeDialect{}.quoteIdent(`a"b`))
	assert.Equal(t, `[a]]b]`, mssqlDialect{}.quoteIdent(`a]b`))
	assert.Equal(t, "`a``b`", databricksDialect{}.quoteIdent("a`b"))
}

func TestResourceName(t *testing.T) {
	assert.Equal(t, "tmp_analytics_public_STG_events", resourceName(events.Staging()))
	assert.Equal(t, "tmp_my_db_public_events", resourceName(Table{Database: "my-db", Schema: "public", Name: "events"}))
}
