package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gerhard-ee/sqlload/internal/database"
	"github.com/gerhard-ee/sqlload/internal/state"
)

type env struct {
	dir string
	db  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	return &env{dir: dir, db: filepath.Join(dir, "warehouse.db")}
}

// execute runs the CLI against the env's SQLite database with file backed state
func (e *env) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	base := []string{
		"--type", "sqlite",
		"--database", e.db,
		"--state-type", "file",
		"--state-dir", filepath.Join(e.dir, "state"),
		"--log-level", "error",
	}
	cmd.SetArgs(append(args[:1:1], append(base, args[1:]...)...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *env) write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func (e *env) count(t *testing.T, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", e.db)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "`+table+`"`).Scan(&n))
	return n
}

func TestLoadCommand(t *testing.T) {
	e := newEnv(t)
	src := e.write(t, "events.csv", "id,val\n1,a\n2,b\n3,c\n")

	out, err := e.execute(t, "load",
		"--source", src,
		"--target", "events",
		"--column", "id:INTEGER",
		"--column", "val:TEXT",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "completed (RENAME), 3 rows")
	assert.Contains(t, out, "Loaded "+src+" into events")
	assert.Equal(t, 3, e.count(t, "events"))

	src2 := e.write(t, "events2.csv", "id,val\n3,C\n4,d\n")
	out, err = e.execute(t, "load", "-s", src2, "-T", "events", "-k", "id",
		"--column", "id:INTEGER", "--column", "val:TEXT")
	require.NoError(t, err)
	assert.Contains(t, out, "completed (INSERT_AND_DROP), 4 rows")
	assert.Equal(t, 4, e.count(t, "events"))
}

func TestLoadCommandExtractScriptAndDeleteSource(t *testing.T) {
	e := newEnv(t)
	src := e.write(t, "events.csv", "id,val\n1,a\n2,NULL\n3,c\n")
	script := e.write(t, "clean.sql", "DELETE FROM {{staging}} WHERE val IS NULL;\n")

	out, err := e.execute(t, "load", "-s", src, "-T", "events",
		"--column", "id:INTEGER", "--column", "val:TEXT",
		"--extract-script", "@"+script,
		"--delete-source",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "completed (RENAME), 2 rows")
	assert.Equal(t, 2, e.count(t, "events"))
	assert.NoFileExists(t, src)

	_, err = e.execute(t, "load", "-s", src, "-T", "events", "--column", "id:INTEGER",
		"--extract-script", "@"+filepath.Join(e.dir, "missing.sql"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read extract script")
}

func TestLoadCommandFailure(t *testing.T) {
	e := newEnv(t)
	src := e.write(t, "events.csv", "id,val\n1,a\n")

	_, err := e.execute(t, "load", "--source", src, "--target", "events")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external column schema is required")

	_, err = e.execute(t, "load", "--source", src, "--target", "events", "--column", "id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected name:type")

	_, err = e.execute(t, "load", "--target", "events")
	require.Error(t, err)
}

func TestPlanCommand(t *testing.T) {
	e := newEnv(t)
	out, err := e.execute(t, "plan", "--source", "/tmp/events.csv", "--target", "events", "--replace")
	require.NoError(t, err)
	assert.Contains(t, out, "Plan for events:")
	assert.Contains(t, out, "1. create STG_events from the external schema")
	assert.Contains(t, out, "3. rename STG_events to events, dropping the existing table")
}

func TestRunAndRunsCommands(t *testing.T) {
	e := newEnv(t)
	a := e.write(t, "a.csv", "id\n1\n2\n")
	b := e.write(t, "b.csv", "id\n1\n")
	manifest := e.write(t, "jobs.yaml", `
jobs:
  - name: a
    source: `+a+`
    target: {name: a}
    schema: [{name: id, dtype: INTEGER}]
  - name: b
    source: `+b+`
    target: {name: b}
    schema: [{name: id, dtype: INTEGER}]
`)

	out, err := e.execute(t, "run", manifest, "-j", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Completed 2 jobs")
	assert.Equal(t, 2, e.count(t, "a"))
	assert.Equal(t, 1, e.count(t, "b"))

	out, err = e.execute(t, "runs", "-o", "json")
	require.NoError(t, err)
	var runs []state.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	assert.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, state.StatusCompleted, r.Status)
	}

	out, err = e.execute(t, "runs", "--target", "b")
	require.NoError(t, err)
	assert.Contains(t, out, "RUN ID")
	assert.Contains(t, out, "completed")
	assert.NotContains(t, out, " a ")

	id := runs[0].RunID
	out, err = e.execute(t, "runs", "--id", id)
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = e.execute(t, "runs", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted run "+id)

	_, err = e.execute(t, "runs", "--id", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")

	out, err = e.execute(t, "runs", "prune", "--older-than", "1ns")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 runs")

	out, err = e.execute(t, "runs", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(out))
}

func TestConfigFileWithFlagOverrides(t *testing.T) {
	e := newEnv(t)
	cfgFile := e.write(t, "sqlload.yaml", `
type: sqlite
database: `+filepath.Join(e.dir, "ignored.db")+`
log:
  level: error
`)
	src := e.write(t, "events.csv", "id\n1\n")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"load", "--config", cfgFile, "--database", e.db,
		"--source", src, "--target", "events", "--column", "id:INTEGER"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, 1, e.count(t, "events"))
	assert.NoFileExists(t, filepath.Join(e.dir, "ignored.db"))
}

func TestMissingDatabaseType(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"plan", "--source", "/tmp/a.csv", "--target", "a"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database type is required")
}

func TestParseTable(t *testing.T) {
	tests := []struct {
		in   string
		want database.Table
	}{
		{"events", database.Table{Name: "events"}},
		{"analytics.events", database.Table{Schema: "analytics", Name: "events"}},
		{"DW.PUBLIC.EVENTS", database.Table{Database: "DW", Schema: "PUBLIC", Name: "EVENTS"}},
		{"proj.id.ds.t", database.Table{Database: "proj.id", Schema: "ds", Name: "t"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseTable(tt.in))
		})
	}
}

func TestParseColumns(t *testing.T) {
	cols, err := parseColumns([]string{"id:INTEGER", " amount : NUMBER(10,2) ", "payload:MAP<STRING:STRING>"})
	require.NoError(t, err)
	assert.Equal(t, []database.Column{
		{Name: "id", Type: "INTEGER"},
		{Name: "amount", Type: "NUMBER(10,2)"},
		{Name: "payload", Type: "MAP<STRING:STRING>"},
	}, cols)

	_, err = parseColumns([]string{":INTEGER"})
	assert.Error(t, err)
}
