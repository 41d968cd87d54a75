package database

import (
	"context"
	"strings"
)

// StagingPlaceholder is replaced in extract scripts by the quoted name of the
// staging table the script runs against
const StagingPlaceholder = "{{staging}}"

// ScriptRunner is implemented by stores that can run an extract script
// against a loaded staging table
type ScriptRunner interface {
	RunScript(ctx context.Context, script string, staging Table) error
}

func expandScript(q queryBuilder, script string, staging Table) string {
	return strings.ReplaceAll(script, StagingPlaceholder, q.tableName(staging))
}

// splitStatements splits a script on semicolons that sit outside quoted
// text and comments. Empty statements are dropped.
func splitStatements(script string) []string {
	var (
		statements []string
		current    strings.Builder
		quote      byte
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case quote != 0:
			current.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
			current.WriteByte(c)
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				i = len(script)
			} else {
				i += end
				current.WriteByte('\n')
			}
		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				i = len(script)
			} else {
				i += end + 3
				current.WriteByte(' ')
			}
		case c == ';':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return statements
}

// RunScript expands the staging placeholder and executes each statement of
// the script in order
func (s *sqlStore) RunScript(ctx context.Context, script string, staging Table) error {
	statements := splitStatements(expandScript(s.dialect, script, staging))
	s.logger.Info("running extract script", "table", staging.String(), "statements", len(statements))
	return s.execAll(ctx, statements)
}

// RunScript submits the expanded script as one BigQuery multi-statement query
func (b *BigQueryStore) RunScript(ctx context.Context, script string, staging Table) error {
	return b.run(ctx, expandScript(bigqueryDialect{}, script, b.qualify(staging)))
}
