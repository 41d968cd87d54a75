// Package loader merges staged files into warehouse tables. A load stages the
// file into STG_<target>, checks it, removes overlapping rows, and then either
// inserts into the existing target or renames staging into its place.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gerhard-ee/sqlload/internal/database"
)

// SchemaCheck compares the staged columns with the target's before a merge.
// It returns a *SchemaMismatchError to stop the load.
type SchemaCheck func(ctx context.Context, plan Plan, staged, target []database.Column) error

// ExtractRunner runs a request's extract script against the loaded staging table
type ExtractRunner func(ctx context.Context, script string, staging database.Table) error

// Loader runs the staging-then-merge workflow against one table store
type Loader struct {
	store          database.TableStore
	logger         *slog.Logger
	checks         []SchemaCheck
	extract        ExtractRunner
	cleanupOnError bool
}

type Option func(*Loader)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithSchemaChecks adds checks that run after the column count check
func WithSchemaChecks(checks ...SchemaCheck) Option {
	return func(l *Loader) { l.checks = append(l.checks, checks...) }
}

// WithExtractRunner enables requests that carry an extract script
func WithExtractRunner(run ExtractRunner) Option {
	return func(l *Loader) { l.extract = run }
}

// WithCleanupOnError drops the staging table when a load fails after
// creating it. By default it is left in place for inspection and replaced by
// the next run.
func WithCleanupOnError(cleanup bool) Option {
	return func(l *Loader) { l.cleanupOnError = cleanup }
}

func New(store database.TableStore, opts ...Option) *Loader {
	l := &Loader{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Plan reports what Load would do for req without changing anything
func (l *Loader) Plan(ctx context.Context, req Request) (Plan, error) {
	if err := req.Validate(); err != nil {
		return Plan{}, err
	}
	exists, err := l.store.TableExists(ctx, req.Target)
	if err != nil {
		return Plan{}, &StoreOperationError{Op: "check existence of", Table: req.Target, Err: err}
	}
	return NewPlan(req, exists), nil
}

// Load merges the file at req.Source into req.Target. schema is the column
// list of the file and is required. Every failure aborts the remaining steps
// without undoing the ones already done.
func (l *Loader) Load(ctx context.Context, req Request, schema []database.Column) (Plan, error) {
	if err := req.Validate(); err != nil {
		return Plan{}, err
	}
	if len(schema) == 0 {
		return Plan{}, &ConfigurationError{
			Field:  "schema",
			Reason: "an external column schema is required",
			Err:    &UnimplementedError{Feature: "inferring the schema from the source file"},
		}
	}
	if req.ExtractScript != "" && l.extract == nil {
		return Plan{}, &UnimplementedError{Feature: "running extract scripts"}
	}
	keys, err := req.matchKeys()
	if err != nil {
		return Plan{}, err
	}

	exists, err := l.store.TableExists(ctx, req.Target)
	if err != nil {
		return Plan{}, &StoreOperationError{Op: "check existence of", Table: req.Target, Err: err}
	}
	plan := NewPlan(req, exists)
	log := l.logger.With("target", plan.Target.String(), "staging", plan.Staging.String())
	log.Info("starting load", "source", req.Source, "target_exists", exists, "merge", string(plan.Merge))

	if err := l.stage(ctx, log, plan, req, schema); err != nil {
		return plan, l.fail(ctx, log, plan, err)
	}
	staged, target, err := l.check(ctx, log, plan)
	if err != nil {
		return plan, l.fail(ctx, log, plan, err)
	}
	if plan.RemoveOverlap {
		log.Info("removing overlapping rows", "step", "overlap", "keys", matchKeyNames(keys))
		if err := l.store.DeleteOverlappingData(ctx, plan.Target, plan.Staging, keys); err != nil {
			return plan, l.fail(ctx, log, plan, &StoreOperationError{Op: "delete overlapping rows from", Table: plan.Target, Err: err})
		}
	}
	if err := l.merge(ctx, log, plan, staged, target); err != nil {
		return plan, l.fail(ctx, log, plan, err)
	}

	log.Info("load complete", "merge", string(plan.Merge))
	return plan, nil
}

// stage creates the staging table, always replacing a leftover one, and
// bulk loads the source into it. The file's columns load by position, so a
// cloned staging table keeps the target's names whatever the file calls them.
func (l *Loader) stage(ctx context.Context, log *slog.Logger, plan Plan, req Request, schema []database.Column) error {
	staging := plan.Staging
	switch plan.StagingMode {
	case StageClone:
		log.Info("cloning target structure", "step", "stage")
		if err := l.store.CreateTableLike(ctx, plan.Staging, plan.Target, true); err != nil {
			return &StoreOperationError{Op: "create staging table", Table: plan.Staging, Err: err}
		}
		cloned, err := l.store.GetColumns(ctx, plan.Staging)
		if err != nil {
			return &StoreOperationError{Op: "get columns of", Table: plan.Staging, Err: err}
		}
		if len(cloned) != len(schema) {
			return &SchemaMismatchError{
				Target:        plan.Target,
				Staging:       plan.Staging,
				TargetColumns: len(cloned),
				StagedColumns: len(schema),
				Reason:        fmt.Sprintf("the file has %d columns but %s has %d", len(schema), plan.Target, len(cloned)),
			}
		}
		staging.Columns = cloned
	default:
		log.Info("creating staging table from schema", "step", "stage", "columns", len(schema))
		staging.Columns = schema
		if err := l.store.CreateTable(ctx, staging, true); err != nil {
			return &StoreOperationError{Op: "create staging table", Table: plan.Staging, Err: err}
		}
	}

	log.Info("bulk loading source", "step", "load", "source", req.Source)
	if err := l.store.BulkLoad(ctx, req.Source, staging, schema, req.Profile); err != nil {
		return &StoreOperationError{Op: "bulk load", Table: plan.Staging, Err: err}
	}

	if req.ExtractScript != "" {
		log.Info("running extract script", "step", "extract")
		if err := l.extract(ctx, req.ExtractScript, plan.Staging); err != nil {
			return fmt.Errorf("extract script failed on %s: %w", plan.Staging, err)
		}
	}
	return nil
}

// check reads back both column lists and runs the compatibility checks the
// plan calls for. target is nil when the target does not exist yet.
func (l *Loader) check(ctx context.Context, log *slog.Logger, plan Plan) (staged, target []database.Column, err error) {
	staged, err = l.store.GetColumns(ctx, plan.Staging)
	if err != nil {
		return nil, nil, &StoreOperationError{Op: "get columns of", Table: plan.Staging, Err: err}
	}
	if !plan.TargetExists {
		return staged, nil, nil
	}
	target, err = l.store.GetColumns(ctx, plan.Target)
	if err != nil {
		return nil, nil, &StoreOperationError{Op: "get columns of", Table: plan.Target, Err: err}
	}
	if !plan.SchemaCheck {
		return staged, target, nil
	}

	log.Info("checking staged schema", "step", "check", "staged_columns", len(staged), "target_columns", len(target))
	if len(staged) != len(target) {
		return nil, nil, &SchemaMismatchError{
			Target:        plan.Target,
			Staging:       plan.Staging,
			TargetColumns: len(target),
			StagedColumns: len(staged),
		}
	}
	for _, c := range l.checks {
		if err := c(ctx, plan, staged, target); err != nil {
			return nil, nil, err
		}
	}
	return staged, target, nil
}

func (l *Loader) merge(ctx context.Context, log *slog.Logger, plan Plan, staged, target []database.Column) error {
	if plan.Merge == MergeRename {
		log.Info("renaming staging table into place", "step", "merge", "drop_existing", plan.DropIfExists)
		if err := l.store.RenameTable(ctx, plan.Staging, plan.Target.Name, plan.DropIfExists); err != nil {
			return &StoreOperationError{Op: "rename", Table: plan.Staging, Err: err}
		}
		return nil
	}

	if plan.Truncate {
		log.Info("truncating target", "step", "truncate")
		if err := l.store.TruncateTable(ctx, plan.Target); err != nil {
			return &StoreOperationError{Op: "truncate", Table: plan.Target, Err: err}
		}
	}

	log.Info("inserting staged rows", "step", "merge")
	if err := l.store.InsertInto(ctx, plan.Target, plan.Staging, database.ColumnNames(target), database.ColumnNames(staged)); err != nil {
		return &StoreOperationError{Op: "insert into", Table: plan.Target, Err: err}
	}
	if err := l.store.DropTable(ctx, plan.Staging); err != nil {
		return &StoreOperationError{Op: "drop", Table: plan.Staging, Err: err}
	}
	return nil
}

// fail logs the error and, when configured, drops the staging table
func (l *Loader) fail(ctx context.Context, log *slog.Logger, plan Plan, err error) error {
	log.Error("load failed", "error", err)
	if !l.cleanupOnError {
		return err
	}
	if dropErr := l.store.DropTable(context.WithoutCancel(ctx), plan.Staging); dropErr != nil {
		log.Warn("failed to drop staging table after error", "error", dropErr)
		return errors.Join(err, &StoreOperationError{Op: "drop", Table: plan.Staging, Err: dropErr})
	}
	return err
}

func matchKeyNames(keys []database.MatchKey) string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}
