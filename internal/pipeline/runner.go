// Package pipeline runs load jobs end to end: it takes the target lock,
// records the run, uploads local files and hands the request to the loader.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gerhard-ee/sqlload/internal/database"
	"github.com/gerhard-ee/sqlload/internal/loader"
	"github.com/gerhard-ee/sqlload/internal/objectstore"
	"github.com/gerhard-ee/sqlload/internal/state"
)

// ErrTargetLocked is returned when another run holds the target's lock
var ErrTargetLocked = errors.New("target is locked by another run")

// Runner binds a table store, an object store and a state manager
type Runner struct {
	store   database.TableStore
	objects objectstore.Store
	state   state.Manager
	loader  *loader.Loader
	lockTTL time.Duration
	logger  *slog.Logger
	newID   func() string
}

func NewRunner(store database.TableStore, objects objectstore.Store, stateManager state.Manager, lockTTL time.Duration, logger *slog.Logger, opts ...loader.Option) *Runner {
	opts = append([]loader.Option{loader.WithLogger(logger)}, opts...)
	return &Runner{
		store:   store,
		objects: objects,
		state:   stateManager,
		loader:  loader.New(store, opts...),
		lockTTL: lockTTL,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Plan reports what running the job would do
func (r *Runner) Plan(ctx context.Context, job Job) (loader.Plan, error) {
	return r.loader.Plan(ctx, job.Request)
}

// Run executes one job. The returned run is nil only when the job never
// started: invalid request, held lock or unusable state backend.
func (r *Runner) Run(ctx context.Context, job Job) (*state.Run, error) {
	req := job.Request
	if err := req.Validate(); err != nil {
		return nil, err
	}
	target := req.Target.String()
	key := lockKey(req.Target)
	runID := r.newID()
	log := r.logger.With("job", job.DisplayName(), "target", target)

	ok, err := r.state.LockTarget(ctx, key, runID, r.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", target, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetLocked, target)
	}
	defer func() {
		err := r.state.UnlockTarget(context.WithoutCancel(ctx), key, runID)
		switch {
		case errors.Is(err, state.ErrLockLost):
			log.Warn("target lock expired and was taken over during the run")
		case err != nil:
			log.Warn("failed to release target lock", "error", err)
		}
	}()

	run := &state.Run{
		RunID:     runID,
		Job:       job.Name,
		Target:    target,
		Source:    req.Source,
		Status:    state.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := r.state.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	log = log.With("run_id", run.RunID)
	log.Info("run started", "source", req.Source)

	loadErr := r.execute(ctx, log, job, run)

	run.FinishedAt = time.Now().UTC()
	if loadErr != nil {
		run.Status = state.StatusFailed
		run.Error = loadErr.Error()
		log.Error("run failed", "error", loadErr)
	} else {
		run.Status = state.StatusCompleted
		log.Info("run completed", "merge", run.MergePath, "target_rows", run.TargetRows)
	}
	if err := r.state.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		return run, errors.Join(loadErr, fmt.Errorf("failed to record run result: %w", err))
	}
	return run, loadErr
}

func (r *Runner) execute(ctx context.Context, log *slog.Logger, job Job, run *state.Run) error {
	req := job.Request
	if job.Upload != "" {
		if err := r.upload(ctx, job.Upload, req.Source); err != nil {
			return err
		}
		log.Info("uploaded local file", "file", job.Upload, "location", req.Source)
	}

	plan, err := r.loader.Load(ctx, req, job.Schema)
	run.MergePath = string(plan.Merge)
	if err != nil {
		return err
	}

	// The load itself succeeded, failures below are only logged
	if job.DeleteSource {
		if err := r.objects.Delete(ctx, req.Source); err != nil {
			log.Warn("failed to delete staged file", "location", req.Source, "error", err)
		} else {
			log.Info("deleted staged file", "location", req.Source)
		}
	}

	rows, err := r.store.GetTotalRows(ctx, req.Target)
	if err != nil {
		log.Warn("failed to count target rows", "error", err)
		return nil
	}
	run.TargetRows = rows
	return nil
}

func (r *Runner) upload(ctx context.Context, path, location string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := r.objects.Upload(ctx, location, f); err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", path, location, err)
	}
	return nil
}

// lockKey identifies a target for locking. Names are case-folded since
// backends such as Snowflake resolve unquoted identifiers case-insensitively.
func lockKey(t database.Table) string {
	return strings.ToLower(t.String())
}

// RunAll runs the jobs with at most concurrency in flight. Jobs sharing a
// target are rejected up front since their staging tables would collide.
// Every job runs even when others fail; the errors are joined.
func (r *Runner) RunAll(ctx context.Context, jobs []Job, concurrency int) ([]*state.Run, error) {
	seen := make(map[string]string, len(jobs))
	for _, job := range jobs {
		key := lockKey(job.Request.Target)
		if prev, dup := seen[key]; dup {
			return nil, &loader.ConfigurationError{
				Field:  "jobs",
				Reason: fmt.Sprintf("jobs %s and %s both load %s", prev, job.DisplayName(), job.Request.Target),
			}
		}
		seen[key] = job.DisplayName()
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	runs := make([]*state.Run, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			run, err := r.Run(ctx, job)
			runs[i] = run
			if err != nil {
				errs[i] = fmt.Errorf("job %s: %w", job.DisplayName(), err)
			}
			return nil
		})
	}
	g.Wait()

	return runs, errors.Join(errs...)
}

// Runs lists the recorded runs of a target, or of every target when empty
func (r *Runner) Runs(ctx context.Context, target string) ([]*state.Run, error) {
	return r.state.ListRuns(ctx, target)
}

// ErrRunNotFound is returned for run IDs with no record
var ErrRunNotFound = errors.New("run not found")

// GetRun returns the record of one run
func (r *Runner) GetRun(ctx context.Context, runID string) (*state.Run, error) {
	run, err := r.state.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// DeleteRun removes the record of one finished run
func (r *Runner) DeleteRun(ctx context.Context, runID string) error {
	run, err := r.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status == state.StatusRunning {
		return fmt.Errorf("run %s is still running", runID)
	}
	return r.state.DeleteRun(ctx, runID)
}

// DeleteRuns removes the records of finished runs that started before
// cutoff and returns how many were removed. Running runs are kept.
func (r *Runner) DeleteRuns(ctx context.Context, target string, cutoff time.Time) (int, error) {
	runs, err := r.state.ListRuns(ctx, target)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, run := range runs {
		if run.Status == state.StatusRunning || !run.StartedAt.Before(cutoff) {
			continue
		}
		if err := r.state.DeleteRun(ctx, run.RunID); err != nil {
			return deleted, fmt.Errorf("failed to delete run %s: %w", run.RunID, err)
		}
		deleted++
	}
	return deleted, nil
}
