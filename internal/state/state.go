package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gerhard-ee/sqlload/internal/config"
)

// Status of a load run
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run records one execution of a load job
type Run struct {
	RunID      string    `json:"run_id"`
	Job        string    `json:"job,omitempty"`
	Target     string    `json:"target"`
	Source     string    `json:"source"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	MergePath  string    `json:"merge_path,omitempty"`
	TargetRows int64     `json:"target_rows"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Manager defines the interface for run state management
type Manager interface {
	// GetRun retrieves a run, or nil if it is unknown
	GetRun(ctx context.Context, runID string) (*Run, error)

	// CreateRun records a new run
	CreateRun(ctx context.Context, run *Run) error

	// UpdateRun replaces the record of an existing run
	UpdateRun(ctx context.Context, run *Run) error

	// DeleteRun removes a run record
	DeleteRun(ctx context.Context, runID string) error

	// ListRuns returns the runs for a target, or all runs when target is
	// empty, oldest first
	ListRuns(ctx context.Context, target string) ([]*Run, error)

	// LockTarget acquires the load lock of a target for holder. It reports
	// false when another lock on the target has not expired yet.
	LockTarget(ctx context.Context, target, holder string, ttl time.Duration) (bool, error)

	// UnlockTarget releases the load lock of a target if holder still owns
	// it. It returns ErrLockLost when the lock was taken over by another
	// holder and succeeds when no lock is held.
	UnlockTarget(ctx context.Context, target, holder string) error
}

// ErrLockLost is returned by UnlockTarget when the lock expired and was
// acquired by another holder
var ErrLockLost = errors.New("lock is held by another holder")

// NewManager creates the state manager selected by the configuration
func NewManager(cfg config.StateConfig) (Manager, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryManager(), nil
	case "file":
		return NewFileManager(cfg.Dir)
	case "kubernetes":
		return NewInClusterManager(cfg.Namespace)
	default:
		return nil, fmt.Errorf("unsupported state type: %s", cfg.Type)
	}
}

func sortRuns(runs []*Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
}

func validateRun(run *Run) error {
	if run == nil || run.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^a-z0-9-]+`)

// lockName turns a target name into a file and object name safe key. The
// hash suffix keeps names unique after sanitising and truncation.
func lockName(target string) string {
	sum := sha256.Sum256([]byte(target))
	slug := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(target), "-"), "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return slug + "-" + hex.EncodeToString(sum[:])[:12]
}
