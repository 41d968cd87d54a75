package state

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryManager keeps runs and locks in process memory.
// This is useful for testing and single-instance deployments
type MemoryManager struct {
	runs  map[string]*Run
	locks map[string]memoryLock
	mu    sync.RWMutex
}

// NewMemoryManager creates a new in-memory state manager
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		runs:  make(map[string]*Run),
		locks: make(map[string]memoryLock),
	}
}

func (m *MemoryManager) GetRun(ctx context.Context, runID string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if run, exists := m.runs[runID]; exists {
		copied := *run
		return &copied, nil
	}
	return nil, nil
}

func (m *MemoryManager) CreateRun(ctx context.Context, run *Run) error {
	if err := validateRun(run); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.RunID]; exists {
		return fmt.Errorf("run %s already exists", run.RunID)
	}
	copied := *run
	m.runs[run.RunID] = &copied
	return nil
}

func (m *MemoryManager) UpdateRun(ctx context.Context, run *Run) error {
	if err := validateRun(run); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.RunID]; !exists {
		return fmt.Errorf("run %s not found", run.RunID)
	}
	copied := *run
	m.runs[run.RunID] = &copied
	return nil
}

func (m *MemoryManager) DeleteRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.runs, runID)
	return nil
}

func (m *MemoryManager) ListRuns(ctx context.Context, target string) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var runs []*Run
	for _, run := range m.runs {
		if target == "" || run.Target == target {
			copied := *run
			runs = append(runs, &copied)
		}
	}
	sortRuns(runs)
	return runs, nil
}

type memoryLock struct {
	holder  string
	expires time.Time
}

func (m *MemoryManager) LockTarget(ctx context.Context, target, holder string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if held, exists := m.locks[target]; exists && time.Now().Before(held.expires) {
		return false, nil
	}
	m.locks[target] = memoryLock{holder: holder, expires: time.Now().Add(ttl)}
	return true, nil
}

func (m *MemoryManager) UnlockTarget(ctx context.Context, target, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, exists := m.locks[target]
	if !exists {
		return nil
	}
	if held.holder != holder {
		return ErrLockLost
	}
	delete(m.locks, target)
	return nil
}
