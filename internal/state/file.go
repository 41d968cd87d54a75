package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileManager stores each run as a JSON file and each lock as a file holding
// its holder and expiry time. Lock files are created exclusively so separate
// processes sharing the directory exclude each other.
type FileManager struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileManager creates a file-based state manager rooted at baseDir
func NewFileManager(baseDir string) (*FileManager, error) {
	for _, dir := range []string{"runs", "locks"} {
		if err := os.MkdirAll(filepath.Join(baseDir, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %v", err)
		}
	}
	return &FileManager{baseDir: baseDir}, nil
}

func (m *FileManager) runFile(runID string) string {
	return filepath.Join(m.baseDir, "runs", runID+".json")
}

func (m *FileManager) lockFile(target string) string {
	return filepath.Join(m.baseDir, "locks", lockName(target)+".lock")
}

func (m *FileManager) readRun(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %v", err)
	}
	return &run, nil
}

func (m *FileManager) saveRun(run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %v", err)
	}
	if err := os.WriteFile(m.runFile(run.RunID), data, 0644); err != nil {
		return fmt.Errorf("failed to write run file: %v", err)
	}
	return nil
}

func (m *FileManager) GetRun(ctx context.Context, runID string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, err := m.readRun(m.runFile(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run file: %v", err)
	}
	return run, nil
}

func (m *FileManager) CreateRun(ctx context.Context, run *Run) error {
	if err := validateRun(run); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.runFile(run.RunID)); err == nil {
		return fmt.Errorf("run %s already exists", run.RunID)
	}
	return m.saveRun(run)
}

func (m *FileManager) UpdateRun(ctx context.Context, run *Run) error {
	if err := validateRun(run); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.runFile(run.RunID)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("run %s not found", run.RunID)
		}
		return fmt.Errorf("failed to check run file: %v", err)
	}
	return m.saveRun(run)
}

func (m *FileManager) DeleteRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.runFile(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete run file: %v", err)
	}
	return nil
}

func (m *FileManager) ListRuns(ctx context.Context, target string) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(m.baseDir, "runs"))
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %v", err)
	}

	var runs []*Run
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		run, err := m.readRun(filepath.Join(m.baseDir, "runs", entry.Name()))
		if err != nil {
			continue // Skip unreadable runs
		}
		if target == "" || run.Target == target {
			runs = append(runs, run)
		}
	}
	sortRuns(runs)
	return runs, nil
}

type lockRecord struct {
	Target  string    `json:"target"`
	Holder  string    `json:"holder"`
	Expires time.Time `json:"expires"`
}

func (m *FileManager) LockTarget(ctx context.Context, target, holder string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.lockFile(target)
	data, err := json.Marshal(lockRecord{Target: target, Holder: holder, Expires: time.Now().Add(ttl)})
	if err != nil {
		return false, fmt.Errorf("failed to marshal lock: %v", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			_, werr := f.Write(data)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				os.Remove(path)
				return false, fmt.Errorf("failed to write lock file: %v", werr)
			}
			return true, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return false, fmt.Errorf("failed to create lock file: %v", err)
		}

		// Lock file exists, check if it's expired
		existing, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return false, fmt.Errorf("failed to read lock file: %v", err)
		}
		var held lockRecord
		if err := json.Unmarshal(existing, &held); err != nil {
			return false, fmt.Errorf("failed to unmarshal lock: %v", err)
		}
		if held.Expires.After(time.Now()) {
			return false, nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("failed to remove expired lock: %v", err)
		}
	}
	return false, nil
}

func (m *FileManager) UnlockTarget(ctx context.Context, target, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.lockFile(target)
	existing, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read lock file: %v", err)
	}
	var held lockRecord
	if err := json.Unmarshal(existing, &held); err != nil {
		return fmt.Errorf("failed to unmarshal lock: %v", err)
	}
	if held.Holder != holder {
		return ErrLockLost
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %v", err)
	}
	return nil
}
