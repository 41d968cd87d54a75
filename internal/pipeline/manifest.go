package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gerhard-ee/sqlload/internal/database"
	"github.com/gerhard-ee/sqlload/internal/loader"
)

// Job is one load: an optional local file to upload, the load request and the
// column schema of the file.
type Job struct {
	Name string `yaml:"name"`
	// Upload is a local file copied to the request's source before loading
	Upload string `yaml:"upload"`
	// DeleteSource removes the staged file once the load has completed
	DeleteSource bool              `yaml:"delete_source"`
	Request      loader.Request    `yaml:",inline"`
	Schema       []database.Column `yaml:"schema"`
}

// DisplayName returns the job name, falling back to the target
func (j Job) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.Request.Target.String()
}

// Manifest is a set of jobs run together
type Manifest struct {
	Concurrency int   `yaml:"concurrency"`
	Jobs        []Job `yaml:"jobs"`
}

// LoadJobs reads a YAML manifest, expanding ${VAR} references first
func LoadJobs(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if len(m.Jobs) == 0 {
		return nil, fmt.Errorf("manifest %s has no jobs", path)
	}
	if m.Concurrency <= 0 {
		m.Concurrency = 1
	}
	return &m, nil
}
