package loader

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gerhard-ee/sqlload/internal/database"
	"github.com/gerhard-ee/sqlload/internal/ingest"
)

// Request describes one staged file to merge into one target table
type Request struct {
	// Source is the location of the staged file
	Source  string             `yaml:"source"`
	Target  database.Table     `yaml:"target"`
	Profile ingest.FileProfile `yaml:"profile"`

	// DependencyOnFile marks loads whose shape may differ from the target's
	DependencyOnFile bool   `yaml:"dependency_on_file"`
	ExtractScript    string `yaml:"extract_script"`
	TruncateTable    bool   `yaml:"truncate_table"`
	ReplaceTable     bool   `yaml:"replace_table"`
	// OverlapColumns are the match keys used to replace existing rows
	OverlapColumns []OverlapColumn `yaml:"overlap_columns"`
}

// OverlapColumn is a match key. In YAML it is either a string such as
// "trunc(created_at)" or a column mapping with a name.
type OverlapColumn string

func (o *OverlapColumn) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*o = OverlapColumn(node.Value)
		return nil
	case yaml.MappingNode:
		var col database.Column
		if err := node.Decode(&col); err != nil {
			return &ConfigurationError{Field: "overlap_columns", Reason: fmt.Sprintf("line %d", node.Line), Err: err}
		}
		if col.Name == "" {
			return &ConfigurationError{Field: "overlap_columns", Reason: fmt.Sprintf("line %d: column has no name", node.Line)}
		}
		*o = OverlapColumn(col.Name)
		return nil
	default:
		return &ConfigurationError{
			Field:  "overlap_columns",
			Reason: fmt.Sprintf("line %d: expected a column name or a column", node.Line),
		}
	}
}

// matchKeys parses the overlap columns
func (r Request) matchKeys() ([]database.MatchKey, error) {
	keys := make([]string, len(r.OverlapColumns))
	for i, c := range r.OverlapColumns {
		keys[i] = string(c)
	}
	parsed, err := database.ParseMatchKeys(keys)
	if err != nil {
		return nil, &ConfigurationError{Field: "overlap_columns", Reason: "cannot parse match keys", Err: err}
	}
	return parsed, nil
}

// Validate reports configuration problems that can be found without a store
func (r Request) Validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return &ConfigurationError{Field: "source", Reason: "a source location is required"}
	}
	if r.Target.Name == "" {
		return &ConfigurationError{Field: "target", Reason: "a target table name is required"}
	}
	if strings.HasPrefix(r.Target.Name, database.StagingPrefix) {
		return &ConfigurationError{
			Field:  "target",
			Reason: fmt.Sprintf("%s is reserved for staging tables", database.StagingPrefix),
		}
	}
	if err := r.Profile.WithDefaults().Validate(); err != nil {
		return &ConfigurationError{Field: "profile", Reason: "unsupported file profile", Err: err}
	}
	if _, err := r.matchKeys(); err != nil {
		return err
	}
	return nil
}
