package loader

import (
	"fmt"

	"github.com/gerhard-ee/sqlload/internal/database"
)

// StagingMode says how the staging table gets its structure
type StagingMode string

const (
	// StageClone copies the structure of the existing target
	StageClone StagingMode = "CLONE"
	// StageCreate builds the table from the external schema
	StageCreate StagingMode = "CREATE"
)

// MergePath is the way staged rows end up in the target
type MergePath string

const (
	// MergeInsert inserts staged rows into the existing target and drops staging
	MergeInsert MergePath = "INSERT_AND_DROP"
	// MergeRename renames staging into the target's place
	MergeRename MergePath = "RENAME"
)

// Plan is the sequence of decisions a load makes once it knows whether the
// target exists.
type Plan struct {
	Target       database.Table
	Staging      database.Table
	TargetExists bool

	StagingMode StagingMode
	// SchemaCheck gates the merge on the staged column count
	SchemaCheck   bool
	RemoveOverlap bool
	Truncate      bool
	Merge         MergePath
	// DropIfExists drops an existing target before the rename
	DropIfExists bool
}

// NewPlan decides every step of a load for the given request
func NewPlan(req Request, targetExists bool) Plan {
	keep := targetExists && !req.ReplaceTable

	p := Plan{
		Target:       req.Target,
		Staging:      req.Target.Staging(),
		TargetExists: targetExists,
		StagingMode:  StageCreate,
		Merge:        MergeRename,
		DropIfExists: req.ReplaceTable,
	}
	if keep && !req.DependencyOnFile {
		p.StagingMode = StageClone
	}
	if keep {
		p.SchemaCheck = req.DependencyOnFile || req.ExtractScript != ""
		p.RemoveOverlap = len(req.OverlapColumns) > 0 && !req.TruncateTable
		p.Truncate = req.TruncateTable
		p.Merge = MergeInsert
		p.DropIfExists = false
	}
	return p
}

// Steps lists the plan as readable lines, in execution order
func (p Plan) Steps() []string {
	var steps []string
	switch p.StagingMode {
	case StageClone:
		steps = append(steps, fmt.Sprintf("create %s like %s (replacing any leftover)", p.Staging, p.Target))
	default:
		steps = append(steps, fmt.Sprintf("create %s from the external schema (replacing any leftover)", p.Staging))
	}
	steps = append(steps, fmt.Sprintf("bulk load the source into %s", p.Staging))
	if p.SchemaCheck {
		steps = append(steps, fmt.Sprintf("check that %s has as many columns as %s", p.Staging, p.Target))
	}
	if p.RemoveOverlap {
		steps = append(steps, fmt.Sprintf("delete rows of %s that match %s on the overlap keys", p.Target, p.Staging))
	}
	switch p.Merge {
	case MergeInsert:
		if p.Truncate {
			steps = append(steps, fmt.Sprintf("truncate %s", p.Target))
		}
		steps = append(steps,
			fmt.Sprintf("insert %s into %s", p.Staging, p.Target),
			fmt.Sprintf("drop %s", p.Staging))
	default:
		if p.DropIfExists {
			steps = append(steps, fmt.Sprintf("rename %s to %s, dropping the existing table", p.Staging, p.Target.Name))
		} else {
			steps = append(steps, fmt.Sprintf("rename %s to %s", p.Staging, p.Target.Name))
		}
	}
	return steps
}
