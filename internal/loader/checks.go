package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/gerhard-ee/sqlload/internal/database"
)

// CheckColumnNames requires staged and target columns to have the same names
// in the same positions, ignoring case.
func CheckColumnNames(ctx context.Context, plan Plan, staged, target []database.Column) error {
	for i := range staged {
		if i >= len(target) {
			break
		}
		if !strings.EqualFold(staged[i].Name, target[i].Name) {
			return &SchemaMismatchError{
				Target:        plan.Target,
				Staging:       plan.Staging,
				TargetColumns: len(target),
				StagedColumns: len(staged),
				Reason:        fmt.Sprintf("column %d is %s in staging but %s in the target", i+1, staged[i].Name, target[i].Name),
			}
		}
	}
	return nil
}

// CheckColumnTypes requires staged and target columns to report the same
// type at each position. Types are compared case-insensitively without any
// precision or length suffix.
func CheckColumnTypes(ctx context.Context, plan Plan, staged, target []database.Column) error {
	for i := range staged {
		if i >= len(target) {
			break
		}
		if baseType(staged[i].Type) != baseType(target[i].Type) {
			return &SchemaMismatchError{
				Target:        plan.Target,
				Staging:       plan.Staging,
				TargetColumns: len(target),
				StagedColumns: len(staged),
				Reason: fmt.Sprintf("column %s is %s in staging but %s in the target",
					target[i].Name, staged[i].Type, target[i].Type),
			}
		}
	}
	return nil
}

func baseType(t string) string {
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	return strings.ToUpper(strings.TrimSpace(t))
}
