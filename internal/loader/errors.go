package loader

import (
	"errors"
	"fmt"

	"github.com/gerhard-ee/sqlload/internal/database"
)

var (
	// ErrUnimplemented matches every *UnimplementedError
	ErrUnimplemented = errors.New("not implemented")
	// ErrSchemaMismatch matches every *SchemaMismatchError
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// ConfigurationError reports a request that cannot be run as given
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// UnimplementedError reports a feature the loader does not support
type UnimplementedError struct {
	Feature string
}

func (e *UnimplementedError) Error() string {
	return e.Feature + " is not implemented"
}

func (e *UnimplementedError) Is(target error) bool {
	return target == ErrUnimplemented
}

// SchemaMismatchError reports staged data whose shape does not fit the target
type SchemaMismatchError struct {
	Target        database.Table
	Staging       database.Table
	TargetColumns int
	StagedColumns int
	// Reason is set by checks other than the column count
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("schema mismatch between %s and %s: %s", e.Staging, e.Target, e.Reason)
	}
	return fmt.Sprintf("schema mismatch: staging table %s has %d columns, target %s has %d",
		e.Staging, e.StagedColumns, e.Target, e.TargetColumns)
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// StoreOperationError wraps a failed table store call
type StoreOperationError struct {
	Op    string
	Table database.Table
	Err   error
}

func (e *StoreOperationError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreOperationError) Unwrap() error {
	return e.Err
}
