package arbor

import (
	"errors"
	"fmt"

	"github.com/arbor-orm/arbor/logger"
	"github.com/arbor-orm/arbor/schema"
)

var (
	// ErrModelNotFound no row matched a fetch-or-fail lookup
	ErrModelNotFound = logger.ErrRecordNotFound
	// ErrMissingExecutor DB opened without an executor
	ErrMissingExecutor = errors.New("executor required")
	// ErrUnknownEntity entity type was never registered
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrUnsupportedRelation operation not defined for the relation kind
	ErrUnsupportedRelation = errors.New("unsupported relation")
)

// MassAssignmentError reports a fillable/guarded violation during bulk
// construction, naming the offending attribute.
type MassAssignmentError struct {
	Entity    string
	Attribute string
}

func (e *MassAssignmentError) Error() string {
	return fmt.Sprintf("mass assignment of %q on %s is not allowed", e.Attribute, e.Entity)
}

// RelationDefinitionError reports a malformed relation definition or an
// unresolvable polymorphic discriminator, raised at first resolution.
type RelationDefinitionError struct {
	Entity   string
	Relation string
	Reason   string
}

func (e *RelationDefinitionError) Error() string {
	return fmt.Sprintf("relation %s.%s: %s", e.Entity, e.Relation, e.Reason)
}

// CastError reports a value that cannot be coerced to or serialized from
// its declared cast type.
type CastError struct {
	Column string
	Cast   schema.CastType
	Err    error
}

func (e *CastError) Error() string {
	return fmt.Sprintf("cannot cast column %q to %s: %v", e.Column, e.Cast, e.Err)
}

func (e *CastError) Unwrap() error { return e.Err }

// PivotConstraintError wraps a storage failure on a pivot table write,
// typically a uniqueness or foreign key violation.
type PivotConstraintError struct {
	Table string
	Err   error
}

func (e *PivotConstraintError) Error() string {
	return fmt.Sprintf("pivot %q: %v", e.Table, e.Err)
}

func (e *PivotConstraintError) Unwrap() error { return e.Err }
