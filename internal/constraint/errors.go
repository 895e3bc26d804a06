package constraint

import (
	"errors"
	"fmt"

	"github.com/roach88/lattice/internal/value"
)

// SchemaMismatchError is returned when a rule is registered against a
// schema owned by another domain.
type SchemaMismatchError struct {
	Domain   string
	SchemaID value.ID
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema %s does not belong to domain %q", e.SchemaID, e.Domain)
}

// IsSchemaMismatch reports whether err is a SchemaMismatchError.
func IsSchemaMismatch(err error) bool {
	var se *SchemaMismatchError
	return errors.As(err, &se)
}

// ExecutionError records a rule that returned an error or panicked. It is
// carried as the Cause of the resulting diagnostic, never returned.
type ExecutionError struct {
	Rule    string
	Element value.ID
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("constraint %s failed on %s: %v", e.Rule, e.Element, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// errUnbuilt rejects entries not built with Element or Property.
var errUnbuilt = errors.New("constraint entry has no rule; build it with constraint.Element or constraint.Property")
