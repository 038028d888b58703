package attr

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bimattr/internal/finder"
	"github.com/sells-group/bimattr/internal/source"
	"github.com/sells-group/bimattr/internal/units"
)

var (
	// ErrNotFound signals a provider lookup miss.
	ErrNotFound = eris.New("attr: not found")
	// ErrUnknownField is returned for field names the entity type does not declare.
	ErrUnknownField = eris.New("attr: unknown field")
	// ErrDuplicateField is returned when a type declares a field twice.
	ErrDuplicateField = eris.New("attr: duplicate field")
	// ErrInconsistentState is returned when a record violates the status invariants.
	ErrInconsistentState = eris.New("attr: inconsistent record state")
	// ErrInvalidDescriptor is returned for malformed descriptor configuration.
	ErrInvalidDescriptor = eris.New("attr: invalid descriptor")
)

// AmbiguousError is returned by the pattern provider when matching
// properties disagree. It counts as a lookup miss.
type AmbiguousError struct {
	Field  string
	Values []any
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("attr: ambiguous values for %s: %v", e.Field, e.Values)
}

// IsMiss reports whether err only means "this provider had nothing".
func IsMiss(err error) bool {
	var amb *AmbiguousError
	return eris.Is(err, ErrNotFound) ||
		eris.Is(err, source.ErrNotFound) ||
		eris.Is(err, finder.ErrNotFound) ||
		errors.As(err, &amb)
}

// isFatal reports errors that must surface instead of being logged.
func isFatal(err error) bool {
	return eris.Is(err, ErrUnknownField) ||
		eris.Is(err, ErrInconsistentState) ||
		eris.Is(err, units.ErrIncompatible) ||
		eris.Is(err, units.ErrNotNumeric)
}
