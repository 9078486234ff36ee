package detect

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFeatureID is returned when a candidate has no identifier.
	ErrEmptyFeatureID = errors.New("feature id is empty")

	// ErrDuplicateFeature is matched by every DuplicateFeatureError.
	ErrDuplicateFeature = errors.New("duplicate feature id")
)

// DuplicateFeatureError reports an id that appears more than once in a
// batch. Positions are zero-based indexes into the input.
type DuplicateFeatureError struct {
	ID     string
	First  int
	Second int
}

func (e *DuplicateFeatureError) Error() string {
	return fmt.Sprintf("duplicate feature id %q at positions %d and %d", e.ID, e.First, e.Second)
}

// Is makes errors.Is(err, ErrDuplicateFeature) hold.
func (e *DuplicateFeatureError) Is(target error) bool {
	return target == ErrDuplicateFeature
}

// IsInvalidBatch reports whether err rejected the input before any I/O.
func IsInvalidBatch(err error) bool {
	return errors.Is(err, ErrEmptyFeatureID) || errors.Is(err, ErrDuplicateFeature)
}
