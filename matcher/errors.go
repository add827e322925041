package matcher

import (
	"errors"
	"fmt"
)

// ErrEmptyReferenceSet is returned when an index build is attempted over a
// reference set that contributes no descriptors at all.
var ErrEmptyReferenceSet = errors.New("reference set contains no descriptors")

// ErrInvalidK is returned when a query asks for a non-positive number of
// neighbors.
var ErrInvalidK = errors.New("neighbor counts must be positive")

// DimensionMismatchError reports a query descriptor whose width differs from
// the descriptors the index was built over.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("descriptor dimension mismatch: index has %d, query has %d", e.Expected, e.Actual)
}
