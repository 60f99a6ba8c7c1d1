package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrInconsistent signals a violated index invariant. It is fatal: the tree
	// must not be used after an operation returns it.
	ErrInconsistent = errors.New("tree: internal index inconsistency")

	// ErrDimension is returned when a point does not match the tree dimension.
	ErrDimension = errors.New("tree: point dimension mismatch")

	// ErrInvalidPoint is returned for empty points or non-finite coordinates.
	ErrInvalidPoint = errors.New("tree: invalid point")

	// ErrSelfMerge is returned when a tree is merged into itself.
	ErrSelfMerge = errors.New("tree: cannot merge a tree into itself")
)

func inconsistent(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInconsistent, fmt.Sprintf(format, args...))
}
