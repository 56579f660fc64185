package tree

import (
	"errors"
	"fmt"
)

var (
	ErrCycle           = errors.New("reparent would create a cycle")
	ErrUnknownItem     = errors.New("unknown work item")
	ErrUnknownParent   = errors.New("unknown parent item")
	ErrInvalidPosition = errors.New("invalid position")
	ErrSparseGroup     = errors.New("sibling order is not dense")
)

// CycleError reports a reparent onto the item itself or one of its descendants.
type CycleError struct {
	ItemID   string
	ParentID string
}

func (e *CycleError) Error() string {
	if e.ItemID == e.ParentID {
		return fmt.Sprintf("%s: %q cannot be its own parent", ErrCycle, e.ItemID)
	}
	return fmt.Sprintf("%s: %q is a descendant of %q", ErrCycle, e.ParentID, e.ItemID)
}

func (e *CycleError) Unwrap() error {
	return ErrCycle
}
