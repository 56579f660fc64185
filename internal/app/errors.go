package app

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound             = errors.New("not found")
	ErrTransactionPending   = errors.New("a reorder is already in flight")
	ErrTransactionAbandoned = errors.New("reorder was never committed")
	ErrTransactionResolved  = errors.New("reorder already resolved")
	ErrInvalidQueuePolicy   = errors.New("invalid queue policy")
	ErrInvalidSnapshot      = errors.New("invalid snapshot")
)

// CommitError reports a reorder batch that the store rejected or did not confirm in time.
// The local tree has already been rolled back when it is returned; the move can be retried.
type CommitError struct {
	TxnID string
	Err   error
}

func (e *CommitError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("reorder %s timed out and was rolled back: %v", e.TxnID, e.Err)
	}
	return fmt.Sprintf("reorder %s failed and was rolled back: %v", e.TxnID, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the commit exceeded its deadline.
func (e *CommitError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
