package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/hylla/deskboard/internal/domain"
	"github.com/hylla/deskboard/internal/tree"
)

// TxState is the per-tree transaction state exposed to the UI.
type TxState string

// TxState values.
const (
	TxIdle    TxState = "idle"
	TxPending TxState = "pending"
	TxFailed  TxState = "failed"
)

// TxPhase tracks one reorder transaction:
// applying -> committing -> committed | rolled_back.
type TxPhase string

// TxPhase values.
const (
	PhaseApplying   TxPhase = "applying"
	PhaseCommitting TxPhase = "committing"
	PhaseCommitted  TxPhase = "committed"
	PhaseRolledBack TxPhase = "rolled_back"
)

// Txn is one optimistic reorder. Fields other than id/move/changes are guarded by the
// owning service's mutex. Rollback restores the pre-move structure (parent and order)
// exactly; field edits applied while the move was pending are kept.
type Txn struct {
	svc       *Service
	id        string
	move      tree.Move
	changes   []domain.OrderChange
	startedAt time.Time
	done      chan struct{}

	held  map[string]domain.WorkItem
	phase TxPhase
	err   error
}

// ID returns the transaction id used in logs and errors.
func (t *Txn) ID() string {
	return t.id
}

// Changes returns the batch applied by this transaction.
func (t *Txn) Changes() []domain.OrderChange {
	return append([]domain.OrderChange(nil), t.changes...)
}

// Phase returns the current transaction phase.
func (t *Txn) Phase() TxPhase {
	t.svc.mu.Lock()
	defer t.svc.mu.Unlock()
	return t.phase
}

// Done is closed once the transaction is committed or rolled back.
func (t *Txn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the transaction resolves and returns its outcome.
func (t *Txn) Wait(ctx context.Context) error {
	select {
	case <-t.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	t.svc.mu.Lock()
	defer t.svc.mu.Unlock()
	return t.err
}

// Begin validates a move, applies its batch to the local tree, and holds the pre-change
// snapshot until Commit or Discard. Only one transaction may be open per service; with the
// queue policy Begin waits for the previous one, with the reject policy it fails with
// ErrTransactionPending. Cycle and position errors are returned before anything changes.
func (s *Service) Begin(ctx context.Context, move tree.Move) (*Txn, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureFresh(ctx); err != nil {
		s.release()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	changes, err := tree.BuildArena(s.arena).PlanMove(move)
	if err != nil {
		s.release()
		s.logger.Debug("reorder rejected", "item_id", move.ItemID, "parent_id", move.ParentID, "position", move.Position, "err", err)
		return nil, err
	}

	txn := &Txn{
		svc:       s,
		id:        s.idGen(),
		move:      move,
		changes:   changes,
		startedAt: s.clock(),
		done:      make(chan struct{}),
	}
	if len(changes) == 0 {
		txn.phase = PhaseCommitted
		close(txn.done)
		s.release()
		return txn, nil
	}

	txn.held = maps.Clone(s.arena)
	tree.ApplyChanges(s.arena, changes)
	txn.phase = PhaseApplying
	s.inflight = txn
	s.state = TxPending
	s.gen++
	s.logger.Debug("reorder applied optimistically", "txn_id", txn.id, "item_id", move.ItemID, "parent_id", move.ParentID, "changes", len(changes))
	return txn, nil
}

// Commit sends the batch to the repository as one atomic request and resolves the
// transaction. Cancelling ctx does not abort a sent commit; the configured timeout does, and
// a timeout counts as failure even if the write lands later. On failure the local tree is
// restored to the held snapshot and a *CommitError is returned. On success the repository's
// canonical state replaces the optimistic tree.
func (t *Txn) Commit(ctx context.Context) error {
	s := t.svc
	s.mu.Lock()
	switch t.phase {
	case PhaseApplying:
		t.phase = PhaseCommitting
		s.mu.Unlock()
	case PhaseCommitting:
		s.mu.Unlock()
		return t.Wait(ctx)
	default:
		err := t.err
		s.mu.Unlock()
		return err
	}

	base := context.WithoutCancel(ctx)
	commitCtx, cancel := context.WithTimeout(base, s.timeout)
	err := s.repo.ReorderBatch(commitCtx, t.changes)
	if err == nil && errors.Is(commitCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("store confirmed after deadline: %w", context.DeadlineExceeded)
	}
	cancel()
	if err != nil {
		s.finishRolledBack(t, &CommitError{TxnID: t.id, Err: err})
		return t.err
	}

	fetchCtx, cancelFetch := context.WithTimeout(base, s.timeout)
	canonical, listErr := s.repo.ListItems(fetchCtx)
	cancelFetch()
	s.finishCommitted(t, canonical, listErr)
	return nil
}

// Discard rolls back a transaction that was never sent. Once Commit has started the
// transaction cannot be cancelled and Discard returns ErrTransactionResolved.
func (t *Txn) Discard() error {
	s := t.svc
	s.mu.Lock()
	if t.phase != PhaseApplying {
		s.mu.Unlock()
		return ErrTransactionResolved
	}
	s.rollbackLocked(t, ErrTransactionAbandoned, TxIdle, false)
	s.mu.Unlock()
	s.release()
	s.logger.Info("reorder discarded before commit", "txn_id", t.id)
	return nil
}

// Move begins and commits one reorder.
func (s *Service) Move(ctx context.Context, move tree.Move) error {
	txn, err := s.Begin(ctx, move)
	if err != nil {
		return err
	}
	return txn.Commit(ctx)
}

// Reparent moves itemID under parentID ("" for root) at position.
func (s *Service) Reparent(ctx context.Context, itemID, parentID string, position int) error {
	return s.Move(ctx, tree.Move{ItemID: itemID, ParentID: parentID, Position: position})
}

// Reorder moves itemID to position within its current sibling group.
func (s *Service) Reorder(ctx context.Context, itemID string, position int) error {
	s.mu.Lock()
	item, ok := s.arena[itemID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: work item %q", ErrNotFound, itemID)
	}
	return s.Move(ctx, tree.Move{ItemID: itemID, ParentID: item.ParentID, Position: position})
}

func (s *Service) finishCommitted(t *Txn, canonical []domain.WorkItem, listErr error) {
	s.mu.Lock()
	if listErr != nil {
		s.stale = true
		s.logger.Warn("reorder committed but canonical fetch failed", "txn_id", t.id, "err", listErr)
	} else {
		if drifted := countDrift(s.arena, canonical); drifted > 0 {
			s.logger.Warn("store state differs from optimistic tree; adopting store", "txn_id", t.id, "drifted_items", drifted)
		}
		s.arena = arenaFrom(canonical)
		s.loaded = true
		s.stale = false
	}
	t.held = nil
	t.phase = PhaseCommitted
	s.inflight = nil
	s.state = TxIdle
	s.lastErr = nil
	s.gen++
	close(t.done)
	s.mu.Unlock()
	s.release()
	s.logger.Info("reorder committed", "txn_id", t.id, "item_id", t.move.ItemID, "changes", len(t.changes))
}

func (s *Service) finishRolledBack(t *Txn, err error) {
	s.mu.Lock()
	s.rollbackLocked(t, err, TxFailed, true)
	s.mu.Unlock()
	s.release()
	s.logger.Error("reorder rolled back", "txn_id", t.id, "item_id", t.move.ItemID, "err", err)
}

// rollbackLocked restores the held snapshot wholesale. markStale forces the next read to
// refetch canonical state instead of trusting either snapshot.
func (s *Service) rollbackLocked(t *Txn, err error, state TxState, markStale bool) {
	s.arena = t.held
	t.held = nil
	t.phase = PhaseRolledBack
	t.err = err
	s.inflight = nil
	s.state = state
	if state == TxFailed {
		s.lastErr = err
	}
	if markStale {
		s.stale = true
	}
	s.gen++
	close(t.done)
}

// reapAbandoned rolls back a transaction left unsent for longer than the commit timeout.
func (s *Service) reapAbandoned() {
	s.mu.Lock()
	t := s.inflight
	if t == nil || t.phase != PhaseApplying || s.clock().Sub(t.startedAt) <= s.timeout {
		s.mu.Unlock()
		return
	}
	s.rollbackLocked(t, ErrTransactionAbandoned, TxIdle, false)
	s.mu.Unlock()
	s.release()
	s.logger.Warn("reorder abandoned before commit; restored held snapshot", "txn_id", t.id)
}

// acquire takes the structural write token according to the queue policy.
func (s *Service) acquire(ctx context.Context) error {
	select {
	case s.gate <- struct{}{}:
		return nil
	default:
	}
	s.reapAbandoned()
	if s.policy == QueuePolicyReject {
		select {
		case s.gate <- struct{}{}:
			return nil
		default:
			return ErrTransactionPending
		}
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	for {
		select {
		case s.gate <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.reapAbandoned()
			timer.Reset(s.timeout)
		}
	}
}

func (s *Service) release() {
	<-s.gate
}

// countDrift counts items whose canonical record differs from the optimistic one.
func countDrift(local map[string]domain.WorkItem, canonical []domain.WorkItem) int {
	drifted := 0
	seen := make(map[string]struct{}, len(canonical))
	for _, item := range canonical {
		seen[item.ID] = struct{}{}
		prev, ok := local[item.ID]
		if !ok || prev.ParentID != item.ParentID || prev.OrderIndex != item.OrderIndex ||
			prev.Status != item.Status || prev.Progress != item.Progress || prev.Name != item.Name {
			drifted++
		}
	}
	for id := range local {
		if _, ok := seen[id]; !ok {
			drifted++
		}
	}
	return drifted
}
