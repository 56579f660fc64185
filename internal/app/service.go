package app

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hylla/deskboard/internal/domain"
	"github.com/hylla/deskboard/internal/tree"
)

// DefaultCommitTimeout bounds one reorder commit round trip.
const DefaultCommitTimeout = 10 * time.Second

// QueuePolicy decides what happens to a structural write while a reorder is in flight.
type QueuePolicy string

// QueuePolicy values.
const (
	QueuePolicyQueue  QueuePolicy = "queue"
	QueuePolicyReject QueuePolicy = "reject"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	CommitTimeout time.Duration
	QueuePolicy   QueuePolicy
	Logger        Logger
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service owns one client's view of the work-item tree: an id-keyed arena that is
// mutated optimistically by reorder transactions and reconciled against the repository.
type Service struct {
	repo    Repository
	idGen   IDGenerator
	clock   Clock
	timeout time.Duration
	policy  QueuePolicy
	logger  Logger

	// gate holds one token while a structural write is outstanding.
	gate chan struct{}

	mu       sync.Mutex
	arena    map[string]domain.WorkItem
	loaded   bool
	stale    bool
	gen      uint64
	inflight *Txn
	state    TxState
	lastErr  error
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = uuid.NewString
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = DefaultCommitTimeout
	}
	if cfg.QueuePolicy == "" {
		cfg.QueuePolicy = QueuePolicyQueue
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	return &Service{
		repo:    repo,
		idGen:   idGen,
		clock:   clock,
		timeout: cfg.CommitTimeout,
		policy:  cfg.QueuePolicy,
		logger:  cfg.Logger,
		gate:    make(chan struct{}, 1),
		arena:   map[string]domain.WorkItem{},
		state:   TxIdle,
	}
}

// ParseQueuePolicy validates a configured queue policy.
func ParseQueuePolicy(raw string) (QueuePolicy, error) {
	switch policy := QueuePolicy(strings.TrimSpace(strings.ToLower(raw))); policy {
	case "":
		return QueuePolicyQueue, nil
	case QueuePolicyQueue, QueuePolicyReject:
		return policy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidQueuePolicy, raw)
	}
}

// View is the render-ready state handed to the UI.
type View struct {
	Index     *tree.Index
	Rollups   map[string]tree.Rollup
	State     TxState
	LastError error
	// Stale is true when the tree could not be reconciled with the store.
	Stale bool
}

// Load fetches the canonical snapshot, replacing the local arena.
func (s *Service) Load(ctx context.Context) error {
	return s.Refresh(ctx)
}

// Refresh replaces the arena with the repository's canonical state. A fetch that races a
// newly begun transaction is dropped so the optimistic batch is not overwritten.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	startGen := s.gen
	s.mu.Unlock()

	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return fmt.Errorf("list work items: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != startGen || s.inflight != nil {
		s.logger.Debug("discarding refresh that raced a local mutation", "items", len(items))
		return nil
	}
	s.arena = arenaFrom(items)
	s.loaded = true
	s.stale = false
	s.gen++
	return nil
}

// View returns the forest, per-item rollups, and transaction state. Reads never wait for
// an in-flight commit; they see the optimistic tree.
func (s *Service) View(ctx context.Context) (View, error) {
	s.reapAbandoned()
	if err := s.reconcile(ctx); err != nil {
		return View{}, err
	}

	s.mu.Lock()
	idx := tree.BuildArena(s.arena)
	view := View{
		Index:     idx,
		State:     s.state,
		LastError: s.lastErr,
		Stale:     s.stale,
	}
	s.mu.Unlock()

	view.Rollups = idx.Aggregate()
	return view, nil
}

// ValidParents lists the items that id may be moved under.
func (s *Service) ValidParents(ctx context.Context, id string) ([]domain.WorkItem, error) {
	view, err := s.View(ctx)
	if err != nil {
		return nil, err
	}
	if !view.Index.Has(id) {
		return nil, fmt.Errorf("%w: work item %q", ErrNotFound, id)
	}
	return view.Index.ValidParentsOf(id), nil
}

// State reports the transaction state used to gate drag input.
func (s *Service) State() TxState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Items returns a copy of the current optimistic arena.
func (s *Service) Items() map[string]domain.WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.arena)
}

// CreateItemInput holds input values for create item operations.
type CreateItemInput struct {
	ParentID    string
	Name        string
	Status      domain.Status
	Progress    int
	Description string
	Assignee    string
	Cost        float64
}

// CreateItem appends a new item to the end of its sibling group.
func (s *Service) CreateItem(ctx context.Context, in CreateItemInput) (domain.WorkItem, error) {
	if err := s.acquire(ctx); err != nil {
		return domain.WorkItem{}, err
	}
	defer s.release()
	if err := s.ensureFresh(ctx); err != nil {
		return domain.WorkItem{}, err
	}

	parentID := strings.TrimSpace(in.ParentID)
	s.mu.Lock()
	idx := tree.BuildArena(s.arena)
	s.mu.Unlock()
	if parentID != "" && !idx.Has(parentID) {
		return domain.WorkItem{}, fmt.Errorf("%w: %q", tree.ErrUnknownParent, parentID)
	}

	item, err := domain.NewWorkItem(domain.WorkItemInput{
		ID:          s.idGen(),
		ParentID:    parentID,
		OrderIndex:  len(idx.Group(parentID)),
		Name:        in.Name,
		Status:      in.Status,
		Progress:    in.Progress,
		Description: in.Description,
		Assignee:    in.Assignee,
		Cost:        in.Cost,
	}, s.clock())
	if err != nil {
		return domain.WorkItem{}, err
	}
	stored, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("create work item: %w", err)
	}

	s.mu.Lock()
	s.arena[stored.ID] = stored
	s.gen++
	s.mu.Unlock()
	s.logger.Info("work item created", "item_id", stored.ID, "parent_id", stored.ParentID, "order_index", stored.OrderIndex)
	return stored, nil
}

// UpdateItem edits name/status/progress and other non-structural fields. It does not wait for
// an in-flight reorder; the edit is written into the held snapshot too so a rollback keeps it.
func (s *Service) UpdateItem(ctx context.Context, id string, patch domain.WorkItemPatch) (domain.WorkItem, error) {
	if patch.IsStructural() {
		return domain.WorkItem{}, domain.ErrStructuralUpdate
	}
	s.mu.Lock()
	current, ok := s.arena[id]
	s.mu.Unlock()
	if ok {
		// Validate locally before the round trip.
		if err := current.ApplyPatch(patch, s.clock()); err != nil {
			return domain.WorkItem{}, err
		}
	}

	stored, err := s.repo.UpdateItem(ctx, id, patch)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("update work item %q: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if local, ok := s.arena[id]; ok {
		s.arena[id] = mergeFields(local, stored)
		stored = s.arena[id]
	} else {
		s.arena[id] = stored
	}
	if s.inflight != nil && s.inflight.held != nil {
		if held, ok := s.inflight.held[id]; ok {
			s.inflight.held[id] = mergeFields(held, stored)
		}
	}
	s.gen++
	return stored, nil
}

// DeleteItem removes one item without cascading; its children become orphans. The former
// sibling group is compacted afterwards so its order stays dense.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	if err := s.ensureFresh(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	idx := tree.BuildArena(s.arena)
	s.mu.Unlock()
	item, ok := idx.Item(id)
	if !ok {
		return fmt.Errorf("%w: work item %q", ErrNotFound, id)
	}
	compaction := idx.PlanCompaction(item.ParentID, id)

	if err := s.repo.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("delete work item %q: %w", id, err)
	}
	s.mu.Lock()
	delete(s.arena, id)
	s.gen++
	s.mu.Unlock()
	s.logger.Info("work item deleted", "item_id", id, "orphaned_children", len(idx.ChildIDs(id)))

	if len(compaction) == 0 {
		return nil
	}
	if err := s.repo.ReorderBatch(ctx, compaction); err != nil {
		s.markStale()
		s.logger.Warn("sibling compaction after delete failed", "item_id", id, "changes", len(compaction), "err", err)
		return fmt.Errorf("compact siblings after deleting %q: %w", id, err)
	}
	s.mu.Lock()
	tree.ApplyChanges(s.arena, compaction)
	s.gen++
	s.mu.Unlock()
	return nil
}

// ListChangeEvents lists recent activity when the repository keeps a ledger.
func (s *Service) ListChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error) {
	changeLog, ok := s.repo.(ChangeLog)
	if !ok {
		return nil, nil
	}
	return changeLog.ListChangeEvents(ctx, limit)
}

// reconcile refetches canonical state after a rollback or before the first read.
func (s *Service) reconcile(ctx context.Context) error {
	s.mu.Lock()
	need := (!s.loaded || s.stale) && s.inflight == nil
	loaded := s.loaded
	s.mu.Unlock()
	if !need {
		return nil
	}
	if err := s.Refresh(ctx); err != nil {
		if !loaded {
			return err
		}
		s.logger.Warn("serving local tree after failed refresh", "err", err)
	}
	return nil
}

// ensureFresh is reconcile for writers holding the gate; a failed refetch aborts the write.
func (s *Service) ensureFresh(ctx context.Context) error {
	s.mu.Lock()
	need := !s.loaded || s.stale
	s.mu.Unlock()
	if !need {
		return nil
	}
	if err := s.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh before write: %w", err)
	}
	return nil
}

// mergeFields takes non-structural fields from stored and keeps local parent/order.
func mergeFields(local, stored domain.WorkItem) domain.WorkItem {
	stored.ParentID = local.ParentID
	stored.OrderIndex = local.OrderIndex
	return stored
}

func arenaFrom(items []domain.WorkItem) map[string]domain.WorkItem {
	out := make(map[string]domain.WorkItem, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out
}

// nopLogger discards log events.
type nopLogger struct{}

func (nopLogger) Debug(any, ...any) {}
func (nopLogger) Info(any, ...any)  {}
func (nopLogger) Warn(any, ...any)  {}
func (nopLogger) Error(any, ...any) {}
