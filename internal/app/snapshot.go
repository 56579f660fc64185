package app

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/hylla/deskboard/internal/domain"
	"github.com/hylla/deskboard/internal/tree"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "deskboard.snapshot.v1"

// Snapshot is a portable copy of the whole work-item forest.
type Snapshot struct {
	Version    string         `json:"version" yaml:"version"`
	ExportedAt time.Time      `json:"exported_at" yaml:"exported_at"`
	Items      []SnapshotItem `json:"items" yaml:"items"`
}

// SnapshotItem represents snapshot item data used by this package.
type SnapshotItem struct {
	ID          string        `json:"id" yaml:"id"`
	ParentID    string        `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	OrderIndex  int           `json:"order_index" yaml:"order_index"`
	Name        string        `json:"name" yaml:"name"`
	Status      domain.Status `json:"status" yaml:"status"`
	Progress    int           `json:"progress" yaml:"progress"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Assignee    string        `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Cost        float64       `json:"cost,omitempty" yaml:"cost,omitempty"`
	CreatedAt   time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" yaml:"updated_at"`
}

// ExportSnapshot copies the canonical forest in display order.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list work items: %w", err)
	}
	ordered := tree.Build(items).Items()
	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Items:      make([]SnapshotItem, 0, len(ordered)),
	}
	for _, item := range ordered {
		snap.Items = append(snap.Items, snapshotItemFromDomain(item))
	}
	return snap, nil
}

// ImportSnapshot creates every snapshot item the store does not already hold, parents before
// children, then reindexes any sibling group the import left with gaps or duplicates. Existing
// ids are left untouched. An import whose new items would close a parent cycle with the stored
// forest is rejected before anything is written. It returns the number of items created.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) (int, error) {
	if err := snap.Validate(); err != nil {
		return 0, err
	}
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.release()
	if err := s.ensureFresh(ctx); err != nil {
		return 0, err
	}

	now := s.clock()
	incoming := make([]domain.WorkItem, 0, len(snap.Items))
	for _, item := range snap.Items {
		incoming = append(incoming, item.toDomain(now))
	}

	// New items may close a cycle through orphans already in the store.
	s.mu.Lock()
	merged := make(map[string]domain.WorkItem, len(s.arena)+len(incoming))
	maps.Copy(merged, s.arena)
	s.mu.Unlock()
	for _, item := range incoming {
		if _, exists := merged[item.ID]; !exists {
			merged[item.ID] = item
		}
	}
	if tree.BuildArena(merged).HasCycle() {
		return 0, fmt.Errorf("%w: parent references form a cycle with stored items: %w", ErrInvalidSnapshot, tree.ErrCycle)
	}

	created := 0
	for _, item := range tree.Build(incoming).Items() {
		s.mu.Lock()
		_, exists := s.arena[item.ID]
		s.mu.Unlock()
		if exists {
			s.logger.Debug("snapshot item already present; skipping", "item_id", item.ID)
			continue
		}
		stored, err := s.repo.CreateItem(ctx, item)
		if err != nil {
			s.markStale()
			return created, fmt.Errorf("import work item %q: %w", item.ID, err)
		}
		s.mu.Lock()
		s.arena[stored.ID] = stored
		s.gen++
		s.mu.Unlock()
		created++
	}

	s.mu.Lock()
	normalize := tree.BuildArena(s.arena).PlanNormalize()
	s.mu.Unlock()
	if len(normalize) > 0 {
		if err := s.repo.ReorderBatch(ctx, normalize); err != nil {
			s.markStale()
			return created, fmt.Errorf("normalize sibling order after import: %w", err)
		}
		s.mu.Lock()
		tree.ApplyChanges(s.arena, normalize)
		s.gen++
		s.mu.Unlock()
	}
	s.logger.Info("snapshot imported", "created", created, "skipped", len(snap.Items)-created, "reindexed", len(normalize))
	return created, nil
}

// Validate validates the requested operation.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSnapshot, s.Version)
	}

	seen := make(map[string]struct{}, len(s.Items))
	items := make([]domain.WorkItem, 0, len(s.Items))
	for i, item := range s.Items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			return fmt.Errorf("%w: items[%d].id is required", ErrInvalidSnapshot, i)
		}
		if _, exists := seen[id]; exists {
			return fmt.Errorf("%w: duplicate item id %q", ErrInvalidSnapshot, id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(item.ParentID) == id {
			return fmt.Errorf("%w: items[%d].parent_id cannot reference itself", ErrInvalidSnapshot, i)
		}
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("%w: items[%d].name is required", ErrInvalidSnapshot, i)
		}
		if item.Status != "" {
			status, err := domain.ParseStatus(string(item.Status))
			if err != nil {
				return fmt.Errorf("%w: items[%d]: %w", ErrInvalidSnapshot, i, err)
			}
			s.Items[i].Status = status
		}
		if item.Progress < 0 || item.Progress > domain.MaxProgress {
			return fmt.Errorf("%w: items[%d].progress must be 0-%d", ErrInvalidSnapshot, i, domain.MaxProgress)
		}
		if item.OrderIndex < 0 {
			return fmt.Errorf("%w: items[%d].order_index must be >= 0", ErrInvalidSnapshot, i)
		}
		if item.Cost < 0 {
			return fmt.Errorf("%w: items[%d].cost must be >= 0", ErrInvalidSnapshot, i)
		}
		items = append(items, domain.WorkItem{ID: id, ParentID: strings.TrimSpace(item.ParentID), OrderIndex: item.OrderIndex})
	}
	if tree.Build(items).HasCycle() {
		return fmt.Errorf("%w: parent references form a cycle", ErrInvalidSnapshot)
	}
	return nil
}

func (s *Service) markStale() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

func snapshotItemFromDomain(item domain.WorkItem) SnapshotItem {
	return SnapshotItem{
		ID:          item.ID,
		ParentID:    item.ParentID,
		OrderIndex:  item.OrderIndex,
		Name:        item.Name,
		Status:      item.Status,
		Progress:    item.Progress,
		Description: item.Description,
		Assignee:    item.Assignee,
		Cost:        item.Cost,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func (i SnapshotItem) toDomain(now time.Time) domain.WorkItem {
	status := i.Status
	if status == "" {
		status = domain.StatusPlanned
	}
	createdAt := i.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now.UTC()
	}
	updatedAt := i.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	return domain.WorkItem{
		ID:          strings.TrimSpace(i.ID),
		ParentID:    strings.TrimSpace(i.ParentID),
		OrderIndex:  i.OrderIndex,
		Name:        strings.TrimSpace(i.Name),
		Status:      status,
		Progress:    i.Progress,
		Description: strings.TrimSpace(i.Description),
		Assignee:    strings.TrimSpace(i.Assignee),
		Cost:        i.Cost,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
}
