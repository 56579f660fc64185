package tree

import (
	"fmt"
	"slices"

	"github.com/hylla/deskboard/internal/domain"
)

// AppendPosition places a moved item after every existing sibling.
const AppendPosition = -1

// Move describes one reparent or reorder request. ParentID "" targets the root level.
type Move struct {
	ItemID   string
	ParentID string
	Position int
}

// PlanMove removes the item from its current sibling group, inserts it into the target
// group at Position, and reindexes both groups to 0..N-1. Only items whose parent or order
// actually changes are returned; a no-op move returns an empty batch.
func (idx *Index) PlanMove(m Move) ([]domain.OrderChange, error) {
	item, ok := idx.items[m.ItemID]
	if !ok {
		return nil, ErrUnknownItem
	}
	// An orphan may be reordered within its detached group even though the parent is gone.
	orphanReorder := m.ParentID != "" && m.ParentID == item.ParentID && !idx.Has(m.ParentID)
	if !orphanReorder {
		if err := idx.CheckParent(m.ItemID, m.ParentID); err != nil {
			return nil, err
		}
	}

	source := without(idx.groups[item.ParentID], m.ItemID)
	target := source
	if m.ParentID != item.ParentID {
		target = without(idx.groups[m.ParentID], m.ItemID)
	}

	pos := m.Position
	if pos == AppendPosition {
		pos = len(target)
	}
	if pos < 0 || pos > len(target) {
		return nil, fmt.Errorf("%w: %d (valid range 0-%d)", ErrInvalidPosition, m.Position, len(target))
	}
	target = slices.Insert(slices.Clone(target), pos, m.ItemID)

	changes := make([]domain.OrderChange, 0, len(source)+len(target))
	if m.ParentID != item.ParentID {
		changes = append(changes, idx.reindex(item.ParentID, source)...)
	}
	changes = append(changes, idx.reindex(m.ParentID, target)...)
	return changes, nil
}

// PlanCompaction closes the gap left in parentID's group once removedID is gone.
func (idx *Index) PlanCompaction(parentID, removedID string) []domain.OrderChange {
	return idx.reindex(parentID, without(idx.groups[parentID], removedID))
}

// PlanNormalize reindexes every sibling group that has gaps or duplicates, keeping the
// current display order. Groups are visited in parent id order so the batch is stable.
func (idx *Index) PlanNormalize() []domain.OrderChange {
	parents := make([]string, 0, len(idx.groups))
	for parentID := range idx.groups {
		parents = append(parents, parentID)
	}
	slices.Sort(parents)
	var out []domain.OrderChange
	for _, parentID := range parents {
		out = append(out, idx.reindex(parentID, idx.groups[parentID])...)
	}
	return out
}

// CheckDense reports the first sibling group whose order indices are not exactly 0..N-1.
func (idx *Index) CheckDense() error {
	for parentID, group := range idx.groups {
		for pos, id := range group {
			if idx.items[id].OrderIndex != pos {
				return fmt.Errorf("%w: parent %q position %d holds order index %d", ErrSparseGroup, parentID, pos, idx.items[id].OrderIndex)
			}
		}
	}
	return nil
}

// ApplyChanges writes a batch into an id-keyed arena. Unknown ids are ignored.
func ApplyChanges(arena map[string]domain.WorkItem, changes []domain.OrderChange) {
	for _, change := range changes {
		item, ok := arena[change.ID]
		if !ok {
			continue
		}
		item.ParentID = change.ParentID
		item.OrderIndex = change.OrderIndex
		arena[change.ID] = item
	}
}

// reindex assigns each id its position within the group under parentID.
func (idx *Index) reindex(parentID string, group []string) []domain.OrderChange {
	var out []domain.OrderChange
	for pos, id := range group {
		item := idx.items[id]
		if item.ParentID == parentID && item.OrderIndex == pos {
			continue
		}
		out = append(out, domain.OrderChange{ID: id, ParentID: parentID, OrderIndex: pos})
	}
	return out
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
