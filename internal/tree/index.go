// Package tree derives the navigable forest from a flat work-item arena and keeps it
// consistent: descendant walks, legal reparent targets, dense sibling ordering, and
// bottom-up status/progress rollups.
package tree

import (
	"slices"
	"strings"

	"github.com/hylla/deskboard/internal/domain"
)

// Index is a read-only view of one arena snapshot.
type Index struct {
	items   map[string]domain.WorkItem
	roots   []string
	groups  map[string][]string
	orphans []string
}

// Build derives roots, ordered sibling groups, and orphans from a flat item list.
func Build(items []domain.WorkItem) *Index {
	idx := &Index{
		items:  make(map[string]domain.WorkItem, len(items)),
		groups: map[string][]string{},
	}
	for _, item := range items {
		idx.items[item.ID] = item
	}

	grouped := map[string][]domain.WorkItem{}
	for _, item := range idx.items {
		grouped[item.ParentID] = append(grouped[item.ParentID], item)
	}
	for parentID, group := range grouped {
		idx.groups[parentID] = orderGroup(group)
	}

	idx.roots = idx.groups[""]
	for parentID, group := range idx.groups {
		if parentID == "" {
			continue
		}
		if _, ok := idx.items[parentID]; ok {
			continue
		}
		idx.orphans = append(idx.orphans, group...)
	}
	slices.SortFunc(idx.orphans, func(a, b string) int {
		return compareItems(idx.items[a], idx.items[b])
	})
	return idx
}

// BuildArena builds an index from an id-keyed arena.
func BuildArena(arena map[string]domain.WorkItem) *Index {
	items := make([]domain.WorkItem, 0, len(arena))
	for _, item := range arena {
		items = append(items, item)
	}
	return Build(items)
}

// Len returns the number of indexed items.
func (idx *Index) Len() int {
	return len(idx.items)
}

// Item returns one indexed item.
func (idx *Index) Item(id string) (domain.WorkItem, bool) {
	item, ok := idx.items[id]
	return item, ok
}

// Has reports whether the id is present in the snapshot.
func (idx *Index) Has(id string) bool {
	_, ok := idx.items[id]
	return ok
}

// Roots returns root items sorted by order index.
func (idx *Index) Roots() []domain.WorkItem {
	return idx.resolve(idx.roots)
}

// Children returns the direct children of an existing item sorted by order index.
func (idx *Index) Children(id string) []domain.WorkItem {
	if !idx.Has(id) {
		return nil
	}
	return idx.resolve(idx.groups[id])
}

// ChildIDs returns the ordered child ids of an existing item.
func (idx *Index) ChildIDs(id string) []string {
	if !idx.Has(id) {
		return nil
	}
	return slices.Clone(idx.groups[id])
}

// Orphans returns items whose parent reference points at a missing item.
func (idx *Index) Orphans() []domain.WorkItem {
	return idx.resolve(idx.orphans)
}

// IsOrphan reports whether the item references a missing parent.
func (idx *Index) IsOrphan(id string) bool {
	item, ok := idx.items[id]
	if !ok || item.ParentID == "" {
		return false
	}
	return !idx.Has(item.ParentID)
}

// Group returns the ordered sibling ids sharing parentID ("" for roots). Groups keyed by a
// missing parent are returned too, so orphans can be reordered among themselves.
func (idx *Index) Group(parentID string) []string {
	return slices.Clone(idx.groups[parentID])
}

// Items returns every item in display order: each root subtree, then each orphan subtree,
// then anything unreachable from either (only possible with a malformed parent cycle).
func (idx *Index) Items() []domain.WorkItem {
	out := make([]domain.WorkItem, 0, len(idx.items))
	for _, id := range idx.displayOrder() {
		out = append(out, idx.items[id])
	}
	return out
}

// displayOrder walks the forest preorder with an explicit stack.
func (idx *Index) displayOrder() []string {
	out := make([]string, 0, len(idx.items))
	seen := make(map[string]struct{}, len(idx.items))
	starts := make([]string, 0, len(idx.roots)+len(idx.orphans))
	starts = append(starts, idx.roots...)
	starts = append(starts, idx.orphans...)
	for _, start := range starts {
		stack := []string{start}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
			children := idx.groups[id]
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		}
	}
	if len(out) == len(idx.items) {
		return out
	}
	rest := make([]string, 0, len(idx.items)-len(out))
	for id := range idx.items {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

func (idx *Index) resolve(ids []string) []domain.WorkItem {
	out := make([]domain.WorkItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx.items[id])
	}
	return out
}

// orderGroup returns sibling ids by order index. A dense group is placed directly by index;
// gaps or duplicates fall back to a sort with id as tiebreak.
func orderGroup(group []domain.WorkItem) []string {
	out := make([]string, len(group))
	placed := make([]bool, len(group))
	dense := true
	for _, item := range group {
		pos := item.OrderIndex
		if pos < 0 || pos >= len(group) || placed[pos] {
			dense = false
			break
		}
		out[pos] = item.ID
		placed[pos] = true
	}
	if dense {
		return out
	}
	sorted := slices.Clone(group)
	slices.SortFunc(sorted, compareItems)
	for i, item := range sorted {
		out[i] = item.ID
	}
	return out
}

func compareItems(a, b domain.WorkItem) int {
	if a.OrderIndex != b.OrderIndex {
		return a.OrderIndex - b.OrderIndex
	}
	return strings.Compare(a.ID, b.ID)
}
