package tree

import "github.com/hylla/deskboard/internal/domain"

// DescendantsOf returns every id reachable from id through child edges, excluding id itself.
// The walk is breadth-first with a visited set, so malformed parent cycles terminate.
func (idx *Index) DescendantsOf(id string) map[string]struct{} {
	out := map[string]struct{}{}
	if !idx.Has(id) {
		return out
	}
	visited := map[string]struct{}{id: {}}
	queue := []string{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, childID := range idx.groups[current] {
			if _, seen := visited[childID]; seen {
				continue
			}
			visited[childID] = struct{}{}
			out[childID] = struct{}{}
			queue = append(queue, childID)
		}
	}
	return out
}

// ValidParentsOf returns every item that id may be reparented under, in display order.
// Moving to the root level is always legal and is not listed.
func (idx *Index) ValidParentsOf(id string) []domain.WorkItem {
	excluded := idx.DescendantsOf(id)
	excluded[id] = struct{}{}
	out := make([]domain.WorkItem, 0, len(idx.items))
	for _, item := range idx.Items() {
		if _, skip := excluded[item.ID]; skip {
			continue
		}
		out = append(out, item)
	}
	return out
}

// CheckParent validates that itemID may take parentID as its parent.
func (idx *Index) CheckParent(itemID, parentID string) error {
	if !idx.Has(itemID) {
		return ErrUnknownItem
	}
	if parentID == "" {
		return nil
	}
	if parentID == itemID {
		return &CycleError{ItemID: itemID, ParentID: parentID}
	}
	if !idx.Has(parentID) {
		return ErrUnknownParent
	}
	if _, ok := idx.DescendantsOf(itemID)[parentID]; ok {
		return &CycleError{ItemID: itemID, ParentID: parentID}
	}
	return nil
}

// HasCycle reports whether following parent links from any item revisits an item.
// Orphan chains end at the missing parent.
func (idx *Index) HasCycle() bool {
	done := make(map[string]struct{}, len(idx.items))
	for id := range idx.items {
		if _, ok := done[id]; ok {
			continue
		}
		path := map[string]struct{}{}
		current := id
		for current != "" {
			if _, ok := done[current]; ok {
				break
			}
			if _, ok := path[current]; ok {
				return true
			}
			item, ok := idx.items[current]
			if !ok {
				break
			}
			path[current] = struct{}{}
			current = item.ParentID
		}
		for visited := range path {
			done[visited] = struct{}{}
		}
	}
	return false
}
