package tree

import (
	"math"

	"github.com/hylla/deskboard/internal/domain"
)

// Rollup is the displayed status/progress pair for one item.
type Rollup struct {
	Status   domain.Status
	Progress int
	// Derived is true when the pair was computed from children rather than stored.
	Derived bool
}

// Leaf returns the stored pair of an item.
func Leaf(item domain.WorkItem) Rollup {
	return Rollup{Status: item.Status, Progress: item.Progress}
}

// Combine derives a parent's pair from its children's already-aggregated pairs.
// Blocked outranks in-progress, which outranks a planned child with nonzero progress.
func Combine(children []Rollup) Rollup {
	if len(children) == 0 {
		return Rollup{Status: domain.StatusPlanned}
	}
	var (
		sum        int
		allDone    = true
		anyBlocked bool
		anyActive  bool
	)
	for _, child := range children {
		sum += child.Progress
		if child.Status != domain.StatusCompleted {
			allDone = false
		}
		switch {
		case child.Status == domain.StatusBlocked:
			anyBlocked = true
		case child.Status == domain.StatusInProgress, child.Progress > 0:
			anyActive = true
		}
	}

	out := Rollup{
		Progress: int(math.Round(float64(sum) / float64(len(children)))),
		Derived:  true,
	}
	switch {
	case allDone:
		out.Status = domain.StatusCompleted
	case anyBlocked:
		out.Status = domain.StatusBlocked
	case anyActive:
		out.Status = domain.StatusInProgress
	default:
		out.Status = domain.StatusPlanned
	}
	return out
}

// Aggregate computes the displayed pair for every item, children before parents.
// Each root and orphan starts its own post-order walk; orphans never feed their missing parent.
func (idx *Index) Aggregate() map[string]Rollup {
	out := make(map[string]Rollup, len(idx.items))

	type frame struct {
		id       string
		expanded bool
	}
	starts := make([]string, 0, len(idx.roots)+len(idx.orphans))
	starts = append(starts, idx.roots...)
	starts = append(starts, idx.orphans...)

	entered := make(map[string]struct{}, len(idx.items))
	for _, start := range starts {
		stack := []frame{{id: start}}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			children := idx.groups[top.id]

			if top.expanded {
				rollups := make([]Rollup, 0, len(children))
				for _, childID := range children {
					if r, ok := out[childID]; ok {
						rollups = append(rollups, r)
					}
				}
				if len(rollups) == 0 {
					out[top.id] = Leaf(idx.items[top.id])
				} else {
					out[top.id] = Combine(rollups)
				}
				continue
			}

			if _, seen := entered[top.id]; seen {
				continue
			}
			entered[top.id] = struct{}{}
			stack = append(stack, frame{id: top.id, expanded: true})
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, frame{id: children[i]})
			}
		}
	}

	// Only members of a malformed parent cycle are left; they show their stored values.
	for id, item := range idx.items {
		if _, ok := out[id]; !ok {
			out[id] = Leaf(item)
		}
	}
	return out
}
