package tree

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/hylla/deskboard/internal/domain"
)

// wi builds a test item.
func wi(id, parentID string, order int) domain.WorkItem {
	return domain.WorkItem{ID: id, ParentID: parentID, OrderIndex: order, Name: id, Status: domain.StatusPlanned}
}

// withState sets status/progress on a test item.
func withState(item domain.WorkItem, status domain.Status, progress int) domain.WorkItem {
	item.Status = status
	item.Progress = progress
	return item
}

// ids returns the ids of items in order.
func ids(items []domain.WorkItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

// randomForest builds a well-formed forest with dense sibling order.
func randomForest(r *rand.Rand, n int) []domain.WorkItem {
	items := make([]domain.WorkItem, 0, n)
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		parentID := ""
		if i > 0 && r.IntN(4) != 0 {
			parentID = items[r.IntN(len(items))].ID
		}
		id := fmt.Sprintf("n%03d", i)
		status := domain.Statuses()[r.IntN(len(domain.Statuses()))]
		items = append(items, withState(wi(id, parentID, counts[parentID]), status, r.IntN(101)))
		counts[parentID]++
	}
	return items
}

// arenaOf converts a list into an id-keyed arena.
func arenaOf(items []domain.WorkItem) map[string]domain.WorkItem {
	out := make(map[string]domain.WorkItem, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out
}

func assertIDs(t *testing.T, label string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", label, got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("%s = %v, want %v", label, got, want)
		}
	}
}
