package tree

import (
	"math/rand/v2"
	"testing"

	"github.com/hylla/deskboard/internal/domain"
)

func TestCombine(t *testing.T) {
	cases := []struct {
		name     string
		children []Rollup
		want     Rollup
	}{
		{
			name:     "all completed",
			children: []Rollup{{Status: domain.StatusCompleted, Progress: 100}, {Status: domain.StatusCompleted, Progress: 100}},
			want:     Rollup{Status: domain.StatusCompleted, Progress: 100, Derived: true},
		},
		{
			name:     "blocked dominates in progress",
			children: []Rollup{{Status: domain.StatusInProgress, Progress: 40}, {Status: domain.StatusBlocked, Progress: 0}},
			want:     Rollup{Status: domain.StatusBlocked, Progress: 20, Derived: true},
		},
		{
			name:     "all planned",
			children: []Rollup{{Status: domain.StatusPlanned}, {Status: domain.StatusPlanned}},
			want:     Rollup{Status: domain.StatusPlanned, Progress: 0, Derived: true},
		},
		{
			name:     "planned with progress counts as in progress",
			children: []Rollup{{Status: domain.StatusPlanned, Progress: 10}, {Status: domain.StatusPlanned}},
			want:     Rollup{Status: domain.StatusInProgress, Progress: 5, Derived: true},
		},
		{
			name:     "completed mixed with planned",
			children: []Rollup{{Status: domain.StatusCompleted, Progress: 100}, {Status: domain.StatusPlanned}},
			want:     Rollup{Status: domain.StatusInProgress, Progress: 50, Derived: true},
		},
		{
			name:     "mean rounds half away from zero",
			children: []Rollup{{Status: domain.StatusInProgress, Progress: 1}, {Status: domain.StatusInProgress, Progress: 2}},
			want:     Rollup{Status: domain.StatusInProgress, Progress: 2, Derived: true},
		},
		{
			name:     "mean rounds down below half",
			children: []Rollup{{Status: domain.StatusInProgress, Progress: 10}, {Status: domain.StatusInProgress, Progress: 10}, {Status: domain.StatusInProgress, Progress: 11}},
			want:     Rollup{Status: domain.StatusInProgress, Progress: 10, Derived: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Combine(tc.children); got != tc.want {
				t.Fatalf("Combine() = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestAggregateBottomUp(t *testing.T) {
	idx := Build([]domain.WorkItem{
		// Stored parent values are ignored in favor of children.
		withState(wi("root", "", 0), domain.StatusCompleted, 100),
		withState(wi("mid", "root", 0), domain.StatusPlanned, 0),
		withState(wi("leaf1", "mid", 0), domain.StatusCompleted, 100),
		withState(wi("leaf2", "mid", 1), domain.StatusInProgress, 50),
		withState(wi("side", "root", 1), domain.StatusPlanned, 0),
	})
	got := idx.Aggregate()

	if r := got["leaf2"]; r.Derived || r.Status != domain.StatusInProgress || r.Progress != 50 {
		t.Fatalf("leaf must keep stored values, got %#v", r)
	}
	if r := got["mid"]; r.Status != domain.StatusInProgress || r.Progress != 75 || !r.Derived {
		t.Fatalf("unexpected mid rollup %#v", r)
	}
	// root = mean(75, 0) from mid's aggregated value, not from the raw grandchildren.
	if r := got["root"]; r.Status != domain.StatusInProgress || r.Progress != 38 {
		t.Fatalf("unexpected root rollup %#v", r)
	}
}

func TestAggregateExcludesOrphansFromNominalParent(t *testing.T) {
	idx := Build([]domain.WorkItem{
		withState(wi("p", "", 0), domain.StatusPlanned, 0),
		withState(wi("c", "p", 0), domain.StatusCompleted, 100),
		withState(wi("orphan", "deleted", 0), domain.StatusBlocked, 0),
		withState(wi("oc", "orphan", 0), domain.StatusInProgress, 30),
	})
	got := idx.Aggregate()
	if r := got["p"]; r.Status != domain.StatusCompleted || r.Progress != 100 {
		t.Fatalf("unexpected parent rollup %#v", r)
	}
	if r := got["orphan"]; r.Status != domain.StatusInProgress || r.Progress != 30 {
		t.Fatalf("orphan rolls up its own children, got %#v", r)
	}
	if len(got) != 4 {
		t.Fatalf("expected a rollup for every item, got %d", len(got))
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	r := rand.New(rand.NewPCG(12, 13))
	idx := Build(randomForest(r, 60))
	first := idx.Aggregate()
	second := idx.Aggregate()
	if len(first) != len(second) {
		t.Fatalf("rollup size changed: %d vs %d", len(first), len(second))
	}
	for id, want := range first {
		if second[id] != want {
			t.Fatalf("rollup for %q changed: %#v vs %#v", id, second[id], want)
		}
	}
}

func TestAggregateMatchesCombineOverChildren(t *testing.T) {
	r := rand.New(rand.NewPCG(4, 2))
	items := randomForest(r, 50)
	idx := Build(items)
	got := idx.Aggregate()
	for _, item := range items {
		children := idx.Children(item.ID)
		if len(children) == 0 {
			if got[item.ID] != Leaf(item) {
				t.Fatalf("leaf %q = %#v, want stored %#v", item.ID, got[item.ID], Leaf(item))
			}
			continue
		}
		rollups := make([]Rollup, 0, len(children))
		for _, child := range children {
			rollups = append(rollups, got[child.ID])
		}
		if want := Combine(rollups); got[item.ID] != want {
			t.Fatalf("parent %q = %#v, want %#v", item.ID, got[item.ID], want)
		}
	}
}

func TestAggregateMalformedCycleUsesStoredValues(t *testing.T) {
	idx := Build([]domain.WorkItem{
		withState(wi("x", "y", 0), domain.StatusBlocked, 10),
		withState(wi("y", "x", 0), domain.StatusPlanned, 0),
	})
	got := idx.Aggregate()
	if got["x"] != Leaf(idx.items["x"]) || got["y"] != Leaf(idx.items["y"]) {
		t.Fatalf("unexpected cycle rollups %#v", got)
	}
}
