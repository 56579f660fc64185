package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hylla/deskboard/internal/app"
	"github.com/hylla/deskboard/internal/domain"
	"github.com/hylla/deskboard/internal/tree"
)

func viewOf(stale bool, items ...domain.WorkItem) app.View {
	idx := tree.Build(items)
	return app.View{Index: idx, Rollups: idx.Aggregate(), Stale: stale}
}

func TestRenderForestSections(t *testing.T) {
	view := viewOf(true,
		domain.WorkItem{ID: "r", Name: "Release", Status: domain.StatusPlanned},
		domain.WorkItem{ID: "r1", ParentID: "r", Name: "Notes", Status: domain.StatusCompleted, Progress: 100},
		domain.WorkItem{ID: "o", ParentID: "gone", Name: "Stray", Status: domain.StatusBlocked},
	)
	out := renderForest(view)
	for _, want := range []string{"could not be reached", "Release", "Notes", "detached", "Stray", "[completed ~100%]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Stray") < strings.Index(out, "detached") {
		t.Fatalf("orphan should render under the detached section:\n%s", out)
	}
}

func TestForestDocSurvivesParentCycle(t *testing.T) {
	view := viewOf(false,
		domain.WorkItem{ID: "root", Name: "Root", Status: domain.StatusPlanned},
		domain.WorkItem{ID: "x", ParentID: "y", Name: "X", Status: domain.StatusPlanned},
		domain.WorkItem{ID: "y", ParentID: "x", Name: "Y", Status: domain.StatusPlanned},
	)
	doc := forestDocFrom(view)
	if len(doc.Roots) != 1 || doc.Roots[0].ID != "root" {
		t.Fatalf("unexpected roots %#v", doc.Roots)
	}
	if len(doc.Detached) != 1 || len(doc.Detached[0].Children) != 1 {
		t.Fatalf("cycle members should form one detached chain, got %#v", doc.Detached)
	}
	if out := renderForest(view); !strings.Contains(out, "X") || !strings.Contains(out, "Y") {
		t.Fatalf("cycle members should still render:\n%s", out)
	}
}

func TestRenderHistory(t *testing.T) {
	out := renderHistory([]domain.ChangeEvent{{
		WorkItemID: "item-1",
		Operation:  domain.ChangeOperationMove,
		ActorID:    "casey",
		ActorType:  domain.ActorTypeUser,
		Metadata:   map[string]string{"to_parent": "p", "from_parent": ""},
		OccurredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}})
	for _, want := range []string{"WHEN", "move", "item-1", "2026-03-01T09:00:00Z", "casey (user)", "from_parent= to_parent=p"} {
		if !strings.Contains(out, want) {
			t.Fatalf("history missing %q:\n%s", want, out)
		}
	}
}

func TestDescribeMoveError(t *testing.T) {
	cycle := fmt.Errorf("plan move: %w", tree.ErrCycle)
	if err := describeMoveError(cycle); !errors.Is(err, tree.ErrCycle) || !strings.Contains(err.Error(), "parents") {
		t.Fatalf("unexpected cycle error %v", err)
	}
	commit := &app.CommitError{Err: errors.New("disk full")}
	if err := describeMoveError(commit); !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("unexpected commit error %v", err)
	}
	plain := errors.New("boom")
	if err := describeMoveError(plain); err != plain {
		t.Fatalf("unrelated errors should pass through, got %v", err)
	}
}
