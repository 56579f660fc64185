package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hylla/deskboard/internal/tree"
)

// cliEnv points every invocation at a throwaway database and a missing config file.
type cliEnv struct {
	db     string
	config string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	return &cliEnv{
		db:     filepath.Join(dir, "board.db"),
		config: filepath.Join(dir, "config.toml"),
	}
}

func (e *cliEnv) exec(args ...string) (string, error) {
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--dev=false", "--config", e.config, "--db", e.db, "--actor", "tester"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.exec(args...)
	if err != nil {
		t.Fatalf("deskboard %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func (e *cliEnv) add(t *testing.T, args ...string) string {
	t.Helper()
	out := e.run(t, append([]string{"add"}, args...)...)
	id := strings.TrimPrefix(strings.TrimSpace(out), "created ")
	if id == "" || id == strings.TrimSpace(out) {
		t.Fatalf("unexpected add output %q", out)
	}
	return id
}

func (e *cliEnv) forest(t *testing.T) forestDoc {
	t.Helper()
	var doc forestDoc
	if err := json.Unmarshal([]byte(e.run(t, "tree", "--json")), &doc); err != nil {
		t.Fatalf("decode tree json: %v", err)
	}
	return doc
}

func nodeIDs(nodes []*forestNode) []string {
	out := make([]string, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, node.ID)
	}
	return out
}

func TestVersionCmd(t *testing.T) {
	out := newCLIEnv(t).run(t, "version")
	if !strings.Contains(out, "deskboard "+version) {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestPathsCmdHonorsOverrides(t *testing.T) {
	env := newCLIEnv(t)
	out := env.run(t, "paths", "--app", "board")
	for _, want := range []string{"app: board", "dev_mode: false", "config: " + env.config, "db: " + env.db, "log_dir: "} {
		if !strings.Contains(out, want) {
			t.Fatalf("paths output missing %q:\n%s", want, out)
		}
	}
}

func TestTreeOnEmptyStore(t *testing.T) {
	out := newCLIEnv(t).run(t, "tree")
	if !strings.Contains(out, "no work items") {
		t.Fatalf("unexpected empty tree output %q", out)
	}
}

func TestAddMoveAndTree(t *testing.T) {
	env := newCLIEnv(t)
	alpha := env.add(t, "Alpha")
	beta := env.add(t, "Beta")
	child := env.add(t, "Child", "--parent", alpha, "--status", "in_progress", "--progress", "50")

	doc := env.forest(t)
	if got := nodeIDs(doc.Roots); len(got) != 2 || got[0] != alpha || got[1] != beta {
		t.Fatalf("unexpected roots %v", got)
	}
	a := doc.Roots[0]
	if len(a.Children) != 1 || a.Children[0].ID != child {
		t.Fatalf("expected child under alpha, got %#v", a.Children)
	}
	if !a.Derived || a.Progress != 50 || a.Status != "in_progress" {
		t.Fatalf("expected alpha rolled up from child, got %#v", a)
	}

	env.run(t, "move", child, "--parent", beta, "--position", "0")
	doc = env.forest(t)
	if len(doc.Roots[0].Children) != 0 || len(doc.Roots[1].Children) != 1 {
		t.Fatalf("child should have moved under beta: %#v", doc.Roots)
	}

	env.run(t, "move", beta, "--position", "0")
	doc = env.forest(t)
	if got := nodeIDs(doc.Roots); got[0] != beta || got[1] != alpha {
		t.Fatalf("unexpected root order after reorder %v", got)
	}
	for _, root := range doc.Roots {
		if root.OrderIndex != 0 && root.OrderIndex != 1 {
			t.Fatalf("root order must stay dense, got %#v", root)
		}
	}

	env.run(t, "move", child, "--root")
	doc = env.forest(t)
	if got := nodeIDs(doc.Roots); len(got) != 3 || got[2] != child {
		t.Fatalf("expected child appended at root, got %v", got)
	}

	out := env.run(t, "tree")
	for _, want := range []string{"Alpha", "Beta", "Child", child} {
		if !strings.Contains(out, want) {
			t.Fatalf("tree output missing %q:\n%s", want, out)
		}
	}
}

func TestMoveRejectsCycle(t *testing.T) {
	env := newCLIEnv(t)
	parent := env.add(t, "Parent")
	child := env.add(t, "Child", "--parent", parent)

	_, err := env.exec("move", parent, "--parent", child)
	if !errors.Is(err, tree.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if _, err := env.exec("move", parent, "--parent", child, "--root"); err == nil {
		t.Fatal("expected --parent and --root to be mutually exclusive")
	}

	out := env.run(t, "parents", child)
	if !strings.Contains(out, "(root)") || !strings.Contains(out, parent) {
		t.Fatalf("unexpected parents output %q", out)
	}
	out = env.run(t, "parents", parent)
	if strings.Contains(out, child) {
		t.Fatalf("descendant must not be offered as a parent:\n%s", out)
	}
}

func TestEditDeleteAndHistory(t *testing.T) {
	env := newCLIEnv(t)
	parent := env.add(t, "Parent")
	child := env.add(t, "Child", "--parent", parent)

	out := env.run(t, "edit", child, "--status", "done", "--progress", "100")
	if !strings.Contains(out, "completed 100%") {
		t.Fatalf("unexpected edit output %q", out)
	}
	if _, err := env.exec("edit", child); err == nil {
		t.Fatal("expected error for an edit without fields")
	}
	if _, err := env.exec("edit", child, "--progress", "140"); err == nil {
		t.Fatal("expected error for out-of-range progress")
	}

	env.run(t, "delete", parent)
	doc := env.forest(t)
	if len(doc.Roots) != 0 || len(doc.Detached) != 1 || doc.Detached[0].ID != child {
		t.Fatalf("child should be detached after its parent is deleted: %#v", doc)
	}

	out = env.run(t, "history", "--limit", "2")
	if !strings.Contains(out, "delete") || !strings.Contains(out, parent) || !strings.Contains(out, "tester (user)") {
		t.Fatalf("history should show the delete first:\n%s", out)
	}
	if strings.Contains(out, "create") {
		t.Fatalf("history should honor --limit:\n%s", out)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newCLIEnv(t)
	root := src.add(t, "Launch")
	src.add(t, "Docs", "--parent", root, "--status", "blocked")
	src.add(t, "Site", "--parent", root)

	snapPath := filepath.Join(t.TempDir(), "out", "board.yaml")
	src.run(t, "export", "--out", snapPath)

	jsonOut := src.run(t, "export")
	var snap struct {
		Version string           `json:"version"`
		Items   []map[string]any `json:"items"`
	}
	if err := json.Unmarshal([]byte(jsonOut), &snap); err != nil {
		t.Fatalf("decode json export: %v", err)
	}
	if snap.Version != "deskboard.snapshot.v1" || len(snap.Items) != 3 {
		t.Fatalf("unexpected json export %#v", snap)
	}

	dst := newCLIEnv(t)
	out := dst.run(t, "import", snapPath)
	if strings.TrimSpace(out) != "imported 3 of 3 items" {
		t.Fatalf("unexpected import output %q", out)
	}
	out = dst.run(t, "import", snapPath)
	if strings.TrimSpace(out) != "imported 0 of 3 items" {
		t.Fatalf("re-import should skip existing items, got %q", out)
	}

	doc := dst.forest(t)
	if len(doc.Roots) != 1 || doc.Roots[0].ID != root || len(doc.Roots[0].Children) != 2 {
		t.Fatalf("unexpected imported forest %#v", doc)
	}
	if doc.Roots[0].Status != "blocked" {
		t.Fatalf("blocked child should roll up, got %q", doc.Roots[0].Status)
	}
}

func TestImportRejectsUnknownFormat(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.exec("import", "board.json", "--format", "xml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestResolveFormat(t *testing.T) {
	cases := []struct {
		explicit, path, want string
	}{
		{"", "snap.json", formatJSON},
		{"", "snap.YAML", formatYAML},
		{"", "snap.yml", formatYAML},
		{"", "-", formatJSON},
		{"yml", "snap.json", formatYAML},
		{"JSON", "snap.yaml", formatJSON},
	}
	for _, tc := range cases {
		got, err := resolveFormat(tc.explicit, tc.path)
		if err != nil || got != tc.want {
			t.Fatalf("resolveFormat(%q, %q) = %q, %v; want %q", tc.explicit, tc.path, got, err, tc.want)
		}
	}
}
