package main

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	lgtree "github.com/charmbracelet/lipgloss/tree"
	"github.com/hylla/deskboard/internal/app"
	"github.com/hylla/deskboard/internal/domain"
	"github.com/hylla/deskboard/internal/tree"
	"github.com/spf13/cobra"
)

var (
	statusStyles = map[domain.Status]lipgloss.Style{
		domain.StatusPlanned:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		domain.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		domain.StatusBlocked:    lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true),
		domain.StatusCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("35")),
	}
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func newTreeCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Render the work-item forest with rolled-up status and progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, svc *app.Service) error {
				view, err := svc.View(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(forestDocFrom(view))
				}
				fmt.Fprint(out, renderForest(view))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the forest as JSON")
	return cmd
}

// forestNode is the JSON shape of one item and its subtree.
type forestNode struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	OrderIndex int           `json:"order_index"`
	Status     domain.Status `json:"status"`
	Progress   int           `json:"progress"`
	Derived    bool          `json:"derived,omitempty"`
	Children   []*forestNode `json:"children,omitempty"`
}

type forestDoc struct {
	Roots []*forestNode `json:"roots"`
	// Detached holds orphans and anything unreachable from a root.
	Detached []*forestNode `json:"detached,omitempty"`
	Stale    bool          `json:"stale,omitempty"`
}

// forestDocFrom nests items in display order. A child only attaches to a parent that was
// already placed, so a malformed parent cycle cannot produce a cyclic document.
func forestDocFrom(view app.View) forestDoc {
	doc := forestDoc{Roots: []*forestNode{}, Stale: view.Stale}
	placed := map[string]*forestNode{}
	for _, item := range view.Index.Items() {
		rollup := view.Rollups[item.ID]
		node := &forestNode{
			ID:         item.ID,
			Name:       item.Name,
			OrderIndex: item.OrderIndex,
			Status:     rollup.Status,
			Progress:   rollup.Progress,
			Derived:    rollup.Derived,
		}
		switch parent, ok := placed[item.ParentID]; {
		case item.IsRoot():
			doc.Roots = append(doc.Roots, node)
		case ok:
			parent.Children = append(parent.Children, node)
		default:
			doc.Detached = append(doc.Detached, node)
		}
		placed[item.ID] = node
	}
	return doc
}

// renderForest draws roots first, then a detached section for orphans.
func renderForest(view app.View) string {
	var b strings.Builder
	if view.Stale {
		b.WriteString(warnStyle.Render("! showing the last known tree; the store could not be reached"))
		b.WriteString("\n")
	}
	if view.LastError != nil {
		b.WriteString(warnStyle.Render("! last reorder failed: " + view.LastError.Error()))
		b.WriteString("\n")
	}
	if view.Index.Len() == 0 {
		b.WriteString("no work items\n")
		return b.String()
	}

	roots := lgtree.New().Enumerator(lgtree.RoundedEnumerator)
	var detached *lgtree.Tree
	placed := map[string]*lgtree.Tree{}
	for _, item := range view.Index.Items() {
		node := lgtree.Root(itemLabel(item, view.Rollups[item.ID]))
		switch parent, ok := placed[item.ParentID]; {
		case item.IsRoot():
			roots.Child(node)
		case ok:
			parent.Child(node)
		default:
			if detached == nil {
				detached = lgtree.Root(sectionStyle.Render("detached")).Enumerator(lgtree.RoundedEnumerator)
			}
			detached.Child(node)
		}
		placed[item.ID] = node
	}
	if roots.Children().Length() > 0 {
		b.WriteString(roots.String())
		b.WriteString("\n")
	}
	if detached != nil {
		b.WriteString(detached.String())
		b.WriteString("\n")
	}
	return b.String()
}

func itemLabel(item domain.WorkItem, rollup tree.Rollup) string {
	style, ok := statusStyles[rollup.Status]
	if !ok {
		style = lipgloss.NewStyle()
	}
	marker := ""
	if rollup.Derived {
		marker = "~"
	}
	return fmt.Sprintf("%s %s %s", item.Name,
		style.Render(fmt.Sprintf("[%s %s%d%%]", rollup.Status, marker, rollup.Progress)),
		idStyle.Render(item.ID))
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent changes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, svc *app.Service) error {
				events, err := svc.ListChangeEvents(ctx, limit)
				if err != nil {
					return err
				}
				if len(events) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no changes recorded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderHistory(events))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of events")
	return cmd
}

func renderHistory(events []domain.ChangeEvent) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("WHEN", "OP", "ITEM", "ACTOR", "DETAILS")
	for _, event := range events {
		actor := "-"
		if event.ActorID != "" {
			actor = event.ActorID + " (" + string(event.ActorType) + ")"
		}
		t.Row(event.OccurredAt.UTC().Format(time.RFC3339), string(event.Operation), event.WorkItemID, actor, formatMetadata(event.Metadata))
	}
	return t.String()
}

// formatMetadata renders metadata as sorted key=value pairs.
func formatMetadata(metadata map[string]string) string {
	keys := slices.Sorted(maps.Keys(metadata))
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+metadata[key])
	}
	return strings.Join(parts, " ")
}
