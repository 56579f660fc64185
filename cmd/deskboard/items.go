package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hylla/deskboard/internal/app"
	"github.com/hylla/deskboard/internal/domain"
	"github.com/hylla/deskboard/internal/tree"
	"github.com/spf13/cobra"
)

func newAddCmd(opts *rootOptions) *cobra.Command {
	var (
		in     app.CreateItemInput
		status string
	)
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a work item at the end of its sibling group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			if status != "" {
				parsed, err := domain.ParseStatus(status)
				if err != nil {
					return fmt.Errorf("--status %q: %w", status, err)
				}
				in.Status = parsed
			}
			return opts.withSession(cmd, func(ctx context.Context, svc *app.Service) error {
				item, err := svc.CreateItem(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", item.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.ParentID, "parent", "", "parent item id (empty for root)")
	cmd.Flags().StringVar(&status, "status", "", "planned, in_progress, blocked, or completed")
	cmd.Flags().IntVar(&in.Progress, "progress", 0, "progress percentage 0-100")
	cmd.Flags().StringVar(&in.Description, "description", "", "free-form description")
	cmd.Flags().StringVar(&in.Assignee, "assignee", "", "who owns the item")
	cmd.Flags().Float64Var(&in.Cost, "cost", 0, "cost estimate")
	return cmd
}

func newEditCmd(opts *rootOptions) *cobra.Command {
	var (
		name, status, description, assignee string
		progress                            int
		cost                                float64
	)
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Edit name, status, progress, and other non-structural fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.WorkItemPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("status") {
				s := domain.Status(status)
				patch.Status = &s
			}
			if flags.Changed("progress") {
				patch.Progress = &progress
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("assignee") {
				patch.Assignee = &assignee
			}
			if flags.Changed("cost") {
				patch.Cost = &cost
			}
			if patch.IsEmpty() {
				return errors.New("nothing to edit: pass at least one field flag")
			}
			return opts.withSession(cmd, func(ctx context.Context, svc *app.Service) error {
				item, err := svc.UpdateItem(ctx, args[0], patch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s (%s %d%%)\n", item.ID, item.Status, item.Progress)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&status, "status", "", "planned, in_progress, blocked, or completed")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress percentage 0-100")
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	cmd.Flags().StringVar(&assignee, "assignee", "", "who owns the item")
	cmd.Flags().Float64Var(&cost, "cost", 0, "cost estimate")
	return cmd
}

func newMoveCmd(opts *rootOptions) *cobra.Command {
	var (
		parentID string
		toRoot   bool
		position int
	)
	cmd := &cobra.Command{
		Use:   "move ID",
		Short: "Reparent or reorder an item",
		Long: "Moves ID under --parent (or to the root level with --root) at --position. Without either flag the " +
			"item is reordered within its current sibling group. Position -1 appends.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return opts.withSession(cmd, func(ctx context.Context, svc *app.Service) error {
				var err error
				switch {
				case toRoot:
					err = svc.Reparent(ctx, id, "", position)
				case cmd.Flags().Changed("parent"):
					err = svc.Reparent(ctx, id, parentID, position)
				default:
					err = svc.Reorder(ctx, id, position)
				}
				if err != nil {
					return describeMoveError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "moved %s\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "new parent item id")
	cmd.Flags().BoolVar(&toRoot, "root", false, "move to the root level")
	cmd.Flags().IntVar(&position, "position", tree.AppendPosition, "target position among the new siblings")
	cmd.MarkFlagsMutuallyExclusive("parent", "root")
	return cmd
}

// describeMoveError keeps the sentinel chain intact while adding a hint for the common cases.
func describeMoveError(err error) error {
	var commitErr *app.CommitError
	switch {
	case errors.Is(err, tree.ErrCycle):
		return fmt.Errorf("%w (see `deskboard parents` for valid targets)", err)
	case errors.As(err, &commitErr) && commitErr.Timeout():
		return fmt.Errorf("store did not confirm the move in time; nothing changed: %w", err)
	case errors.As(err, &commitErr):
		return fmt.Errorf("store rejected the move; nothing changed: %w", err)
	default:
		return err
	}
}

func newParentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parents ID",
		Short: "List the items ID may be moved under",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, svc *app.Service) error {
				parents, err := svc.ValidParents(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "(root)")
				for _, parent := range parents {
					fmt.Fprintf(out, "%s\t%s\n", parent.ID, parent.Name)
				}
				return nil
			})
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one item; its children stay behind as orphans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, svc *app.Service) error {
				if err := svc.DeleteItem(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}
