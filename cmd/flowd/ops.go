package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alem-hub/flow-engine/config"
	"github.com/alem-hub/flow-engine/internal/application/command"
	"github.com/alem-hub/flow-engine/internal/application/query"
	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/interaction"
)

// ══════════════════════════════════════════════════════════════════════════════
// OPERATOR COMMANDS
// One use case per command; results are printed as JSON.
// ══════════════════════════════════════════════════════════════════════════════

func resolveDSN(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv("DATABASE_URL")
}

// withApp wires the engine for a single operator call and prints its result.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) (any, error)) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	rt, err := buildRuntime(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer rt.close()

	out, err := fn(cmd.Context(), rt)
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAssignCmd() *cobra.Command {
	var c command.AssignFlowCommand

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a flow to a learner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) (any, error) {
				res, err := a.assign.Handle(ctx, c)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"assignment_id": res.Assignment.ID,
					"snapshot_id":   res.Snapshot.ID,
					"status":        res.Assignment.Status,
					"deadline":      res.Assignment.Deadline,
					"stats":         res.Stats,
				}, nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&c.UserID, "user", "", "learner id")
	f.StringVar(&c.FlowID, "flow", "", "flow id")
	f.StringVar(&c.AssignedBy, "by", "", "assigning user id")
	f.StringSliceVar(&c.BuddyIDs, "buddy", nil, "buddy user ids (1-5)")
	f.IntVar(&c.CustomDeadlineDays, "deadline-days", 0, "deadline in business days from now")
	return cmd
}

func newInteractCmd() *cobra.Command {
	var (
		c      command.InteractCommand
		action string
		data   string
	)

	cmd := &cobra.Command{
		Use:   "interact",
		Short: "Process one learner interaction with a component",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.Action = interaction.Action(action)
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data is not valid JSON")
				}
				c.Data = json.RawMessage(data)
			}
			return withApp(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.interact.Handle(ctx, c)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&c.AssignmentID, "assignment", "", "assignment id")
	f.StringVar(&c.UserID, "user", "", "learner id")
	f.StringVar(&c.ComponentID, "component", "", "component id")
	f.StringVar(&action, "action", "", "action, e.g. START, SUBMIT, COMPLETE")
	f.StringVar(&data, "data", "", "action data as JSON")
	f.Int64Var(&c.TimeSpent, "time-spent", 0, "seconds spent since the previous interaction")
	return cmd
}

func newTransitionCmd() *cobra.Command {
	var (
		c      command.LifecycleCommand
		action string
	)

	cmd := &cobra.Command{
		Use:   "transition",
		Short: "Start, pause, resume, complete, cancel or extend an assignment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.Action = command.LifecycleAction(action)
			return withApp(cmd, func(ctx context.Context, a *app) (any, error) {
				res, err := a.lifecycle.Handle(ctx, c)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"assignment_id":        res.Assignment.ID,
					"from":                 res.From,
					"to":                   res.To,
					"deadline":             res.Assignment.Deadline,
					"deadline_extended_by": res.DeadlineExtendedBy,
				}, nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&c.AssignmentID, "assignment", "", "assignment id")
	f.StringVar(&c.ActorID, "actor", "", "acting user id")
	f.StringVar(&action, "action", "", "start|pause|resume|complete|cancel|extend_deadline")
	f.StringVar(&c.Reason, "reason", "", "reason for pause or cancel")
	f.IntVar(&c.Days, "days", 0, "business days for extend_deadline")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var c command.DeleteAssignmentCommand

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Soft-delete an assignment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) (any, error) {
				if err := a.lifecycle.Delete(ctx, c); err != nil {
					return nil, err
				}
				return map[string]any{"assignment_id": c.AssignmentID, "deleted": true}, nil
			})
		},
	}
	cmd.Flags().StringVar(&c.AssignmentID, "assignment", "", "assignment id")
	cmd.Flags().StringVar(&c.ActorID, "actor", "", "acting admin id")
	return cmd
}

func newProgressCmd() *cobra.Command {
	var q query.GetAssignmentProgressQuery

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show the progress of an assignment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.progress.Handle(ctx, q)
			})
		},
	}
	cmd.Flags().StringVar(&q.AssignmentID, "assignment", "", "assignment id")
	cmd.Flags().StringVar(&q.ViewerID, "viewer", "", "viewing user id")
	return cmd
}

func newListCmd() *cobra.Command {
	var (
		q        query.ListUserAssignmentsQuery
		statuses []string
	)

	cmd := &cobra.Command{
		Use:   "assignments",
		Short: "List the assignments of a learner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range statuses {
				q.Statuses = append(q.Statuses, assignment.Status(s))
			}
			return withApp(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.list.Handle(ctx, q)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.UserID, "user", "", "learner id")
	f.StringVar(&q.ViewerID, "viewer", "", "viewing user id")
	f.StringSliceVar(&statuses, "status", nil, "status filter, e.g. IN_PROGRESS")
	f.IntVar(&q.Limit, "limit", 50, "page size")
	f.IntVar(&q.Offset, "offset", 0, "page offset")
	return cmd
}

func newDeadlineCmd() *cobra.Command {
	var q query.CheckDeadlineQuery

	cmd := &cobra.Command{
		Use:   "deadline",
		Short: "Check the deadline of an assignment and latch it if overdue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.deadline.Handle(ctx, q)
			})
		},
	}
	cmd.Flags().StringVar(&q.AssignmentID, "assignment", "", "assignment id")
	return cmd
}
