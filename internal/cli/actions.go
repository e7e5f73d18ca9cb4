package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"valter-dash/internal/client"
	"valter-dash/internal/conflict"
	"valter-dash/internal/model"
)

func newActionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "actions",
		Aliases: []string{"action"},
		Short:   "Review and resolve pending actions",
	}
	cmd.AddCommand(newActionsListCmd(app))
	cmd.AddCommand(newActionsResolveCmd(app, "approve", "Create the missing record (Create New)"))
	cmd.AddCommand(newActionsResolveCmd(app, "reject", "Dismiss the action (Ignore)"))
	cmd.AddCommand(newActionsMergeCmd(app))
	return cmd
}

func newActionsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := connect(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			actions, err := c.PendingActions(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			actions = conflict.Queue(actions)
			if actions == nil {
				actions = []model.PendingAction{}
			}

			rows := make([][]string, 0, len(actions))
			for _, a := range actions {
				source := ""
				if src, err := conflict.ParseContext(a.Context); err == nil {
					source = src.String()
				}
				rows = append(rows, []string{a.ID, a.TargetEntityKind, a.RawValue, source, strings.Join(a.Suggestions, ", "), a.CreatedAt})
			}
			var hints []string
			if len(actions) > 0 {
				hints = append(hints, "valter actions merge <id> [suggestion]", "valter actions approve <id>", "valter actions reject <id>")
			}
			return writeOut(cmd, app, withTable(
				envelope{Data: actions, Meta: map[string]any{"count": len(actions)}, Hints: hints},
				[]string{"id", "table", "value", "source", "suggestions", "created"},
				rows,
			))
		},
	}
}

func newActionsResolveCmd(app *App, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <action-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := connect(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			a, err := findAction(ctx, c, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			engine := conflict.NewEngine(c, app.logger())
			var result string
			if verb == "approve" {
				result, err = engine.Approve(ctx, a.ID)
			} else {
				result, err = engine.Reject(ctx, a.ID)
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			data := map[string]any{"id": a.ID, "choice": verb, "result": result}
			return writeOut(cmd, app, withTable(envelope{Data: data},
				[]string{"id", "choice", "result"},
				[][]string{{a.ID, verb, result}}))
		},
	}
}

func newActionsMergeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <action-id> [suggestion]",
		Short: "Rewrite the source field to a suggestion, then dismiss the action",
		Long: `Merge fixes the island field that referenced the unknown value by
rewriting it to one of the action's suggestions, then dismisses the action.
Without a suggestion argument the top-ranked suggestion is used.

If the rewrite fails the action is left pending.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := connect(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			a, err := findAction(ctx, c, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if len(a.Suggestions) == 0 {
				return writeErr(cmd, conflict.ErrNoSuggestions)
			}
			suggestion := a.Suggestions[0]
			if len(args) == 2 {
				suggestion = args[1]
			}
			if err := conflict.NewEngine(c, app.logger()).Merge(ctx, a, suggestion); err != nil {
				return writeErr(cmd, err)
			}
			src, _ := conflict.ParseContext(a.Context)
			data := map[string]any{
				"id":         a.ID,
				"choice":     "merge",
				"suggestion": suggestion,
				"rewrote":    src.String(),
			}
			return writeOut(cmd, app, withTable(envelope{Data: data},
				[]string{"id", "suggestion", "rewrote"},
				[][]string{{a.ID, suggestion, src.String()}}))
		},
	}
}

func findAction(ctx context.Context, c *client.Client, id string) (model.PendingAction, error) {
	actions, err := c.PendingActions(ctx)
	if err != nil {
		return model.PendingAction{}, err
	}
	for _, a := range actions {
		if a.ID == id {
			return a, nil
		}
	}
	return model.PendingAction{}, errNotFound("action", id)
}
