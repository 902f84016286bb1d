package main

import (
	"context"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"
	turns "github.com/goliatone/go-turns"
	"github.com/goliatone/go-turns/adapters/gocommand"
	turnscommand "github.com/goliatone/go-turns/command"
	"github.com/goliatone/go-turns/core"
	turnsquery "github.com/goliatone/go-turns/query"
	"github.com/goliatone/go-turns/rotation"
	"github.com/spf13/cobra"
)

// rotationRuntime routes CLI calls through the go-command dispatcher, the
// same path an embedding application uses.
type rotationRuntime struct {
	stores   *stores
	bindings *gocommand.Bindings
}

func openRotationRuntime(ctx context.Context, root *rootOptions) (*rotationRuntime, error) {
	cfg, err := loadConfig(ctx, root)
	if err != nil {
		return nil, err
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := newTurnService(cfg, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	facade, err := turns.NewFacade(svc)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	commands := facade.Commands()
	queries := facade.Queries()
	bindings, err := gocommand.BindRotation(gocommand.NewRegistryAdapter(gocmd.NewRegistry()), gocommand.RotationHandlers{
		SaveInstallation:  commands.SaveInstallation,
		ConfigureRotation: commands.ConfigureRotation,
		AssignTurn:        commands.AssignTurn,
		SkipTurn:          commands.SkipTurn,
		GetRotation:       queries.GetRotation,
		ListAssignments:   queries.ListAssignments,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &rotationRuntime{stores: st, bindings: bindings}, nil
}

func (rt *rotationRuntime) Close() {
	if rt == nil {
		return
	}
	rt.bindings.Close()
	_ = rt.stores.Close()
}

func newRotationCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotation",
		Short: "Inspect and drive workflow rotations",
	}
	cmd.AddCommand(
		newRotationShowCommand(root),
		newRotationConfigureCommand(root),
		newRotationTurnCommand(root, "assign", "Assign the next turn"),
		newRotationTurnCommand(root, "skip", "Skip the current assignee"),
		newRotationHistoryCommand(root),
	)
	return cmd
}

func newInstallCommand(root *rootOptions) *cobra.Command {
	var accessToken string
	var botToken string
	cmd := &cobra.Command{
		Use:   "install TENANT",
		Short: "Register a tenant without the OAuth flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRotationRuntime(ctx, root)
			if err != nil {
				return err
			}
			defer rt.Close()

			authData := map[string]any{}
			if token := strings.TrimSpace(accessToken); token != "" {
				authData["access_token"] = token
			}
			if token := strings.TrimSpace(botToken); token != "" {
				authData["bot"] = map[string]any{"bot_access_token": token}
			}
			if err := gocommand.Dispatch(ctx, turnscommand.SaveInstallationMessage{TenantID: args[0], Auth: authData}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s installed\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&accessToken, "access-token", "", "user access token")
	cmd.Flags().StringVar(&botToken, "bot-token", "", "bot access token")
	return cmd
}

func newRotationShowCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show TENANT WORKFLOW",
		Short: "Print the turn order and the current assignee",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRotationRuntime(ctx, root)
			if err != nil {
				return err
			}
			defer rt.Close()

			state, err := gocommand.Query[turnsquery.GetRotationMessage, rotation.State](ctx, turnsquery.GetRotationMessage{
				Request: core.TurnRequest{TenantID: args[0], WorkflowID: args[1]},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatRotation(args[1], state))
			return nil
		},
	}
}

func newRotationConfigureCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "configure TENANT WORKFLOW USER...",
		Short: "Set the participants of a rotation, in turn order",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRotationRuntime(ctx, root)
			if err != nil {
				return err
			}
			defer rt.Close()

			state, _, err := gocommand.DispatchResult[turnscommand.ConfigureRotationMessage, rotation.State](ctx, turnscommand.ConfigureRotationMessage{
				Request: core.ConfigureRotationRequest{TenantID: args[0], WorkflowID: args[1], Users: args[2:]},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatRotation(args[1], state))
			return nil
		},
	}
}

func newRotationTurnCommand(root *rootOptions, action string, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " TENANT WORKFLOW",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRotationRuntime(ctx, root)
			if err != nil {
				return err
			}
			defer rt.Close()

			req := core.TurnRequest{TenantID: args[0], WorkflowID: args[1]}
			var result core.TurnResult
			if action == "skip" {
				result, _, err = gocommand.DispatchResult[turnscommand.SkipTurnMessage, core.TurnResult](ctx, turnscommand.SkipTurnMessage{Request: req})
			} else {
				result, _, err = gocommand.DispatchResult[turnscommand.AssignTurnMessage, core.TurnResult](ctx, turnscommand.AssignTurnMessage{Request: req})
			}
			if err != nil {
				return err
			}
			if result.Skipped != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped %s, %s is up\n", args[1], result.Skipped, result.UserID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s is up\n", args[1], result.UserID)
			return nil
		},
	}
}

func newRotationHistoryCommand(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history TENANT [WORKFLOW]",
		Short: "List recent assignments, newest first",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRotationRuntime(ctx, root)
			if err != nil {
				return err
			}
			defer rt.Close()

			filter := core.AssignmentFilter{TenantID: args[0], Limit: limit}
			if len(args) > 1 {
				filter.WorkflowID = args[1]
			}
			entries, err := gocommand.Query[turnsquery.ListAssignmentsMessage, []core.Assignment](ctx, turnsquery.ListAssignmentsMessage{Filter: filter})
			if err != nil {
				return err
			}
			for _, entry := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", entry.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), entry.WorkflowID, entry.Action, entry.UserID)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to print")
	return cmd
}

func formatRotation(workflowID string, state rotation.State) string {
	order := state.TurnOrder()
	if len(order) == 0 {
		return fmt.Sprintf("%s: no participants", workflowID)
	}
	current, ok := state.Current()
	if !ok {
		return fmt.Sprintf("%s: %s (nobody assigned yet)", workflowID, strings.Join(order, " -> "))
	}
	return fmt.Sprintf("%s: %s (current: %s)", workflowID, strings.Join(order, " -> "), current)
}
