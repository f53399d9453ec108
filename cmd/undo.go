package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/calpilot/internal/assistant"
)

func newUndoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo CHANGESET_ID",
		Short: "Revert a recorded changeset",
		Long: `Revert every event change recorded under the given changeset id. A
changeset can only be undone once. With the google backend only
creations made by this process can be reverted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, engine *assistant.Engine) error {
				res, err := engine.Undo(ctx, args[0])
				if err != nil {
					return err
				}
				if !res.Success {
					return errors.New(res.Error)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reverted changeset %s\n", res.ChangeSetID)
				return nil
			})
		},
	}
}
