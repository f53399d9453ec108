package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/calpilot/internal/assistant"
)

func newAnalyzeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Rebuild the working profile from recent events",
		Long: `Analyze the last ten weeks of timed events and replace the stored
working profile with the result. Prints a short summary, or the full
profile with --json.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, engine *assistant.Engine) error {
				res, err := engine.AnalyzeUserPatterns(ctx)
				if err != nil {
					return err
				}
				if !res.Success {
					return errors.New(res.Error)
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(res.Persona)
				}
				fmt.Fprintln(out, res.Summary)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full profile as JSON")
	return cmd
}
