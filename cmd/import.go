package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/calpilot/internal/ics"
)

func newImportCmd() *cobra.Command {
	var (
		weeksBack  int
		weeksAhead int
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Copy events from an ICS file into the calendar",
		Long: `Import the timed events of an iCalendar (.ics) file. Recurring events
are expanded within the import window; all-day events are skipped.
Re-importing the same file leaves existing occurrences untouched.

Use "-" to read from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if weeksBack < 0 || weeksAhead < 0 {
				return fmt.Errorf("--weeks-back and --weeks-ahead must not be negative")
			}

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			return withBackend(cmd, func(ctx context.Context, b *backend, logger *slog.Logger) error {
				from, to := importWindow(time.Now().In(b.loc), weeksBack, weeksAhead)
				res, err := ics.NewImporter(b.store, b.loc, logger).Import(ctx, r, from, to)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			})
		},
	}

	cmd.Flags().IntVar(&weeksBack, "weeks-back", 10, "Import occurrences starting up to this many weeks ago")
	cmd.Flags().IntVar(&weeksAhead, "weeks-ahead", 10, "Import occurrences up to this many weeks ahead")
	return cmd
}

// importWindow spans whole days around now.
func importWindow(now time.Time, weeksBack, weeksAhead int) (from, to time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return day.AddDate(0, 0, -7*weeksBack), day.AddDate(0, 0, 7*weeksAhead+1)
}
