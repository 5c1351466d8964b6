package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"splitcat/internal/eta"
	"splitcat/internal/runstore"
)

func (a *app) newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}
			records, err := runstore.ListJobRecords(a.resolvedStateDir(), limit)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(a.stdout, map[string]any{
					"state_dir": a.resolvedStateDir(),
					"jobs":      records,
				})
			}
			if len(records) == 0 {
				fmt.Fprintln(a.stdout, "no jobs recorded")
				return nil
			}
			for _, rec := range records {
				fmt.Fprintf(a.stdout, "%s  %-6s  %-8s  %9s  %8s  %s\n",
					rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
					rec.Kind,
					rec.State,
					eta.FormatBytes(rec.TotalBytes),
					eta.FormatElapsed(rec.Duration()),
					rec.Destination,
				)
				if rec.Error != "" {
					fmt.Fprintf(a.stdout, "    error: %s\n", rec.Error)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs to show (0 = all)")
	return cmd
}
