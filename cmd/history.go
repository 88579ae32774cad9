package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/relaxcheck/internal/history"
	"github.com/signalnine/relaxcheck/internal/report"
)

var (
	flagHistoryDB     string
	flagHistoryLimit  int
	flagHistoryFormat string
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show the verdicts of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := historyDB(flagHistoryDB)
			if err != nil {
				return err
			}
			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := store.FindRun(ctx, args[0])
				if err != nil {
					return err
				}
				verdicts, err := store.Verdicts(ctx, run.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s (%s) started %s\n\n", run.ID, run.Label, run.StartedAt.Local().Format(time.DateTime))
				return report.Render(verdicts, flagHistoryFormat, out)
			}

			runs, err := store.ListRuns(ctx, flagHistoryLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSTARTED\tDURATION\tCELLS\tOK\tERROR\tTIMEOUT\tLABEL")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
					r.Cells, r.OK, r.Errors, r.Timeouts, r.Label)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&flagHistoryDB, "db", "", "history database (defaults to history.db from the config)")
	cmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "maximum runs listed (0 = all)")
	cmd.Flags().StringVar(&flagHistoryFormat, "format", "table", "verdict format when a run id is given")
	return cmd
}

// historyDB resolves the database path from --db or the configuration.
func historyDB(flagDB string) (string, error) {
	if flagDB != "" {
		return flagDB, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.History.DB == "" {
		return "", fmt.Errorf("no history database configured (set history.db or pass --db)")
	}
	return cfg.History.DB, nil
}
