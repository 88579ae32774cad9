package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/relaxcheck/internal/execution"
	"github.com/signalnine/relaxcheck/internal/result"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the sweep cells and the commands each one runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			cells := cfg.Sweep.Cells()
			fmt.Fprintf(out, "Sweep: %d cells, %d trials each, protocol %s\n",
				len(cells), cfg.Sweep.Trials, cfg.Protocol.Name)

			seen := map[string]bool{}
			for _, c := range cells {
				fmt.Fprintf(out, "  [%03d] precision %s array %d workers %d\n",
					c.Index, result.FormatPrecision(c.Precision), c.ArraySize, c.Workers)
				if !seen[c.PairKey()] {
					seen[c.PairKey()] = true
					fmt.Fprintf(out, "        baseline:  %s\n",
						execution.NewRequest(cfg.Baseline, c, result.RoleBaseline).CommandLine())
				}
				fmt.Fprintf(out, "        candidate: %s\n",
					execution.NewRequest(cfg.Candidate, c, result.RoleCandidate).CommandLine())
			}
			return nil
		},
	}
}
