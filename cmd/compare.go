package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/relaxcheck/internal/config"
	"github.com/signalnine/relaxcheck/internal/equivalence"
	"github.com/signalnine/relaxcheck/internal/result"
)

var (
	flagCompareProtocol  string
	flagComparePrecision float64
	flagCompareLength    string
	flagCompareBypass    string
)

func newCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <baseline-output> <candidate-output>",
		Short: "Check two captured program outputs for equivalence",
		Long: `Apply an equivalence protocol to two files holding the stdout of a baseline
and a candidate run, without executing anything. Exits non-zero when the
outputs are not equivalent.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseRaw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading baseline output: %w", err)
			}
			candRaw, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading candidate output: %w", err)
			}

			proto := config.Protocol{
				Name:         flagCompareProtocol,
				Bypass:       flagCompareBypass,
				LengthPolicy: flagCompareLength,
			}
			if err := config.ValidateProtocol(&proto); err != nil {
				return err
			}
			policy, err := equivalence.ForProtocol(proto)
			if err != nil {
				return err
			}

			base, err := policy.Grammar().Baseline(string(baseRaw))
			if err != nil {
				return fmt.Errorf("parsing baseline output: %w", err)
			}
			res, err := policy.Check(string(candRaw), base, flagComparePrecision)
			if err != nil {
				return fmt.Errorf("parsing candidate output: %w", err)
			}

			out := cmd.OutOrStdout()
			if res.Equivalent {
				fmt.Fprintf(out, "%s: %d baseline records, equivalent\n", outcomeColor(result.OutcomeOK).Sprint(result.OutcomeOK), len(base))
				return nil
			}
			fmt.Fprintf(out, "%s: %s\n", outcomeColor(result.OutcomeError).Sprint(result.OutcomeError), res.Mismatch)
			return errNotEquivalent
		},
	}
	cmd.Flags().StringVar(&flagCompareProtocol, "protocol", config.ProtocolExact, "equivalence protocol (exact, tolerance)")
	cmd.Flags().Float64Var(&flagComparePrecision, "precision", 0.01, "precision used by the tolerance protocol")
	cmd.Flags().StringVar(&flagCompareLength, "length-policy", config.LengthTruncate, "length mismatch policy (truncate, strict)")
	cmd.Flags().StringVar(&flagCompareBypass, "bypass", "", `tolerance bypass word ("none" checks every section)`)
	return cmd
}
