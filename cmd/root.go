package cmd

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/signalnine/relaxcheck/internal/config"
)

var (
	cfgFile     string
	flagPreset  string
	flagVerbose bool

	logger = zap.NewNop()
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "relaxcheck",
		Short: "Equivalence harness for parallel array relaxation programs",
		Long: `relaxcheck runs a single-worker baseline and a parallel candidate across a
sweep of precision, array size and worker count, repeats every candidate run
to expose races, and records an OK/ERROR/TIMEOUT verdict per cell in a CSV
report.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(flagVerbose)
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "relaxcheck.yaml", "config file path")
	root.PersistentFlags().StringVar(&flagPreset, "preset", "", "use a built-in configuration instead of --config (distributed, shared)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newCompareCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newInitCmd())
	return root
}

// newLogger builds a production logger on stderr, switching to the
// human-readable console encoder when stderr is a terminal.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func loadConfig() (*config.Config, error) {
	if flagPreset != "" {
		return config.Preset(flagPreset)
	}
	return config.Load(cfgFile)
}
