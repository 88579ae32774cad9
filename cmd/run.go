package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/signalnine/relaxcheck/internal/config"
	"github.com/signalnine/relaxcheck/internal/equivalence"
	"github.com/signalnine/relaxcheck/internal/execution"
	"github.com/signalnine/relaxcheck/internal/history"
	"github.com/signalnine/relaxcheck/internal/report"
	"github.com/signalnine/relaxcheck/internal/result"
	"github.com/signalnine/relaxcheck/internal/runner"
)

// errNotEquivalent makes the process exit non-zero without aborting report
// output.
var errNotEquivalent = errors.New("candidate is not equivalent to baseline")

var (
	flagTrials      int
	flagParallel    int
	flagTimeout     int
	flagPrecisions  []float64
	flagArraySizes  []int
	flagWorkers     []int
	flagMode        string
	flagOutput      string
	flagArchive     bool
	flagNoHistory   bool
	flagFailOnError bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the validation sweep and write the CSV report",
		RunE:  runSweep,
	}
	cmd.Flags().IntVar(&flagTrials, "trials", 0, "override candidate repetitions per cell")
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "override number of cells run concurrently")
	cmd.Flags().IntVar(&flagTimeout, "timeout", 0, "override per-run timeout in seconds (0 = none)")
	cmd.Flags().Float64SliceVar(&flagPrecisions, "precisions", nil, "override precision thresholds")
	cmd.Flags().IntSliceVar(&flagArraySizes, "array-sizes", nil, "override array sizes")
	cmd.Flags().IntSliceVar(&flagWorkers, "workers", nil, "override worker counts")
	cmd.Flags().StringVar(&flagMode, "mode", "", "override report mode (append, overwrite)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "override report path")
	cmd.Flags().BoolVar(&flagArchive, "archive", false, "archive raw outputs and per-cell verdicts under the results dir")
	cmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "do not record this run in the history database")
	cmd.Flags().BoolVar(&flagFailOnError, "fail-on-error", false, "exit non-zero unless every cell is OK")
	return cmd
}

// applyOverrides copies explicitly set flags onto cfg and revalidates it.
func applyOverrides(flags *pflag.FlagSet, cfg *config.Config) error {
	if flags.Changed("trials") {
		cfg.Sweep.Trials = flagTrials
	}
	if flags.Changed("parallel") {
		cfg.Execution.Parallel = flagParallel
	}
	if flags.Changed("timeout") {
		cfg.Execution.TimeoutSeconds = flagTimeout
	}
	if flags.Changed("precisions") {
		cfg.Sweep.Precisions = flagPrecisions
	}
	if flags.Changed("array-sizes") {
		cfg.Sweep.ArraySizes = flagArraySizes
	}
	if flags.Changed("workers") {
		cfg.Sweep.Workers = flagWorkers
	}
	if flags.Changed("mode") {
		cfg.Report.Mode = flagMode
	}
	if flags.Changed("output") {
		cfg.Report.Path = flagOutput
	}
	if flags.Changed("archive") {
		cfg.Results.Archive = flagArchive
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid overrides: %w", err)
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyOverrides(cmd.Flags(), cfg); err != nil {
		return err
	}
	if flagNoHistory {
		cfg.History.DB = ""
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := execute(ctx, cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if flagFailOnError && !summary.Passed() {
		return errNotEquivalent
	}
	return nil
}

// execute runs the sweep described by cfg and writes its CSV report,
// archive and history entry.
func execute(ctx context.Context, cfg *config.Config, out io.Writer) (report.Summary, error) {
	policy, err := equivalence.ForProtocol(cfg.Protocol)
	if err != nil {
		return report.Summary{}, err
	}

	runID := history.NewRunID()
	var runDir string
	if cfg.Results.Archive {
		runDir, err = result.CreateRunDir(cfg.Results.Dir, runID)
		if err != nil {
			return report.Summary{}, err
		}
		fmt.Fprintf(out, "Run directory: %s\n", runDir)
	}

	cells := cfg.Sweep.Cells()
	log := logger.With(zap.String("run_id", runID))
	log.Info("starting sweep",
		zap.Int("cells", len(cells)),
		zap.Int("trials", cfg.Sweep.Trials),
		zap.String("protocol", policy.Name()),
		zap.Int("parallel", cfg.Execution.Parallel),
	)

	started := time.Now()
	verdicts, err := runner.RunSweep(ctx, &runner.SweepOpts{
		Cells:     cells,
		Baseline:  cfg.Baseline,
		Candidate: cfg.Candidate,
		Runner:    execution.New(cfg.Execution),
		Policy:    policy,
		Parallel:  cfg.Execution.Parallel,
		RunDir:    runDir,
		Logger:    log,
		OnVerdict: progress(out),
	})
	if err != nil {
		return report.Summary{}, fmt.Errorf("sweep aborted: %w", err)
	}
	finished := time.Now()

	if err := report.WriteCSV(verdicts, cfg.Report.Path, cfg.Report.Mode); err != nil {
		return report.Summary{}, fmt.Errorf("writing report: %w", err)
	}
	fmt.Fprintf(out, "Report written to %s (%s)\n", cfg.Report.Path, cfg.Report.Mode)

	if cfg.History.DB != "" {
		run := history.Run{ID: runID, Label: runLabel(), StartedAt: started, FinishedAt: finished}
		if err := recordHistory(ctx, cfg.History.DB, run, verdicts); err != nil {
			log.Warn("recording history", zap.Error(err))
		}
	}

	fmt.Fprintln(out, "\n--- Results ---")
	if err := report.Render(verdicts, "table", out); err != nil {
		return report.Summary{}, err
	}
	summary := report.Summarize(verdicts)
	log.Info("sweep finished",
		zap.Int("ok", summary.OK),
		zap.Int("errors", summary.Errors),
		zap.Int("timeouts", summary.Timeouts),
		zap.Duration("elapsed", finished.Sub(started)),
	)
	return summary, nil
}

func runLabel() string {
	if flagPreset != "" {
		return "preset:" + flagPreset
	}
	return cfgFile
}

func recordHistory(ctx context.Context, path string, run history.Run, verdicts []result.Verdict) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.RecordRun(ctx, run, verdicts)
}

// progress prints one line per finished cell, with the first mismatch of
// failing cells underneath.
func progress(out io.Writer) func(result.Verdict) {
	return func(v result.Verdict) {
		fmt.Fprintf(out, "Done: worker %d precision %s array %d. %s\n",
			v.Cell.Workers, result.FormatPrecision(v.Cell.Precision), v.Cell.ArraySize,
			outcomeColor(v.Outcome).Sprint(v.Outcome))
		if v.Outcome != result.OutcomeOK && v.Mismatch != "" {
			fmt.Fprintf(out, "  %s\n", v.Mismatch)
		}
	}
}

func outcomeColor(o result.Outcome) *color.Color {
	switch o {
	case result.OutcomeOK:
		return color.New(color.FgGreen)
	case result.OutcomeTimeout:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}
