package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/signalnine/relaxcheck/internal/config"
	"github.com/signalnine/relaxcheck/internal/equivalence"
	"github.com/signalnine/relaxcheck/internal/execution"
	"github.com/signalnine/relaxcheck/internal/output"
	"github.com/signalnine/relaxcheck/internal/result"
)

type SweepOpts struct {
	Cells     []result.Cell
	Baseline  config.Program
	Candidate config.Program
	Runner    execution.Runner
	Policy    equivalence.Policy
	// Parallel is the number of cells run at once. Values below 2 keep the
	// sweep strictly sequential.
	Parallel int
	// RunDir, when set, receives every raw output and a meta.json per cell.
	RunDir string
	Logger *zap.Logger
	// OnVerdict is called once per finished cell, never concurrently.
	OnVerdict func(result.Verdict)
}

// RunSweep runs one baseline per (precision, array size) pair and Trials
// candidate runs per cell, returning verdicts in cell order. Execution
// failures and malformed output abort the whole sweep.
func RunSweep(ctx context.Context, opts *SweepOpts) ([]result.Verdict, error) {
	if opts.Runner == nil || opts.Policy == nil {
		return nil, errors.New("sweep: runner and policy are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &sweep{opts: opts, baselines: map[string]*baselineEntry{}}
	verdicts := make([]result.Verdict, len(opts.Cells))
	jobs := make([]Job, len(opts.Cells))
	for i, cell := range opts.Cells {
		jobs[i] = func(ctx context.Context) error {
			v, err := s.runCell(ctx, cell)
			if err != nil {
				return fmt.Errorf("cell %s: %w", cell.Slug(), err)
			}
			verdicts[i] = *v
			s.report(*v)
			return nil
		}
	}
	if err := RunPool(ctx, opts.Parallel, jobs); err != nil {
		return nil, err
	}
	return verdicts, nil
}

type baselineEntry struct {
	once    sync.Once
	records []output.Record
	err     error
}

type sweep struct {
	opts *SweepOpts

	mu        sync.Mutex
	baselines map[string]*baselineEntry

	reportMu sync.Mutex
}

func (s *sweep) report(v result.Verdict) {
	if s.opts.OnVerdict == nil {
		return
	}
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	s.opts.OnVerdict(v)
}

// baseline returns the parsed reference run for the cell's pair, running it
// on first use. Concurrent callers for the same pair share one run.
func (s *sweep) baseline(ctx context.Context, cell result.Cell) ([]output.Record, error) {
	s.mu.Lock()
	b, ok := s.baselines[cell.PairKey()]
	if !ok {
		b = &baselineEntry{}
		s.baselines[cell.PairKey()] = b
	}
	s.mu.Unlock()

	b.once.Do(func() {
		b.records, b.err = s.runBaseline(ctx, cell)
	})
	return b.records, b.err
}

func (s *sweep) runBaseline(ctx context.Context, cell result.Cell) ([]output.Record, error) {
	log := s.opts.Logger.With(zap.String("pair", cell.PairKey()))
	req := execution.NewRequest(s.opts.Baseline, cell, result.RoleBaseline)
	log.Debug("running baseline", zap.String("command", req.CommandLine()))

	raw, err := s.opts.Runner.Run(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("running baseline: %w", err)
	}
	if s.opts.RunDir != "" {
		if err := result.WriteOutput(result.BaselineDir(s.opts.RunDir, cell), "baseline", raw); err != nil {
			log.Warn("archiving baseline output", zap.Error(err))
		}
	}
	records, err := s.opts.Policy.Grammar().Baseline(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing baseline output: %w", err)
	}
	log.Debug("baseline parsed", zap.Int("records", len(records)))
	return records, nil
}

func (s *sweep) runCell(ctx context.Context, cell result.Cell) (*result.Verdict, error) {
	start := time.Now()
	log := s.opts.Logger.With(
		zap.Float64("precision", cell.Precision),
		zap.Int("array_size", cell.ArraySize),
		zap.Int("workers", cell.Workers),
	)
	v := &result.Verdict{Cell: cell, Trials: cell.Trials, Outcome: result.OutcomeOK}

	base, err := s.baseline(ctx, cell)
	switch {
	case execution.IsTimeout(err):
		log.Warn("baseline timed out, skipping candidate trials", zap.Error(err))
		v.Timeouts = cell.Trials
		v.Mismatch = "baseline timed out"
	case err != nil:
		return nil, err
	default:
		for trial := 1; trial <= cell.Trials; trial++ {
			if err := s.runTrial(ctx, cell, trial, base, v, log); err != nil {
				return nil, err
			}
		}
	}

	switch {
	case v.Failures > 0:
		v.Outcome = result.OutcomeError
	case v.Timeouts > 0:
		v.Outcome = result.OutcomeTimeout
	}
	v.DurationS = time.Since(start).Seconds()

	if s.opts.RunDir != "" {
		if err := result.WriteVerdict(result.CellDir(s.opts.RunDir, cell), v); err != nil {
			log.Warn("writing cell verdict", zap.Error(err))
		}
	}
	log.Info("cell finished",
		zap.String("outcome", string(v.Outcome)),
		zap.Int("failures", v.Failures),
		zap.Int("timeouts", v.Timeouts),
	)
	return v, nil
}

// runTrial runs one candidate execution and folds its outcome into v.
// Only fatal errors are returned.
func (s *sweep) runTrial(ctx context.Context, cell result.Cell, trial int, base []output.Record, v *result.Verdict, log *zap.Logger) error {
	log = log.With(zap.Int("trial", trial))
	req := execution.NewRequest(s.opts.Candidate, cell, result.RoleCandidate)

	raw, err := s.opts.Runner.Run(ctx, req)
	if err != nil {
		var execErr *execution.ExecutionError
		if errors.As(err, &execErr) && execErr.TimedOut {
			log.Warn("candidate timed out",
				zap.String("command", execErr.Command),
				zap.String("exit_reason", execution.ExitReason(execErr.ExitCode, execErr.TimedOut)),
			)
			v.Timeouts++
			return nil
		}
		return fmt.Errorf("running candidate (trial %d): %w", trial, err)
	}
	if s.opts.RunDir != "" {
		if err := result.WriteOutput(result.CellDir(s.opts.RunDir, cell), result.TrialName(trial), raw); err != nil {
			log.Warn("archiving candidate output", zap.Error(err))
		}
	}

	res, err := s.opts.Policy.Check(raw, base, cell.Precision)
	if err != nil {
		return fmt.Errorf("parsing candidate output (trial %d): %w", trial, err)
	}
	if !res.Equivalent {
		v.Failures++
		detail := "not equivalent"
		if res.Mismatch != nil {
			detail = res.Mismatch.String()
		}
		if v.Mismatch == "" {
			v.Mismatch = fmt.Sprintf("trial %d: %s", trial, detail)
		}
		log.Warn("candidate differs from baseline", zap.String("mismatch", detail))
	}
	return nil
}
