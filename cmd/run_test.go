package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/relaxcheck/internal/config"
	"github.com/signalnine/relaxcheck/internal/history"
	"github.com/signalnine/relaxcheck/internal/result"
)

func init() {
	color.NoColor = true
}

// writeScript creates an executable shell script in dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// relaxProgram prints a converged array the way sequential.o does. A
// candidate invoked with workers equal to $BAD_WORKERS prints a drifted
// value instead.
const relaxProgram = `
workers=1
while [ $# -gt 0 ]; do
  case "$1" in
    -w) workers="$2"; shift ;;
  esac
  shift
done
echo "Set number of workers to: $workers"
echo "Result:"
if [ "$workers" = "$BAD_WORKERS" ]; then
  echo " 0.500000  0.510000 "
else
  echo " 0.500000  0.500000 "
fi
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	prog := config.Program{
		Path: writeScript(t, dir, "relax.sh", relaxProgram),
		Args: []string{"-p", "{precision}", "-w", "{workers}", "-a", "{array_size}"},
		Env:  map[string]string{"BAD_WORKERS": "4"},
	}
	cfg := &config.Config{
		Sweep:     config.Sweep{Precisions: []float64{0.01}, ArraySizes: []int{5}, Workers: []int{2, 4}, Trials: 2},
		Baseline:  prog,
		Candidate: prog,
		Report:    config.Report{Path: filepath.Join(dir, "test_output.csv")},
		Results:   config.Results{Dir: filepath.Join(dir, "results"), Archive: true},
		History:   config.History{DB: filepath.Join(dir, "history.db")},
	}
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func TestExecute(t *testing.T) {
	cfg := testConfig(t)

	var out bytes.Buffer
	summary, err := execute(context.Background(), cfg, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Cells)
	assert.Equal(t, 1, summary.OK)
	assert.Equal(t, 1, summary.Errors)

	text := out.String()
	assert.Contains(t, text, "Done: worker 2 precision 0.01 array 5. OK")
	assert.Contains(t, text, "Done: worker 4 precision 0.01 array 5. ERROR")
	assert.Contains(t, text, "trial 1: ")
	assert.Contains(t, text, "--- Results ---")

	csv, err := os.ReadFile(cfg.Report.Path)
	require.NoError(t, err)
	assert.Equal(t, "Array size,Number of workers,Precision,Number of tests,Test outcome\n"+
		"5,2,0.01,2,OK\n"+
		"5,4,0.01,2,ERROR\n", string(csv))

	latest, err := filepath.EvalSymlinks(filepath.Join(cfg.Results.Dir, "latest"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(latest, "baselines", "p0.01-a5", "baseline.txt"))
	assert.NoError(t, err)

	store, err := history.Open(cfg.History.DB)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Errors)
}

func TestExecuteAbortsOnCrash(t *testing.T) {
	cfg := testConfig(t)
	cfg.Candidate.Path = writeScript(t, t.TempDir(), "crash.sh", "echo oops >&2\nexit 3\n")

	var out bytes.Buffer
	_, err := execute(context.Background(), cfg, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep aborted")
	assert.Contains(t, err.Error(), "exit status 3")

	_, statErr := os.Stat(cfg.Report.Path)
	assert.True(t, os.IsNotExist(statErr), "no report is written for an aborted sweep")
}

func TestApplyOverrides(t *testing.T) {
	root := NewRootCmd()
	runCmd, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	require.NoError(t, runCmd.ParseFlags([]string{
		"--trials", "7", "--precisions", "0.1,0.05", "--workers", "3", "--mode", "overwrite", "--parallel", "4",
	}))

	cfg := testConfig(t)
	require.NoError(t, applyOverrides(runCmd.Flags(), cfg))
	assert.Equal(t, 7, cfg.Sweep.Trials)
	assert.Equal(t, []float64{0.1, 0.05}, cfg.Sweep.Precisions)
	assert.Equal(t, []int{3}, cfg.Sweep.Workers)
	assert.Equal(t, []int{5}, cfg.Sweep.ArraySizes, "unset flags leave the config alone")
	assert.Equal(t, config.ModeOverwrite, cfg.Report.Mode)
	assert.Equal(t, 4, cfg.Execution.Parallel)
}

func TestApplyOverridesRevalidates(t *testing.T) {
	root := NewRootCmd()
	runCmd, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	require.NoError(t, runCmd.ParseFlags([]string{"--array-sizes", "2"}))

	err = applyOverrides(runCmd.Flags(), testConfig(t))
	assert.ErrorContains(t, err, "array size 2")
}

func TestProgress(t *testing.T) {
	var out bytes.Buffer
	p := progress(&out)
	p(result.Verdict{Cell: result.Cell{Precision: 0.001, ArraySize: 5000, Workers: 6}, Outcome: result.OutcomeOK})
	p(result.Verdict{Cell: result.Cell{Precision: 0.01, ArraySize: 10, Workers: 4}, Outcome: result.OutcomeTimeout, Mismatch: "baseline timed out"})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Done: worker 6 precision 0.001 array 5000. OK", lines[0])
	assert.Equal(t, "Done: worker 4 precision 0.01 array 10. TIMEOUT", lines[1])
	assert.Equal(t, "  baseline timed out", lines[2])
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := config.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "relaxcheck.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRunCommandFailOnError(t *testing.T) {
	cfg := testConfig(t)
	path := writeConfig(t, cfg)

	_, err := runRoot(t, "run", "--config", path, "--no-history")
	require.NoError(t, err, "mismatches are data unless --fail-on-error is set")

	_, err = runRoot(t, "run", "--config", path, "--no-history", "--fail-on-error")
	assert.True(t, errors.Is(err, errNotEquivalent))

	_, err = runRoot(t, "run", "--config", path, "--no-history", "--fail-on-error", "--workers", "2")
	assert.NoError(t, err)

	store, err := history.Open(cfg.History.DB)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestListCommand(t *testing.T) {
	out, err := runRoot(t, "list", "--preset", "distributed")
	require.NoError(t, err)
	assert.Contains(t, out, "Sweep: 12 cells, 25 trials each, protocol exact")
	assert.Contains(t, out, "baseline:  ./sequential.o -p 0.001 -a 10000")
	assert.Contains(t, out, "candidate: mpirun -np 10 distributed-memory.o -p 0.001 -a 10000")
	assert.Equal(t, 4, strings.Count(out, "baseline:"), "one baseline per pair")
}

func TestCompareCommand(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.txt")
	good := filepath.Join(dir, "good.txt")
	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(base, []byte("Set precision to: 0.01\nResult:\n 0.5  0.5 \n"), 0o644))
	require.NoError(t, os.WriteFile(good, []byte("Result:\n 0.5  0.5 \n"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("Result:\n 0.5  0.6 \n"), 0o644))

	out, err := runRoot(t, "compare", base, good)
	require.NoError(t, err)
	assert.Contains(t, out, "OK: 1 baseline records, equivalent")

	out, err = runRoot(t, "compare", base, bad)
	assert.True(t, errors.Is(err, errNotEquivalent))
	assert.Contains(t, out, `field 1: candidate "0.6" baseline "0.5"`)

	_, err = runRoot(t, "compare", base, filepath.Join(dir, "missing.txt"))
	assert.ErrorContains(t, err, "reading candidate output")
}

func TestCompareCommandTolerance(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.txt")
	cand := filepath.Join(dir, "cand.txt")
	require.NoError(t, os.WriteFile(base, []byte("Thread\n 1.000000  1.000000 \n"), 0o644))
	require.NoError(t, os.WriteFile(cand, []byte("Thread\n 1.000000  1.020000 \nThread\n 1.000000  1.000000 \n"), 0o644))

	// real thread sections never echo settings, so the default bypass accepts them
	_, err := runRoot(t, "compare", "--protocol", "tolerance", base, cand)
	assert.NoError(t, err)

	_, err = runRoot(t, "compare", "--protocol", "tolerance", "--bypass", "none", base, cand)
	assert.True(t, errors.Is(err, errNotEquivalent))

	_, err = runRoot(t, "compare", "--protocol", "tolerance", "--bypass", "none", "--precision", "0.05", base, cand)
	assert.NoError(t, err)
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaxcheck.yaml")

	out, err := runRoot(t, "init", "shared", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote shared preset")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.ProtocolTolerance, cfg.Protocol.Name)
	assert.Equal(t, config.ModeOverwrite, cfg.Report.Mode)

	_, err = runRoot(t, "init", "shared", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = runRoot(t, "init", "distributed", "--config", path, "--force")
	require.NoError(t, err)

	_, err = runRoot(t, "init", "hybrid", "--config", path, "--force")
	assert.ErrorContains(t, err, "unknown preset")
}

func TestValidateCommand(t *testing.T) {
	cfg := testConfig(t)
	out, err := runRoot(t, "validate", "--config", writeConfig(t, cfg))
	require.NoError(t, err)
	assert.Contains(t, out, "Config OK: 2 cells x 2 trials, protocol exact")
	assert.Contains(t, out, cfg.Baseline.Path)

	cfg.Candidate.Path = filepath.Join(t.TempDir(), "missing.o")
	_, err = runRoot(t, "validate", "--config", writeConfig(t, cfg))
	assert.ErrorContains(t, err, "candidate")
}

func TestReportAndHistoryCommands(t *testing.T) {
	cfg := testConfig(t)
	path := writeConfig(t, cfg)

	_, err := runRoot(t, "run", "--config", path)
	require.NoError(t, err)

	out, err := runRoot(t, "report", "--config", path, "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "Array size,Number of workers,Precision,Number of tests,Test outcome\n"+
		"5,2,0.01,2,OK\n"+
		"5,4,0.01,2,ERROR\n", out)

	out, err = runRoot(t, "history", "--config", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	fields := strings.Fields(lines[1])
	runID := fields[0]
	assert.Contains(t, lines[1], path)

	out, err = runRoot(t, "history", "--db", cfg.History.DB, "--format", "markdown", runID[:13])
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("Run %s", runID))
	assert.Contains(t, out, "| 5 | 4 | 0.01 | 2 | ERROR |")
}
