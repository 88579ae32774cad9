package execution_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/relaxcheck/internal/config"
	"github.com/signalnine/relaxcheck/internal/execution"
	"github.com/signalnine/relaxcheck/internal/result"
)

func TestNewRequestSubstitutesPlaceholders(t *testing.T) {
	prog := config.Program{
		Path: "mpirun",
		Args: []string{"-np", "{workers}", "distributed-memory.o", "-p", "{precision}", "-a", "{array_size}"},
		Dir:  "build",
	}
	cell := result.Cell{Precision: 0.001, ArraySize: 5000, Workers: 6}

	cand := execution.NewRequest(prog, cell, result.RoleCandidate)
	assert.Equal(t, "mpirun", cand.Path)
	assert.Equal(t, []string{"-np", "6", "distributed-memory.o", "-p", "0.001", "-a", "5000"}, cand.Args)
	assert.Equal(t, "build", cand.Dir)

	base := execution.NewRequest(prog, cell, result.RoleBaseline)
	assert.Equal(t, "1", base.Args[1], "baseline always runs one worker")

	// the template itself is not modified
	assert.Equal(t, "{workers}", prog.Args[1])
}

func TestCommandLine(t *testing.T) {
	req := &execution.Request{Path: "./run me", Args: []string{"-p", "0.01", ""}}
	assert.Equal(t, `"./run me" -p 0.01 ""`, req.CommandLine())
}

func TestExitReason(t *testing.T) {
	tests := []struct {
		code     int
		timedOut bool
		want     string
	}{
		{0, false, "completed"},
		{1, false, "crashed"},
		{-1, true, "timeout"},
		{42, false, "crashed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, execution.ExitReason(tt.code, tt.timedOut))
	}
}

func TestLocalCapturesStdout(t *testing.T) {
	r := &execution.Local{}
	out, err := r.Run(context.Background(), &execution.Request{
		Path: "sh",
		Args: []string{"-c", "printf 'Set precision to: 0.010000\\nResult:\\n 1.000000  2.000000 \\n'; echo ignored >&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Set precision to: 0.010000\nResult:\n 1.000000  2.000000 \n", out)
}

func TestLocalPassesArgsVerbatim(t *testing.T) {
	r := &execution.Local{}
	out, err := r.Run(context.Background(), &execution.Request{
		Path: "sh",
		Args: []string{"-c", `printf '%s|' "$@"`, "sh", "a b", "$HOME", "*"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a b|$HOME|*|", out)
}

func TestLocalEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0o644))

	r := &execution.Local{}
	out, err := r.Run(context.Background(), &execution.Request{
		Path: "sh",
		Args: []string{"-c", `ls; printf '%s' "$RELAX_MODE"`},
		Dir:  dir,
		Env:  map[string]string{"RELAX_MODE": "test"},
	})
	require.NoError(t, err)
	assert.Equal(t, "marker\ntest", out)
}

func TestLocalNonZeroExit(t *testing.T) {
	r := &execution.Local{}
	_, err := r.Run(context.Background(), &execution.Request{
		Path: "sh",
		Args: []string{"-c", "echo partial; echo boom >&2; exit 3"},
	})
	require.Error(t, err)

	var execErr *execution.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 3, execErr.ExitCode)
	assert.False(t, execErr.TimedOut)
	assert.False(t, execution.IsTimeout(err))
	assert.Contains(t, err.Error(), "sh -c")
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "boom")
}

func TestLocalLaunchFailure(t *testing.T) {
	r := &execution.Local{}
	_, err := r.Run(context.Background(), &execution.Request{Path: "./definitely-not-built.o"})
	require.Error(t, err)

	var execErr *execution.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Contains(t, err.Error(), "definitely-not-built.o")
}

func TestLocalTimeout(t *testing.T) {
	r := &execution.Local{Timeout: 200 * time.Millisecond}
	start := time.Now()
	_, err := r.Run(context.Background(), &execution.Request{Path: "sleep", Args: []string{"30"}})
	require.Error(t, err)
	assert.True(t, execution.IsTimeout(err))
	assert.Less(t, time.Since(start), 10*time.Second)

	var execErr *execution.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.True(t, execErr.TimedOut)
}

func TestNewSelectsBackend(t *testing.T) {
	local := execution.New(config.Execution{TimeoutSeconds: 5})
	l, ok := local.(*execution.Local)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, l.Timeout)

	ctr := execution.New(config.Execution{Container: config.Container{Image: "alpine:latest"}})
	c, ok := ctr.(*execution.Container)
	require.True(t, ok)
	assert.Equal(t, "alpine:latest", c.Image)
}
