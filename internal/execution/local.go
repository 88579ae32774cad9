package execution

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

// Local runs requests as child processes of the harness.
type Local struct {
	// Timeout bounds each run. Zero waits forever.
	Timeout time.Duration
}

func (l *Local) Run(ctx context.Context, req *Request) (string, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, req.Path, req.Args...)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.environ()...)
	}
	// mpirun children can keep stdout open after the launcher is killed.
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", &ExecutionError{
			Command:  req.CommandLine(),
			ExitCode: -1,
			TimedOut: true,
			Stderr:   stderr.String(),
			Err:      ErrTimeout,
		}
	}
	if err != nil {
		execErr := &ExecutionError{
			Command: req.CommandLine(),
			Stderr:  stderr.String(),
			Err:     err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
		}
		return "", execErr
	}
	return stdout.String(), nil
}
