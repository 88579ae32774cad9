package execution

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/signalnine/relaxcheck/internal/docker"
)

// Container runs each request inside a Docker image. The request's Dir (or
// the current directory) is mounted at /workspace, so relative program paths
// such as ./sequential.o resolve the same way they do locally.
type Container struct {
	Image       string
	CPULimit    float64
	MemoryLimit int64
	Timeout     time.Duration
}

func (c *Container) Run(ctx context.Context, req *Request) (string, error) {
	dir := req.Dir
	if dir == "" {
		dir = "."
	}
	hostDir, err := filepath.Abs(dir)
	if err != nil {
		return "", &ExecutionError{Command: req.CommandLine(), Err: fmt.Errorf("resolving work dir: %w", err)}
	}

	res, err := docker.RunContainer(ctx, &docker.RunOpts{
		Image:       c.Image,
		Command:     append([]string{req.Path}, req.Args...),
		WorkDir:     hostDir,
		Env:         req.Env,
		Timeout:     c.Timeout,
		CPULimit:    c.CPULimit,
		MemoryLimit: c.MemoryLimit,
	})
	if err != nil {
		return "", &ExecutionError{Command: req.CommandLine(), Err: err}
	}
	if res.TimedOut {
		return "", &ExecutionError{
			Command:  req.CommandLine(),
			ExitCode: res.ExitCode,
			TimedOut: true,
			Stderr:   res.Stderr,
			Err:      ErrTimeout,
		}
	}
	if res.ExitCode != 0 {
		return "", &ExecutionError{
			Command:  req.CommandLine(),
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      fmt.Errorf("container exited with status %d", res.ExitCode),
		}
	}
	return res.Stdout, nil
}
