// Package execution runs the programs under test and captures their stdout.
//
// A Runner executes exactly one process per call and blocks until it exits.
// Launch failures and non-zero exits are returned as *ExecutionError and are
// fatal to a sweep; a run that outlives its deadline is reported with
// TimedOut set so callers can record it separately.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/signalnine/relaxcheck/internal/config"
	"github.com/signalnine/relaxcheck/internal/result"
)

// ErrTimeout is matched by errors.Is for runs killed at their deadline.
var ErrTimeout = errors.New("execution timed out")

// Request is one fully resolved invocation. Args are passed to the process
// verbatim, without a shell.
type Request struct {
	Path string
	Args []string
	Dir  string
	Env  map[string]string
}

// Runner executes a request and returns its complete stdout on a zero exit.
type Runner interface {
	Run(ctx context.Context, req *Request) (string, error)
}

type ExecutionError struct {
	Command  string
	ExitCode int
	TimedOut bool
	Stderr   string
	Err      error
}

func (e *ExecutionError) Error() string {
	var b strings.Builder
	switch {
	case e.TimedOut:
		fmt.Fprintf(&b, "%s: timed out", e.Command)
	case e.ExitCode != 0:
		fmt.Fprintf(&b, "%s: exit status %d", e.Command, e.ExitCode)
	default:
		fmt.Fprintf(&b, "%s: %v", e.Command, e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, " (stderr: %s)", truncate(s, 200))
	}
	return b.String()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a run killed at its deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// ExitReason classifies a finished process for logging.
func ExitReason(code int, timedOut bool) string {
	if timedOut {
		return "timeout"
	}
	if code == 0 {
		return "completed"
	}
	return "crashed"
}

// CommandLine renders the request the way an operator would type it.
func (r *Request) CommandLine() string {
	parts := make([]string, 0, len(r.Args)+1)
	for _, s := range append([]string{r.Path}, r.Args...) {
		if s == "" || strings.ContainsAny(s, " \t\n\"'") {
			s = strconv.Quote(s)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func (r *Request) environ() []string {
	env := make([]string, 0, len(r.Env))
	for k, v := range r.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// NewRequest resolves a program template for one cell. The baseline role
// always runs with a single worker.
func NewRequest(prog config.Program, cell result.Cell, role result.Role) *Request {
	workers := cell.Workers
	if role == result.RoleBaseline {
		workers = 1
	}
	repl := strings.NewReplacer(
		"{precision}", result.FormatPrecision(cell.Precision),
		"{array_size}", strconv.Itoa(cell.ArraySize),
		"{workers}", strconv.Itoa(workers),
	)
	args := make([]string, len(prog.Args))
	for i, a := range prog.Args {
		args[i] = repl.Replace(a)
	}
	return &Request{
		Path: repl.Replace(prog.Path),
		Args: args,
		Dir:  prog.Dir,
		Env:  prog.Env,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// New picks the container backend when an image is configured and local
// processes otherwise.
func New(cfg config.Execution) Runner {
	if cfg.Container.Image != "" {
		return &Container{
			Image:       cfg.Container.Image,
			CPULimit:    cfg.Container.CPULimit,
			MemoryLimit: cfg.Container.MemoryLimit,
			Timeout:     cfg.Timeout(),
		}
	}
	return &Local{Timeout: cfg.Timeout()}
}
