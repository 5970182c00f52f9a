package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oshokin/app-release/internal/logger"
)

// DefaultTimeout bounds commands whose Spec carries no timeout.
const DefaultTimeout = 30 * time.Minute

// DefaultWaitDelay bounds how long a finished or killed command may hold its
// output open through processes it started.
const DefaultWaitDelay = 5 * time.Second

// stderrTailLength is how much captured stderr is quoted in error messages.
const stderrTailLength = 512

var (
	// ErrNonZeroExit reports a command that ran but exited with a non-zero status.
	ErrNonZeroExit = errors.New("command exited with non-zero status")
	// ErrTimeout reports a command killed because it exceeded its timeout.
	ErrTimeout = errors.New("command timed out")
	// errEmptyName is returned for a Spec without a program name.
	errEmptyName = errors.New("command name must be provided")
)

// Spec describes one external command invocation.
type Spec struct {
	// Name is the program to run, looked up in PATH unless it contains a separator.
	Name string
	// Args are passed verbatim, without shell interpretation.
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// Timeout bounds the run; zero means the runner default.
	Timeout time.Duration
	// Stream copies output to the runner's console writers while capturing it.
	Stream bool
}

// String renders the command line for logs.
func (s Spec) String() string {
	return strings.TrimSpace(s.Name + " " + strings.Join(s.Args, " "))
}

// Result is the structured outcome of a finished command.
type Result struct {
	// ExitCode is the process exit status.
	ExitCode int
	// Pid is the process id of the started command, zero when it never started.
	// On unix it also identifies the command's process group.
	Pid int
	// Stdout is the captured standard output.
	Stdout string
	// Stderr is the captured standard error.
	Stderr string
	// Duration is the wall time of the run.
	Duration time.Duration
}

// Err returns ErrNonZeroExit with the exit code and the tail of stderr, or nil on success.
func (r *Result) Err() error {
	if r == nil || r.ExitCode == 0 {
		return nil
	}

	tail := strings.TrimSpace(r.Stderr)
	if len(tail) > stderrTailLength {
		cut := len(tail) - stderrTailLength
		for cut < len(tail) && !utf8.RuneStart(tail[cut]) {
			cut++
		}

		tail = "..." + tail[cut:]
	}

	if tail == "" {
		return fmt.Errorf("%w: exit code %d", ErrNonZeroExit, r.ExitCode)
	}

	return fmt.Errorf("%w: exit code %d: %s", ErrNonZeroExit, r.ExitCode, tail)
}

// Runner runs external commands. Every stage depends on this interface instead
// of spawning processes directly.
type Runner interface {
	// Run executes spec and waits for it. A non-nil error means the command could
	// not be started or was killed; a non-zero exit is reported through Result.
	Run(ctx context.Context, spec Spec) (*Result, error)
	// Available reports whether the program can be found.
	Available(name string) bool
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct {
	// DefaultTimeout applies to specs without a timeout.
	DefaultTimeout time.Duration
	// WaitDelay bounds the wait for output still held by child processes.
	WaitDelay time.Duration
	// Stdout and Stderr receive streamed output.
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner returns a runner streaming to the process stdio.
func NewExecRunner(defaultTimeout time.Duration) *ExecRunner {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}

	return &ExecRunner{
		DefaultTimeout: defaultTimeout,
		WaitDelay:      DefaultWaitDelay,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
	}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if spec.Name == "" {
		return nil, errEmptyName
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.DefaultTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.WaitDelay = r.WaitDelay

	// On unix the whole process group is killed on timeout, not only the direct child.
	setProcessGroup(cmd)

	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	var stdout, stderr bytes.Buffer

	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if spec.Stream {
		cmd.Stdout = io.MultiWriter(&stdout, r.Stdout)
		cmd.Stderr = io.MultiWriter(&stderr, r.Stderr)
	}

	logger.DebugKV(ctx, "Running command", "cmd", spec.String(), "dir", spec.Dir, "timeout", timeout.String())

	started := time.Now()
	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}

	if cmd.Process != nil {
		result.Pid = cmd.Process.Pid
	}

	if ctxErr := cmdCtx.Err(); ctxErr != nil {
		result.ExitCode = -1

		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return result, fmt.Errorf("%s: %w after %s", spec, ErrTimeout, timeout)
		}

		return result, fmt.Errorf("%s: %w", spec, ctxErr)
	}

	var exitErr *exec.ExitError

	switch {
	case err == nil:
	case errors.Is(err, exec.ErrWaitDelay):
		result.ExitCode = cmd.ProcessState.ExitCode()

		logger.WarnKV(ctx, "Command exited but its child processes kept the output open",
			"cmd", spec.String(), "wait_delay", r.WaitDelay.String())
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return result, fmt.Errorf("run %s: %w", spec, err)
	}

	return result, nil
}

// Available implements Runner.
func (r *ExecRunner) Available(name string) bool {
	_, err := exec.LookPath(name)

	return err == nil
}

// Check runs spec and folds a non-zero exit into the returned error.
func Check(ctx context.Context, runner Runner, spec Spec) (*Result, error) {
	result, err := runner.Run(ctx, spec)
	if err != nil {
		return result, err
	}

	if err = result.Err(); err != nil {
		return result, fmt.Errorf("%s: %w", spec, err)
	}

	return result, nil
}
