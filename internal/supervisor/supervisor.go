// Package supervisor runs a child process and annotates its output.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"pkt.systems/pslog"

	"logt/internal/annotate"
	"logt/internal/dispatch"
	"logt/pkg/stream"
)

// Exit codes of the wrapper itself, following the shell conventions.
const (
	ExitInternal   = 125 // logt failed before the child could run
	ExitNotRunning = 126 // the command exists but could not be started
	ExitNotFound   = 127 // the command does not exist
)

// ErrPipeSetup is returned when the child's output pipes could not be created.
var ErrPipeSetup = errors.New("failed to connect to child output")

// SpawnError is returned when the child process could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ExitCode is the status logt exits with when the child could not be started.
func (e *SpawnError) ExitCode() int {
	if errors.Is(e.Err, exec.ErrNotFound) || errors.Is(e.Err, os.ErrNotExist) {
		return ExitNotFound
	}
	return ExitNotRunning
}

// Options configures Run.
type Options struct {
	// Stdin is handed to the child. nil means the wrapper's own stdin.
	Stdin io.Reader

	// Stdout and Stderr receive the annotated lines. nil means the
	// wrapper's own streams.
	Stdout io.Writer
	Stderr io.Writer

	// Formatter renders each line. Its start instant is fixed right before
	// the child is started.
	Formatter *annotate.Formatter

	Read   stream.ReadOptions
	Buffer int // capacity of the merge channel, 0 for the default

	Dir string   // working directory of the child, empty for the current one
	Env []string // environment of the child, nil to inherit
}

// Result describes a finished child.
type Result struct {
	PID      int
	ExitCode int
	Signal   string // set when the child was killed by a signal
	Duration time.Duration
	Stats    dispatch.Stats
}

// Run starts argv, annotates every line it writes and waits for it to exit.
//
// The child is not killed when ctx is cancelled. While the child runs, Run
// catches SIGINT, SIGTERM, SIGHUP and SIGQUIT. Terminal signals reach the
// child through the process group and SIGTERM is forwarded to it, so Run
// keeps draining until the child closed both pipes and reports its exit code.
func Run(ctx context.Context, argv []string, opts Options) (Result, error) {
	if len(argv) == 0 || argv[0] == "" {
		return Result{}, errors.New("no command given")
	}
	log := pslog.Ctx(ctx).With("command", argv[0])

	formatter := opts.Formatter
	if formatter == nil {
		return Result{}, errors.New("no formatter configured")
	}
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	// Build the command, stdin is inherited unless given
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdin = opts.Stdin
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}

	// Create pipes for stdout and stderr
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("%w: stdout: %w", ErrPipeSetup, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("%w: stderr: %w", ErrPipeSetup, err)
	}

	// Catch termination signals before the child exists
	signals := newRelay()
	defer signals.stop()

	// Start the process, relative offsets count from here
	start := formatter.Start()
	if err := cmd.Start(); err != nil {
		return Result{}, &SpawnError{Command: argv[0], Err: err}
	}
	pid := cmd.Process.Pid
	signals.forward(cmd.Process, log)
	log.Debug("child started", "pid", pid, "args", len(argv)-1)

	// Each pipe is owned by exactly one reader goroutine. The merge channel
	// closes once both pipes reached EOF.
	merge := stream.NewMerge(opts.Buffer)
	merge.Read(stdoutPipe, stream.Stdout, opts.Read)
	merge.Read(stderrPipe, stream.Stderr, opts.Read)
	merge.Seal()

	// Write every line to the stream it came from until both pipes closed
	stats, drainErr := dispatch.New(stdout, stderr, formatter).Drain(merge.Events())

	// Wait closes the pipes, so it must only run after both readers are done.
	waitErr := cmd.Wait()
	result := Result{
		PID:      pid,
		Duration: time.Since(start),
		Stats:    stats,
	}
	// Map the wait status to a shell style exit code
	result.ExitCode, result.Signal = exitStatus(cmd.ProcessState, waitErr)

	log.Debug("child exited",
		"pid", pid,
		"exit_code", result.ExitCode,
		"signal", result.Signal,
		"duration", result.Duration,
		"stdout_lines", stats.Lines[stream.Stdout],
		"stderr_lines", stats.Lines[stream.Stderr],
		"read_errors", stats.Errors[stream.Stdout]+stats.Errors[stream.Stderr],
	)

	// A write failure wins over the exit status of the child
	if drainErr != nil {
		return result, drainErr
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return result, fmt.Errorf("failed to wait for %s: %w", argv[0], waitErr)
	}
	return result, nil
}

// exitStatus maps the process state to a shell style exit code. A child
// killed by a signal exits with 128 + signal number.
func exitStatus(state *os.ProcessState, waitErr error) (int, string) {
	if state == nil {
		if waitErr != nil {
			return ExitInternal, ""
		}
		return 0, ""
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), status.Signal().String()
	}
	return state.ExitCode(), ""
}
