// Package ffmpeg locates the ffmpeg binary and uses it for pitch-preserving
// time stretch and compressed export.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// gracefulTimeout bounds how long an interrupted encode may take to
// finalize its output.
const gracefulTimeout = 5 * time.Second

// RunGraceful executes FFmpeg and, when ctx is canceled, sends 'q' on stdin
// so the output container is finalized before exit. The process is killed
// if it has not exited after timeout.
func RunGraceful(ctx context.Context, ffmpegPath string, args []string, timeout time.Duration) error {
	cmd := exec.Command(ffmpegPath, args...) // #nosec G204 -- ffmpeg path is resolved, args are built here

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ffmpeg: %w\nOutput: %s", err, lastLines(stderr.String(), 5))
		}
		return nil

	case <-ctx.Done():
		_, _ = io.WriteString(stdin, "q")
		_ = stdin.Close()

		select {
		case <-done:
			// A non-zero exit after 'q' is normal; the file is finalized.
			return ctx.Err()
		case <-time.After(timeout):
			_ = cmd.Process.Kill()
			<-done
			return fmt.Errorf("%w: killed after %v", ErrTimeout, timeout)
		}
	}
}

// ---------------------------------------------------------------------------
// Executor - testable FFmpeg execution with dependency injection
// ---------------------------------------------------------------------------

// runOutputFn runs a command and captures its stderr.
type runOutputFn func(ctx context.Context, path string, args []string) (string, error)

// runPipeFn runs a command with stdin and returns its stdout.
type runPipeFn func(ctx context.Context, path string, args []string, stdin []byte) ([]byte, error)

// runGracefulFn runs a long command that must finalize its output on cancel.
type runGracefulFn func(ctx context.Context, path string, args []string, timeout time.Duration) error

// Executor runs FFmpeg commands with injectable dependencies.
type Executor struct {
	runOutput   runOutputFn
	runPipe     runPipeFn
	runGraceful runGracefulFn
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRunOutput sets a custom runOutput function (for testing).
func WithRunOutput(fn runOutputFn) ExecutorOption {
	return func(e *Executor) { e.runOutput = fn }
}

// WithRunPipe sets a custom stdin/stdout runner (for testing).
func WithRunPipe(fn runPipeFn) ExecutorOption {
	return func(e *Executor) { e.runPipe = fn }
}

// WithRunGraceful sets a custom graceful runner (for testing).
func WithRunGraceful(fn runGracefulFn) ExecutorOption {
	return func(e *Executor) { e.runGraceful = fn }
}

// NewExecutor creates an Executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		runOutput:   defaultRunOutput,
		runPipe:     defaultRunPipe,
		runGraceful: RunGraceful,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOutput executes FFmpeg and captures its stderr output.
func (e *Executor) RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	return e.runOutput(ctx, ffmpegPath, args)
}

// defaultRunOutput returns stderr even when the command fails, since
// ffmpeg reports diagnostics there.
func defaultRunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, args...) // #nosec G204 -- see RunGraceful

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stderr.String(), err
}

// defaultRunPipe feeds stdin to the process and collects stdout.
func defaultRunPipe(ctx context.Context, ffmpegPath string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, args...) // #nosec G204 -- see RunGraceful
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg: %w\nOutput: %s", err, lastLines(stderr.String(), 5))
	}
	return stdout.Bytes(), nil
}

// lastLines keeps the tail of ffmpeg's verbose stderr.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// ---------------------------------------------------------------------------
// Package-level functions
// ---------------------------------------------------------------------------

var (
	defaultExecutor     *Executor
	defaultExecutorOnce sync.Once
)

func getDefaultExecutor() *Executor {
	defaultExecutorOnce.Do(func() {
		defaultExecutor = NewExecutor()
	})
	return defaultExecutor
}

// RunOutput executes FFmpeg with the default Executor.
func RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	return getDefaultExecutor().RunOutput(ctx, ffmpegPath, args)
}
