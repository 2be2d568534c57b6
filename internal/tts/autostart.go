package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/alnah/go-subvoice/internal/apierr"
)

const (
	// DefaultStartupTimeout bounds how long a launched server may take to
	// pass its health check.
	DefaultStartupTimeout = 30 * time.Second

	defaultPollInterval = time.Second
	serverStopGrace     = 5 * time.Second
)

// ServerCommand launches a local synthesis server.
type ServerCommand struct {
	// Command is the program and its arguments. Empty disables auto-start.
	Command []string
	// Dir is the working directory. Empty means the current one.
	Dir            string
	StartupTimeout time.Duration
}

// server is a launched process.
type server interface {
	// Done is closed when the process exits.
	Done() <-chan struct{}
	// Stop terminates the process and waits for it.
	Stop() error
}

type serverStarter func(ServerCommand) (server, error)

// autoStartBackend launches its server when the first health check fails
// and stops it on Close. A server that was already running is left alone.
type autoStartBackend struct {
	Backend
	cmd  ServerCommand
	opts options

	mu     sync.Mutex
	server server
}

// WithAutoStart wraps b so that a failing health check launches cmd and
// waits until b reports healthy.
func WithAutoStart(b Backend, cmd ServerCommand, opts ...Option) Backend {
	if cmd.StartupTimeout <= 0 {
		cmd.StartupTimeout = DefaultStartupTimeout
	}
	return &autoStartBackend{Backend: b, cmd: cmd, opts: newOptions(opts)}
}

// Health checks the service, launching the server once if it is down.
func (a *autoStartBackend) Health(ctx context.Context) error {
	err := a.Backend.Health(ctx)
	if err == nil || ctx.Err() != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return err
	}

	a.opts.logger.Info("starting server", "backend", a.Name(), "command", strings.Join(a.cmd.Command, " "))
	srv, serr := a.opts.startServer(a.cmd)
	if serr != nil {
		return fmt.Errorf("%s: start server: %w: %w", a.Name(), apierr.ErrUnavailable, serr)
	}
	a.server = srv

	deadline := time.NewTimer(a.cmd.StartupTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(a.opts.pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			a.stopLocked()
			return ctx.Err()
		case <-srv.Done():
			a.server = nil
			return fmt.Errorf("%s: server exited during startup: %w", a.Name(), apierr.ErrUnavailable)
		case <-deadline.C:
			a.stopLocked()
			return fmt.Errorf("%s: server not healthy after %s: %w", a.Name(), a.cmd.StartupTimeout, apierr.ErrUnavailable)
		case <-tick.C:
			if a.Backend.Health(ctx) == nil {
				a.opts.logger.Info("server ready", "backend", a.Name())
				return nil
			}
		}
	}
}

func (a *autoStartBackend) stopLocked() {
	if a.server == nil {
		return
	}
	if err := a.server.Stop(); err != nil {
		a.opts.logger.Warn("stopping server", "backend", a.Name(), "err", err)
	}
	a.server = nil
}

// Close stops a server launched by Health, then closes the backend.
func (a *autoStartBackend) Close() error {
	a.mu.Lock()
	var stopErr error
	if a.server != nil {
		a.opts.logger.Info("stopping server", "backend", a.Name())
		stopErr = a.server.Stop()
		a.server = nil
	}
	a.mu.Unlock()
	return errors.Join(stopErr, a.Backend.Close())
}

// processServer is a server running as a child process.
type processServer struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func startProcess(sc ServerCommand) (server, error) {
	if len(sc.Command) == 0 {
		return nil, errors.New("empty command")
	}
	// #nosec G204 -- command comes from the user's configuration
	cmd := exec.Command(sc.Command[0], sc.Command[1:]...)
	cmd.Dir = sc.Dir
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &processServer{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *processServer) Done() <-chan struct{} { return p.done }

// Stop interrupts the process and kills it after a grace period.
func (p *processServer) Stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		return p.kill()
	}
	timer := time.NewTimer(serverStopGrace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return p.kill()
	}
}

func (p *processServer) kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-p.done
	return nil
}
