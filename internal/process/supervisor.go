package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the state of the supervised process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusFailed  Status = "failed"
)

// Defaults applied to zero Config fields.
const (
	DefaultRestartDelay    = 5 * time.Second
	DefaultGracefulTimeout = 10 * time.Second
)

// ErrAlreadyRunning is returned by Start while the supervisor is active.
var ErrAlreadyRunning = errors.New("process: already running")

// Config describes the child process.
type Config struct {
	// Name identifies the process in logs.
	Name string

	// Binary is the executable path.
	Binary string

	// Args are the command-line arguments.
	Args []string

	// RestartDelay is the wait between an unexpected exit and the restart.
	RestartDelay time.Duration

	// MaxRestarts limits restarts after unexpected exits. 0 means unlimited.
	MaxRestarts int

	// GracefulTimeout is how long SIGTERM is given before the process is
	// killed.
	GracefulTimeout time.Duration
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor runs one child process and restarts it when it dies.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	status   Status
	restarts int
	lastErr  error
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a stopped Supervisor. logger may be nil.
func New(cfg Config, logger Logger) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = DefaultGracefulTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Supervisor{cfg: cfg, logger: logger, status: StatusStopped}
}

// Start launches the process and supervises it until Stop is called or
// ctx is cancelled. An error means the first launch failed.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd, err := s.spawnLocked(runCtx)
	if err != nil {
		cancel()
		s.status = StatusFailed
		s.lastErr = err
		return err
	}

	s.cancel = cancel
	s.done = make(chan struct{})
	s.restarts = 0
	go s.supervise(runCtx, cmd, s.done)
	return nil
}

// spawnLocked starts one instance of the process. Caller holds s.mu.
func (s *Supervisor) spawnLocked(ctx context.Context) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.cfg.Args...) //nolint:gosec // Binary and args come from validated configuration
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = &lineLogger{logger: s.logger, name: s.cfg.Name, stream: "stdout"}
	cmd.Stderr = &lineLogger{logger: s.logger, name: s.cfg.Name, stream: "stderr"}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGTERM)
	}
	cmd.WaitDelay = s.cfg.GracefulTimeout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	s.cmd = cmd
	s.status = StatusRunning
	s.logger.Info("process started", "name", s.cfg.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

// signalGroup signals the process group created by Setpgid.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

func (s *Supervisor) supervise(ctx context.Context, cmd *exec.Cmd, done chan struct{}) {
	defer close(done)

	for {
		exitErr := cmd.Wait()

		for {
			if ctx.Err() != nil {
				s.mu.Lock()
				s.status = StatusStopped
				s.mu.Unlock()
				s.logger.Info("process stopped", "name", s.cfg.Name)
				return
			}

			if exitErr == nil {
				exitErr = fmt.Errorf("%s exited unexpectedly", s.cfg.Name)
			}

			s.mu.Lock()
			s.status = StatusFailed
			s.lastErr = exitErr
			s.restarts++
			attempt := s.restarts
			s.mu.Unlock()

			if s.cfg.MaxRestarts > 0 && attempt > s.cfg.MaxRestarts {
				s.logger.Error("process failed, restart limit reached",
					"name", s.cfg.Name, "error", exitErr, "attempts", attempt-1)
				return
			}

			s.logger.Warn("process exited, restarting",
				"name", s.cfg.Name, "error", exitErr, "attempt", attempt, "delay", s.cfg.RestartDelay)

			select {
			case <-ctx.Done():
				continue
			case <-time.After(s.cfg.RestartDelay):
			}

			s.mu.Lock()
			next, err := s.spawnLocked(ctx)
			s.mu.Unlock()
			if err == nil {
				cmd = next
				break
			}
			exitErr = err
		}
	}
}

// Stop terminates the process and waits for supervision to end. Safe to
// call when not running.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	s.logger.Info("stopping process", "name", s.cfg.Name)
	cancel()
	<-done
	return nil
}

// Done is closed when supervision ends, either after Stop or when the
// restart limit is reached. Nil before the first Start.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Status returns the current process state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsRunning reports whether the process is up.
func (s *Supervisor) IsRunning() bool {
	return s.Status() == StatusRunning
}

// PID returns the current process ID, or 0 if not running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning || s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Restarts returns how many times the process has exited unexpectedly
// since Start.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// LastError returns why the process last exited.
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// lineLogger logs child output one line at a time.
type lineLogger struct {
	logger Logger
	name   string
	stream string
	buf    bytes.Buffer
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Keep the partial line for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		w.logger.Debug("process output", "name", w.name, "stream", w.stream, "line", line[:len(line)-1])
	}
}
