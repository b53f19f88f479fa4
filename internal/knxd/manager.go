package knxd

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/nerrad567/evbridge/internal/process"
	"github.com/nerrad567/evbridge/internal/validation"
)

const (
	readyPollInterval = 100 * time.Millisecond
	readyDialTimeout  = time.Second
)

// Logger defines the logging interface for the manager.
type Logger = process.Logger

// Manager starts and supervises knxd.
type Manager struct {
	cfg    Config
	logger Logger
	proc   *process.Supervisor
}

// NewManager validates cfg and prepares the knxd supervisor. logger may be
// nil.
//
// Returns:
//   - error: ErrInvalidConfig describing every problem found
func NewManager(cfg Config, logger Logger) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Manager{
		cfg:    cfg,
		logger: logger,
		proc: process.New(process.Config{
			Name:         "knxd",
			Binary:       cfg.Binary,
			Args:         cfg.Args(),
			RestartDelay: cfg.RestartDelay,
			MaxRestarts:  cfg.MaxRestarts,
		}, logger),
	}, nil
}

// Endpoint is where the managed knxd accepts clients.
func (m *Manager) Endpoint() validation.Endpoint {
	return validation.Endpoint{Host: netip.AddrFrom4([4]byte{127, 0, 0, 1}), Port: m.cfg.TCPPort}
}

// Args returns the knxd command line.
func (m *Manager) Args() []string {
	return m.cfg.Args()
}

// Start launches knxd and waits until its TCP port accepts connections.
// If knxd does not become ready it is stopped again.
func (m *Manager) Start(ctx context.Context) error {
	if m.logger != nil {
		m.logger.Info("starting knxd", "binary", m.cfg.Binary, "args", m.cfg.Args(), "backend", m.cfg.Backend.Type)
	}

	if err := m.proc.Start(ctx); err != nil {
		return fmt.Errorf("starting knxd: %w", err)
	}

	if err := m.waitForReady(ctx); err != nil {
		_ = m.proc.Stop() //nolint:errcheck // Already failing
		return fmt.Errorf("knxd failed to become ready: %w", err)
	}

	if m.logger != nil {
		m.logger.Info("knxd ready", "endpoint", m.Endpoint().String(), "pid", m.proc.PID())
	}
	return nil
}

func (m *Manager) waitForReady(ctx context.Context) error {
	addr := m.Endpoint().String()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ReadyTimeout)
	defer cancel()

	var dialer net.Dialer
	for {
		dialCtx, dialCancel := context.WithTimeout(ctx, readyDialTimeout)
		conn, err := dialer.DialContext(dialCtx, "tcp", addr)
		dialCancel()
		if err == nil {
			conn.Close()
			return nil
		}

		if !m.proc.IsRunning() {
			if last := m.proc.LastError(); last != nil {
				return fmt.Errorf("knxd exited: %w", last)
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", addr, ctx.Err())
		case <-time.After(readyPollInterval):
		}
	}
}

// Stop terminates knxd.
func (m *Manager) Stop() error {
	return m.proc.Stop()
}

// IsRunning reports whether knxd is up.
func (m *Manager) IsRunning() bool {
	return m.proc.IsRunning()
}
