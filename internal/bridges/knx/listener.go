package knx

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/evbridge/internal/metrics"
	"github.com/nerrad567/evbridge/internal/validation"
)

// Reconnect delays for the listener loop.
const (
	// ConnectRetryDelay is the wait after knxd could not be reached.
	ConnectRetryDelay = 30 * time.Second

	// SessionRetryDelay is the wait after an established session failed.
	SessionRetryDelay = 1 * time.Second
)

// Logger defines the logging interface for the listener.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ChargeController is the host side of the listener. Commands are delivered
// from the listener goroutine, one at a time, in telegram order.
type ChargeController interface {
	// ResetChargeNowAmps cancels any charge-now session.
	ResetChargeNowAmps()

	// SetChargeNowTimeEnd sets the session to end d from now.
	SetChargeNowTimeEnd(d time.Duration)

	// SetChargeNowAmps sets the charge-now rate.
	SetChargeNowAmps(amps int)
}

// DialFunc opens a group-socket session with knxd.
type DialFunc func(ctx context.Context, endpoint validation.Endpoint) (Session, error)

// ListenerConfig holds the raw listener settings as read from configuration.
type ListenerConfig struct {
	// GatewayIP is the knxd host. Must be an IP literal.
	GatewayIP string

	// GatewayPort is the knxd TCP port (int or numeric string).
	GatewayPort any

	// RateAddress is the group address carrying the charge rate (DPT 14).
	RateAddress string

	// DurationAddress is the group address carrying the duration (DPT 7).
	DurationAddress string

	// DefaultDuration is the session length used until a duration
	// telegram is received.
	DefaultDuration time.Duration

	// ConnectTimeout bounds each dial. Zero uses the knxd client default.
	ConnectTimeout time.Duration
}

// ListenerOption customises a Listener.
type ListenerOption func(*Listener)

// WithLogger sets the listener logger.
func WithLogger(logger Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) ListenerOption {
	return func(l *Listener) {
		if c != nil {
			l.metrics = c
		}
	}
}

// WithDialFunc replaces the knxd dialer.
func WithDialFunc(dial DialFunc) ListenerOption {
	return func(l *Listener) {
		if dial != nil {
			l.dial = dial
		}
	}
}

// Listener receives charge-now commands from the KNX bus.
//
// A single goroutine owns the knxd session: it dials, receives telegrams,
// dispatches them to the host and backs off after failures. The loop runs
// until Stop is called or the context passed to Start is cancelled.
type Listener struct {
	endpoint     validation.Endpoint
	rateAddr     GroupAddress
	durationAddr GroupAddress

	// duration is the current default session length in seconds.
	duration atomic.Int64

	host    ChargeController
	dial    DialFunc
	sleep   func(ctx context.Context, d time.Duration) error
	logger  Logger
	metrics metrics.Collector

	connected atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener validates cfg and returns a Listener that has not started.
//
// An unusable endpoint or group address returns an error wrapping
// ErrInvalidConfig. Callers treat it as fatal.
func NewListener(cfg ListenerConfig, host ChargeController, opts ...ListenerOption) (*Listener, error) {
	if host == nil {
		return nil, fmt.Errorf("%w: charge controller is required", ErrInvalidConfig)
	}

	endpoint, err := validation.ParseEndpoint(cfg.GatewayIP, cfg.GatewayPort)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway: %w", ErrInvalidConfig, err)
	}

	rateAddr, err := ParseGroupAddress(cfg.RateAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: charge-now rate address: %w", ErrInvalidConfig, err)
	}

	durationAddr, err := ParseGroupAddress(cfg.DurationAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: charge-now duration address: %w", ErrInvalidConfig, err)
	}

	if rateAddr == durationAddr {
		return nil, fmt.Errorf("%w: rate and duration addresses are both %s", ErrInvalidConfig, rateAddr)
	}

	if cfg.DefaultDuration < time.Second {
		return nil, fmt.Errorf("%w: default duration %s is shorter than one second", ErrInvalidConfig, cfg.DefaultDuration)
	}

	timeout := cfg.ConnectTimeout
	l := &Listener{
		endpoint:     endpoint,
		rateAddr:     rateAddr,
		durationAddr: durationAddr,
		host:         host,
		dial: func(ctx context.Context, ep validation.Endpoint) (Session, error) {
			return Dial(ctx, ep.String(), timeout)
		},
		sleep:   sleepContext,
		logger:  noopLogger{},
		metrics: metrics.Noop(),
	}
	l.duration.Store(int64(cfg.DefaultDuration / time.Second))

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Endpoint returns the validated knxd endpoint.
func (l *Listener) Endpoint() validation.Endpoint {
	return l.endpoint
}

// ChargeNowDuration returns the session length applied to the next rate command.
func (l *Listener) ChargeNowDuration() time.Duration {
	return time.Duration(l.duration.Load()) * time.Second
}

// IsConnected reports whether a knxd session is currently established.
func (l *Listener) IsConnected() bool {
	return l.connected.Load()
}

// Start launches the reconnect loop. Calling Start on a running listener
// does nothing.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	done := l.done
	go func() {
		defer close(done)
		l.run(runCtx)
	}()

	l.logger.Info("knx listener started",
		"endpoint", l.endpoint.String(),
		"rate_address", l.rateAddr.String(),
		"duration_address", l.durationAddr.String(),
		"default_duration", l.ChargeNowDuration().String(),
	)
}

// Stop cancels the reconnect loop and waits for it to exit. Any open knxd
// session is closed.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
	l.logger.Info("knx listener stopped")
}

// run is the reconnect loop.
func (l *Listener) run(ctx context.Context) {
	for {
		delay := l.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err := l.sleep(ctx, delay); err != nil {
			return
		}
	}
}

// runOnce performs one connect-and-receive attempt and returns how long to
// wait before the next.
func (l *Listener) runOnce(ctx context.Context) time.Duration {
	l.logger.Debug("connecting to knxd", "endpoint", l.endpoint.String())

	sess, err := l.dial(ctx, l.endpoint)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Warn("knxd connection failed",
				"endpoint", l.endpoint.String(),
				"error", err,
				"retry_in", ConnectRetryDelay.String(),
			)
			l.metrics.IncReconnect("connect_failed")
		}
		return ConnectRetryDelay
	}

	l.setConnected(true)
	defer l.setConnected(false)
	l.logger.Info("connected to knxd", "endpoint", l.endpoint.String())

	err = l.serve(ctx, sess)
	if ctx.Err() == nil {
		l.logger.Warn("knxd session failed",
			"endpoint", l.endpoint.String(),
			"error", err,
			"retry_in", SessionRetryDelay.String(),
		)
		l.metrics.IncReconnect("session_failed")
	}
	return SessionRetryDelay
}

// serve receives telegrams until the session fails or ctx is cancelled.
func (l *Listener) serve(ctx context.Context, sess Session) error {
	stop := context.AfterFunc(ctx, func() {
		_ = sess.Close()
	})
	defer stop()
	defer sess.Close()

	for {
		t, err := sess.Receive()
		if err != nil {
			return err
		}
		l.HandleTelegram(t)
	}
}

func (l *Listener) setConnected(v bool) {
	l.connected.Store(v)
	l.metrics.SetKNXConnected(v)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
