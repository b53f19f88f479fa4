package mqttstatus

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/evbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/evbridge/internal/metrics"
)

// Defaults matching the status.mqtt configuration defaults.
const (
	DefaultRateLimit     = 60 * time.Second
	DefaultQueueCapacity = 16

	// queueSlack is how far the queue may grow past capacity before trimming.
	queueSlack = 8
)

// State is the publisher's connection state.
type State int32

// Publisher states. The cycle is Idle, Connecting, Draining, Idle.
const (
	StateIdle State = iota
	StateConnecting
	StateDraining
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Conn is one broker connection. *mqtt.Session implements it.
type Conn interface {
	// Wait blocks until the connection is established or has failed.
	Wait(ctx context.Context) error

	// Publish sends one message.
	Publish(topic string, payload []byte) error

	// Close disconnects.
	Close()
}

// Dialer starts broker connections. Dial must not block on the network:
// an error means the connection could not even be attempted.
type Dialer interface {
	Dial() (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func() (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial() (Conn, error) {
	return f()
}

// SessionDialer adapts an mqtt.Dialer to the Dialer interface.
func SessionDialer(d *mqtt.Dialer) Dialer {
	return DialerFunc(func() (Conn, error) {
		sess, err := d.Dial()
		if err != nil {
			return nil, err
		}
		return sess, nil
	})
}

// Message is a queued status update.
type Message struct {
	Topic   string
	Payload []byte
}

// Config holds publisher settings.
type Config struct {
	// TopicPrefix is prepended to "<deviceID>/<key>".
	TopicPrefix string

	// RateLimit is the minimum interval between two messages on one topic.
	// Zero or negative disables rate limiting.
	RateLimit time.Duration

	// QueueCapacity is the trim size of the pending queue.
	// Zero or negative uses DefaultQueueCapacity.
	QueueCapacity int
}

// Logger defines the logging interface for the publisher.
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

// Option customises a Publisher.
type Option func(*Publisher)

// WithLogger sets the publisher logger.
func WithLogger(logger Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(p *Publisher) {
		if c != nil {
			p.metrics = c
		}
	}
}

// WithClock replaces time.Now for rate limiting.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// Publisher queues status values and delivers them in connect-drain-close
// cycles.
//
// Thread Safety:
//   - Publish, State, QueueLen and Close are safe for concurrent use.
//   - Publish never waits on the network.
type Publisher struct {
	cfg     Config
	dialer  Dialer
	now     func() time.Time
	logger  Logger
	metrics metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards everything below.
	mu       sync.Mutex
	state    State
	queue    []Message
	lastSent map[string]time.Time
	closed   bool
}

// New creates a Publisher. No connection is made until the first Publish.
func New(cfg Config, dialer Dialer, opts ...Option) *Publisher {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		cfg:      cfg,
		dialer:   dialer,
		now:      time.Now,
		logger:   noopLogger{},
		metrics:  metrics.Noop(),
		ctx:      ctx,
		cancel:   cancel,
		lastSent: make(map[string]time.Time),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Publish queues value for "<prefix>/<deviceID>/<key>" and starts a
// delivery cycle if none is running.
//
// Returns false only when a connection was needed and could not be
// attempted; the message stays queued for the next cycle. Rate-limited
// values are dropped and reported as true. After Close, Publish drops the
// value and returns false.
func (p *Publisher) Publish(deviceID, key string, value any) bool {
	topic := mqtt.StatusTopic(p.cfg.TopicPrefix, deviceID, key)
	now := p.now()

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return false
	}

	if last, ok := p.lastSent[topic]; ok && p.cfg.RateLimit > 0 && now.Sub(last) < p.cfg.RateLimit {
		p.mu.Unlock()
		p.metrics.IncStatusRateLimited()
		return true
	}
	p.lastSent[topic] = now

	p.queue = append(p.queue, Message{Topic: topic, Payload: encodePayload(value)})
	dropped := p.trimLocked()
	depth := len(p.queue)

	if p.state != StateIdle {
		p.mu.Unlock()
		p.reportQueue(depth, dropped)
		return true
	}

	conn, err := p.dialer.Dial()
	if err != nil {
		p.mu.Unlock()
		p.reportQueue(depth, dropped)
		p.metrics.IncStatusConnectFailures()
		p.logger.Warn("cannot connect to broker to publish status", "error", err, "queued", depth)
		return false
	}

	p.state = StateConnecting
	p.wg.Add(1)
	p.mu.Unlock()

	p.reportQueue(depth, dropped)
	p.logger.Debug("connecting to broker", "queued", depth)

	go p.run(conn)
	return true
}

// trimLocked drops the oldest QueueCapacity messages once the queue
// exceeds QueueCapacity+queueSlack. Returns the number dropped.
func (p *Publisher) trimLocked() int {
	if len(p.queue) <= p.cfg.QueueCapacity+queueSlack {
		return 0
	}
	n := p.cfg.QueueCapacity
	p.queue = append(p.queue[:0:0], p.queue[n:]...)
	return n
}

func (p *Publisher) reportQueue(depth, dropped int) {
	p.metrics.SetStatusQueueDepth(depth)
	if dropped > 0 {
		p.metrics.AddStatusDropped(dropped)
		p.logger.Warn("status queue overflow, oldest messages dropped", "dropped", dropped, "queued", depth)
	}
}

// run performs connect-drain cycles until the queue stays empty.
func (p *Publisher) run(conn Conn) {
	defer p.wg.Done()

	for conn != nil {
		conn = p.cycle(conn)
	}
}

// cycle waits for conn, drains the queue through it and closes it. It
// returns the next connection when more messages are waiting, or nil once
// the publisher is idle again.
func (p *Publisher) cycle(conn Conn) Conn {
	if err := conn.Wait(p.ctx); err != nil {
		conn.Close()
		p.metrics.IncStatusConnectFailures()
		p.logger.Warn("broker connection failed", "error", err)
		p.setState(StateIdle)
		return nil
	}

	p.mu.Lock()
	p.state = StateDraining
	batch := p.queue
	p.queue = nil
	p.mu.Unlock()
	p.metrics.SetStatusQueueDepth(0)

	p.logger.Debug("connected to broker, publishing queued status", "count", len(batch))
	p.drain(conn, batch)
	conn.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 || p.closed {
		p.state = StateIdle
		return nil
	}

	next, err := p.dialer.Dial()
	if err != nil {
		p.state = StateIdle
		p.metrics.IncStatusConnectFailures()
		p.logger.Warn("cannot reconnect to broker for queued status", "error", err, "queued", len(p.queue))
		return nil
	}
	p.state = StateConnecting
	return next
}

// drain publishes batch in order. Failures are logged and skipped.
func (p *Publisher) drain(conn Conn, batch []Message) {
	for i, msg := range batch {
		if p.ctx.Err() != nil {
			p.logger.Warn("publisher closed during drain, discarding status", "discarded", len(batch)-i)
			return
		}
		if err := conn.Publish(msg.Topic, msg.Payload); err != nil {
			p.metrics.IncStatusPublishErrors()
			p.logger.Warn("failed to publish status", "topic", msg.Topic, "error", err)
			continue
		}
		p.metrics.IncStatusPublished()
		p.logger.Debug("published status", "topic", msg.Topic)
	}
}

func (p *Publisher) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// State returns the current connection state.
func (p *Publisher) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// QueueLen returns the number of messages waiting for the next cycle.
func (p *Publisher) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops any in-flight cycle and waits for it to finish. Queued
// messages are discarded.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
