package charger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status keys.
const (
	KeyChargeNowAmps      = "chargeNowAmps"
	KeyChargeNowTimeEnd   = "chargeNowTimeEnd"
	KeyChargeNowRemaining = "chargeNowRemaining"
	KeyChargeNowDuration  = "chargeNowDuration"
)

// DefaultStatusInterval is used when Config.StatusInterval is not positive.
const DefaultStatusInterval = 30 * time.Second

// StatusOutput receives status values. mqttstatus.Publisher and
// influxdb.Client implement it.
type StatusOutput interface {
	Publish(deviceID, key string, value any) bool
}

// Logger defines the logging interface used by the Controller.
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

// Config holds controller settings.
type Config struct {
	// DeviceID is the device segment of every status topic.
	DeviceID string

	// StatusInterval is how often Run republishes the full status.
	StatusInterval time.Duration
}

// Status is a point-in-time view of the charge-now session.
type Status struct {
	Amps      int
	TimeEnd   time.Time
	Duration  time.Duration
	Remaining time.Duration
}

// Active reports whether a charge-now session is running.
func (s Status) Active() bool {
	return s.Amps != 0 && s.Remaining > 0
}

// Controller is the charger the bridges are attached to.
//
// It implements the KNX control host interface and fans status out to
// every registered StatusOutput.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Outputs are called without the lock held.
type Controller struct {
	cfg    Config
	now    func() time.Time
	logger Logger

	mu       sync.Mutex
	amps     int
	timeEnd  time.Time
	duration time.Duration
	released map[string]struct{}
	outputs  []StatusOutput
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Controller with no session and no outputs.
func New(cfg Config, opts ...Option) *Controller {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}

	c := &Controller{
		cfg:      cfg,
		now:      time.Now,
		logger:   noopLogger{},
		released: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddOutput registers a status output.
func (c *Controller) AddOutput(out StatusOutput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs = append(c.outputs, out)
}

// ResetChargeNowAmps ends the charge-now session.
func (c *Controller) ResetChargeNowAmps() {
	c.mu.Lock()
	c.amps = 0
	c.timeEnd = time.Time{}
	c.duration = 0
	c.mu.Unlock()

	c.logger.Info("charge now cancelled")
	c.PublishStatus()
}

// SetChargeNowTimeEnd sets the session to end d from now.
func (c *Controller) SetChargeNowTimeEnd(d time.Duration) {
	c.mu.Lock()
	c.timeEnd = c.now().Add(d)
	c.duration = d
	end := c.timeEnd
	c.mu.Unlock()

	c.logger.Debug("charge now end time set", "duration", d, "time_end", end)
}

// SetChargeNowAmps sets the session rate. Negative values are passed
// through unchanged.
func (c *Controller) SetChargeNowAmps(amps int) {
	c.mu.Lock()
	c.amps = amps
	end := c.timeEnd
	c.mu.Unlock()

	c.logger.Info("charge now started", "amps", amps, "time_end", end)
	c.PublishStatus()
}

// ReleaseModule marks a module as released. Releasing twice is harmless.
func (c *Controller) ReleaseModule(namespace, name string) {
	key := moduleKey(namespace, name)

	c.mu.Lock()
	_, already := c.released[key]
	c.released[key] = struct{}{}
	c.mu.Unlock()

	if !already {
		c.logger.Info("module released", "module", key)
	}
}

// IsReleased reports whether a module has been released.
func (c *Controller) IsReleased(namespace, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.released[moduleKey(namespace, name)]
	return ok
}

// ReleasedModules returns the released modules as sorted
// "namespace/name" strings.
func (c *Controller) ReleasedModules() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	mods := make([]string, 0, len(c.released))
	for key := range c.released {
		mods = append(mods, key)
	}
	sort.Strings(mods)
	return mods
}

func moduleKey(namespace, name string) string {
	return fmt.Sprintf("%s/%s", namespace, name)
}

// Status returns the session state, expiring it first if its end time has
// passed.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.expireLocked(now)

	s := Status{Amps: c.amps, TimeEnd: c.timeEnd, Duration: c.duration}
	if !c.timeEnd.IsZero() && c.timeEnd.After(now) {
		s.Remaining = c.timeEnd.Sub(now)
	}
	return s
}

// expireLocked ends a session whose end time has passed.
func (c *Controller) expireLocked(now time.Time) {
	if c.timeEnd.IsZero() || now.Before(c.timeEnd) {
		return
	}
	if c.amps != 0 {
		c.logger.Info("charge now session expired", "amps", c.amps, "time_end", c.timeEnd)
	}
	c.amps = 0
	c.timeEnd = time.Time{}
	c.duration = 0
}

// PublishStatus sends every status key to every output.
func (c *Controller) PublishStatus() {
	s := c.Status()

	c.mu.Lock()
	outputs := append([]StatusOutput(nil), c.outputs...)
	c.mu.Unlock()

	if len(outputs) == 0 {
		return
	}

	var timeEnd int64
	if !s.TimeEnd.IsZero() {
		timeEnd = s.TimeEnd.Unix()
	}

	values := []struct {
		key   string
		value any
	}{
		{KeyChargeNowAmps, s.Amps},
		{KeyChargeNowTimeEnd, timeEnd},
		{KeyChargeNowRemaining, int64(s.Remaining / time.Second)},
		{KeyChargeNowDuration, int64(s.Duration / time.Second)},
	}

	for _, out := range outputs {
		for _, v := range values {
			if !out.Publish(c.cfg.DeviceID, v.key, v.value) {
				c.logger.Debug("status output did not accept value", "key", v.key)
			}
		}
	}
}

// Run publishes the status every StatusInterval until ctx is cancelled.
// Session expiry is detected on each tick.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.StatusInterval)
	defer ticker.Stop()

	c.PublishStatus()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.PublishStatus()
		}
	}
}
