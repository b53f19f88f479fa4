package audit

import (
	"context"
	"sync"
	"time"
)

// recordTimeout bounds each audit write.
const recordTimeout = 2 * time.Second

// Host is the charger interface a Recorder wraps. It matches the
// knx.Host interface.
type Host interface {
	ResetChargeNowAmps()
	SetChargeNowTimeEnd(d time.Duration)
	SetChargeNowAmps(amps int)
	ReleaseModule(namespace, name string)
}

// Logger is the logging interface used for audit write failures.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder forwards charge commands to a Host and records them.
//
// A start is recorded when SetChargeNowAmps follows SetChargeNowTimeEnd,
// carrying both the rate and the duration. Recording failures are logged
// and never reach the caller.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Recorder struct {
	host   Host
	repo   Repository
	source string
	logger Logger
	now    func() time.Time

	mu      sync.Mutex
	pending time.Duration
}

// NewRecorder wraps host. source names the bridge the commands come from,
// e.g. "knx". logger may be nil.
func NewRecorder(host Host, repo Repository, source string, logger Logger) *Recorder {
	return &Recorder{
		host:   host,
		repo:   repo,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// ResetChargeNowAmps forwards the cancel and records it.
func (r *Recorder) ResetChargeNowAmps() {
	r.host.ResetChargeNowAmps()

	r.mu.Lock()
	r.pending = 0
	r.mu.Unlock()

	r.create(&Command{Source: r.source, Action: ActionCancel})
}

// SetChargeNowTimeEnd forwards the session length and remembers it for
// the following SetChargeNowAmps.
func (r *Recorder) SetChargeNowTimeEnd(d time.Duration) {
	r.host.SetChargeNowTimeEnd(d)

	r.mu.Lock()
	r.pending = d
	r.mu.Unlock()
}

// SetChargeNowAmps forwards the rate and records the start.
func (r *Recorder) SetChargeNowAmps(amps int) {
	r.host.SetChargeNowAmps(amps)

	r.mu.Lock()
	d := r.pending
	r.pending = 0
	r.mu.Unlock()

	now := r.now().UTC()
	cmd := &Command{Source: r.source, Action: ActionStart, Amps: amps, CreatedAt: now}
	if d > 0 {
		cmd.Duration = d
		cmd.TimeEnd = now.Add(d)
	}
	r.create(cmd)
}

// ReleaseModule forwards the release and records it.
func (r *Recorder) ReleaseModule(namespace, name string) {
	r.host.ReleaseModule(namespace, name)

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.repo.RecordRelease(ctx, namespace, name); err != nil {
		r.warn("failed to record module release", "namespace", namespace, "name", name, "error", err)
	}
}

func (r *Recorder) create(cmd *Command) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, cmd); err != nil {
		r.warn("failed to record charge command", "action", cmd.Action, "error", err)
	}
}

func (r *Recorder) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
