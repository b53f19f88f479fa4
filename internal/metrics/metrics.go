// Package metrics exposes bridge counters and gauges via Prometheus.
//
// Components depend on the Collector interface and receive Noop() when
// metrics are disabled, so instrumentation never needs nil checks.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace prefixes every metric name.
const namespace = "evbridge"

// Collector receives instrumentation events from the bridges.
//
// Implementations must be safe for concurrent use and cheap to call: the
// hooks run inline on the telegram and publish paths.
type Collector interface {
	// KNX listener
	IncTelegramsReceived()
	IncChargeCommand(kind string)
	IncReconnect(reason string)
	SetKNXConnected(connected bool)

	// MQTT status publisher
	IncStatusRateLimited()
	AddStatusDropped(count int)
	SetStatusQueueDepth(depth int)
	IncStatusPublished()
	IncStatusPublishErrors()
	IncStatusConnectFailures()
}

type noopCollector struct{}

// Noop returns a collector that discards all events.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncTelegramsReceived()     {}
func (noopCollector) IncChargeCommand(string)   {}
func (noopCollector) IncReconnect(string)       {}
func (noopCollector) SetKNXConnected(bool)      {}
func (noopCollector) IncStatusRateLimited()     {}
func (noopCollector) AddStatusDropped(int)      {}
func (noopCollector) SetStatusQueueDepth(int)   {}
func (noopCollector) IncStatusPublished()       {}
func (noopCollector) IncStatusPublishErrors()   {}
func (noopCollector) IncStatusConnectFailures() {}

// PrometheusCollector records events as Prometheus metrics.
type PrometheusCollector struct {
	telegrams       prometheus.Counter
	commands        *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	knxConnected    prometheus.Gauge
	rateLimited     prometheus.Counter
	dropped         prometheus.Counter
	queueDepth      prometheus.Gauge
	published       prometheus.Counter
	publishErrors   prometheus.Counter
	connectFailures prometheus.Counter
}

// NewPrometheusCollector creates the bridge metrics and registers them with
// reg (prometheus.DefaultRegisterer when nil). Metrics already registered by
// an earlier collector are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusCollector{}
	var err error

	if p.telegrams, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "knx", Name: "telegrams_received_total",
		Help: "Group telegrams received from knxd.",
	})); err != nil {
		return nil, err
	}
	if p.commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "knx", Name: "charge_commands_total",
		Help: "Charge-now commands dispatched to the controller, by kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if p.reconnects, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "knx", Name: "reconnects_total",
		Help: "knxd reconnect attempts scheduled, by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if p.knxConnected, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "knx", Name: "connected",
		Help: "1 while a knxd session is established.",
	})); err != nil {
		return nil, err
	}
	if p.rateLimited, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "status", Name: "rate_limited_total",
		Help: "Status updates suppressed by the per-topic rate limit.",
	})); err != nil {
		return nil, err
	}
	if p.dropped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "status", Name: "dropped_total",
		Help: "Queued status messages discarded on queue overflow.",
	})); err != nil {
		return nil, err
	}
	if p.queueDepth, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "status", Name: "queue_depth",
		Help: "Status messages waiting for the next broker connection.",
	})); err != nil {
		return nil, err
	}
	if p.published, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "status", Name: "published_total",
		Help: "Status messages published to the broker.",
	})); err != nil {
		return nil, err
	}
	if p.publishErrors, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "status", Name: "publish_errors_total",
		Help: "Status messages the broker did not accept.",
	})); err != nil {
		return nil, err
	}
	if p.connectFailures, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "status", Name: "connect_failures_total",
		Help: "Broker connection attempts that failed.",
	})); err != nil {
		return nil, err
	}

	return p, nil
}

// register adds c to reg, returning the existing collector instead when an
// identical one is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// IncTelegramsReceived counts a received group telegram.
func (p *PrometheusCollector) IncTelegramsReceived() { p.telegrams.Inc() }

// IncChargeCommand counts a dispatched command ("start", "cancel", "duration").
func (p *PrometheusCollector) IncChargeCommand(kind string) {
	p.commands.WithLabelValues(kind).Inc()
}

// IncReconnect counts a scheduled reconnect ("connect_failed", "session_failed").
func (p *PrometheusCollector) IncReconnect(reason string) {
	p.reconnects.WithLabelValues(reason).Inc()
}

// SetKNXConnected records whether a knxd session is up.
func (p *PrometheusCollector) SetKNXConnected(connected bool) {
	if connected {
		p.knxConnected.Set(1)
		return
	}
	p.knxConnected.Set(0)
}

// IncStatusRateLimited counts a suppressed status update.
func (p *PrometheusCollector) IncStatusRateLimited() { p.rateLimited.Inc() }

// AddStatusDropped counts messages trimmed from the status queue.
func (p *PrometheusCollector) AddStatusDropped(count int) {
	if count <= 0 {
		return
	}
	p.dropped.Add(float64(count))
}

// SetStatusQueueDepth records the current status queue length.
func (p *PrometheusCollector) SetStatusQueueDepth(depth int) {
	p.queueDepth.Set(float64(depth))
}

// IncStatusPublished counts a message accepted by the broker.
func (p *PrometheusCollector) IncStatusPublished() { p.published.Inc() }

// IncStatusPublishErrors counts a message the broker did not accept.
func (p *PrometheusCollector) IncStatusPublishErrors() { p.publishErrors.Inc() }

// IncStatusConnectFailures counts a failed broker connection attempt.
func (p *PrometheusCollector) IncStatusConnectFailures() { p.connectFailures.Inc() }
