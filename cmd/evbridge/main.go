// evbridge connects a vehicle charger to a KNX building-automation bus and
// an MQTT telemetry bus.
//
// KNX group telegrams start and cancel charge-now sessions; the charger
// status is published to MQTT (and optionally InfluxDB) on every change and
// periodically.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/evbridge/internal/audit"
	"github.com/nerrad567/evbridge/internal/bridges/knx"
	"github.com/nerrad567/evbridge/internal/charger"
	"github.com/nerrad567/evbridge/internal/infrastructure/config"
	"github.com/nerrad567/evbridge/internal/infrastructure/database"
	"github.com/nerrad567/evbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/evbridge/internal/infrastructure/logging"
	"github.com/nerrad567/evbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/evbridge/internal/knxd"
	"github.com/nerrad567/evbridge/internal/metrics"
	"github.com/nerrad567/evbridge/internal/status/mqttstatus"
	"github.com/nerrad567/evbridge/internal/validation"
	"github.com/nerrad567/evbridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/evbridge.yaml"

	// Module namespaces and names for status outputs.
	statusNamespace = "status"
	statusMQTT      = "mqtt"
	statusInfluxDB  = "influxdb"

	shutdownTimeout    = 5 * time.Second
	healthCheckTimeout = 3 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the bridges together and blocks until ctx is cancelled.
//
// Returns:
//   - error: nil on clean shutdown, or the startup failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup sequence
	log := logging.Default()
	log.Info("starting evbridge", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "device_id", cfg.Charger.DeviceID)

	// Metrics
	collector := metrics.Noop()
	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		prom, promErr := metrics.NewPrometheusCollector(registry)
		if promErr != nil {
			return fmt.Errorf("registering metrics: %w", promErr)
		}
		collector = prom
	}

	controller := charger.New(charger.Config{
		DeviceID:       cfg.Charger.DeviceID,
		StatusInterval: cfg.Charger.StatusIntervalDuration(),
	}, charger.WithLogger(log.Component("charger")))

	var host knx.Host = controller

	// Command audit database (optional)
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("audit database ready", "path", db.Path())

		host = audit.NewRecorder(controller, audit.NewSQLiteRepository(db.DB), knx.ModuleName, log.Component("audit"))
	}

	// MQTT status output
	if cfg.Status.MQTT.Enabled {
		publisher := mqttstatus.New(mqttstatus.Config{
			TopicPrefix:   cfg.Status.MQTT.TopicPrefix,
			RateLimit:     cfg.Status.MQTT.RateLimit(),
			QueueCapacity: cfg.Status.MQTT.QueueCapacity,
		},
			mqttstatus.SessionDialer(mqtt.NewDialer(cfg.Status.MQTT)),
			mqttstatus.WithLogger(log.Component("mqttstatus")),
			mqttstatus.WithMetrics(collector),
		)
		defer publisher.Close()

		controller.AddOutput(publisher)
		log.Info("MQTT status output enabled",
			"broker", fmt.Sprintf("%s:%d", cfg.Status.MQTT.BrokerIP, cfg.Status.MQTT.BrokerPort),
			"topic_prefix", cfg.Status.MQTT.TopicPrefix,
		)
	} else {
		host.ReleaseModule(statusNamespace, statusMQTT)
	}

	// InfluxDB status output (optional)
	var influxClient *influxdb.Client
	if cfg.Status.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.Status.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()

		influxLog := log.Component("influxdb")
		influxClient.SetOnError(func(err error) {
			influxLog.Error("InfluxDB write error", "error", err)
		})

		controller.AddOutput(influxClient)
		log.Info("InfluxDB status output enabled", "url", cfg.Status.InfluxDB.URL, "bucket", cfg.Status.InfluxDB.Bucket)
	} else {
		host.ReleaseModule(statusNamespace, statusInfluxDB)
	}

	// Metrics and health endpoint
	if registry != nil {
		stop, serveErr := serveMetrics(cfg.Metrics.Listen, registry, db, influxClient, log)
		if serveErr != nil {
			return serveErr
		}
		defer stop()
	}

	// Managed knxd (optional)
	knxdManager, err := startKNXD(ctx, cfg.Control.KNX, log.Component("knxd"))
	if err != nil {
		return err
	}
	if knxdManager != nil {
		defer func() {
			if stopErr := knxdManager.Stop(); stopErr != nil {
				log.Error("error stopping knxd", "error", stopErr)
			}
		}()
	}

	// KNX control
	listener, err := knx.StartControl(ctx, knxControlConfig(cfg.Control.KNX), host,
		knx.WithLogger(log.Component("knx")),
		knx.WithMetrics(collector),
	)
	if err != nil {
		return fmt.Errorf("starting KNX control: %w", err)
	}
	if listener != nil {
		defer listener.Stop()
		log.Info("KNX control enabled", "endpoint", listener.Endpoint().String())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		controller.Run(ctx)
	}()

	log.Info("evbridge running", "released_modules", controller.ReleasedModules())
	<-ctx.Done()

	log.Info("shutting down")
	wg.Wait()
	return nil
}

// knxControlConfig converts the control.knx section for the KNX bridge.
func knxControlConfig(c config.KNXControlConfig) knx.ControlConfig {
	return knx.ControlConfig{
		Enabled:                  c.Enabled,
		GatewayIP:                c.GatewayIP,
		GatewayPort:              c.GatewayPort,
		ChargeNowRateAddress:     c.ChargeNowRateAddress,
		ChargeNowDurationAddress: c.ChargeNowDurationAddress,
		ChargeNowDurationDefault: c.DefaultDuration(),
	}
}

// startKNXD launches knxd on the control gateway port when control.knx is
// enabled and knxd is managed. It returns nil otherwise.
func startKNXD(ctx context.Context, c config.KNXControlConfig, log *logging.Logger) (*knxd.Manager, error) {
	if !c.Enabled || !c.KNXD.Managed {
		return nil, nil //nolint:nilnil // Not managed
	}

	endpoint, err := validation.ParseEndpoint(c.GatewayIP, c.GatewayPort)
	if err != nil {
		return nil, fmt.Errorf("managed knxd: %w", err)
	}
	if !endpoint.Host.IsLoopback() {
		log.Warn("managed knxd listens locally but the gateway is not a loopback address",
			"gateway", endpoint.String())
	}

	manager, err := knxd.NewManager(knxdConfig(c.KNXD, endpoint.Port), log)
	if err != nil {
		return nil, fmt.Errorf("managed knxd: %w", err)
	}
	if err := manager.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting knxd: %w", err)
	}
	return manager, nil
}

// knxdConfig converts the control.knx.knxd section for the knxd manager.
func knxdConfig(c config.KNXDConfig, port uint16) knxd.Config {
	return knxd.Config{
		Binary:          c.Binary,
		PhysicalAddress: c.PhysicalAddress,
		ClientAddresses: c.ClientAddresses,
		TCPPort:         port,
		GroupCache:      c.GroupCache,
		Backend: knxd.Backend{
			Type:             knxd.BackendType(c.Backend.Type),
			Host:             c.Backend.Host,
			Port:             c.Backend.Port,
			MulticastAddress: c.Backend.MulticastAddress,
			Interface:        c.Backend.Interface,
			USBDevice:        c.Backend.USBDevice,
		},
		RestartDelay: c.RestartDelayDuration(),
		MaxRestarts:  c.MaxRestarts,
	}
}

// getConfigPath returns the config path from EVBRIDGE_CONFIG or the default.
func getConfigPath() string {
	if path := os.Getenv("EVBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// serveMetrics exposes /metrics and /healthz on addr. The returned function
// shuts the server down.
func serveMetrics(addr string, registry *prometheus.Registry, db *database.DB, influxClient *influxdb.Client, log *logging.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := healthCheck(ctx, db, influxClient); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	log.Info("metrics endpoint listening", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("metrics server shutdown", "error", err)
		}
	}, nil
}

// healthCheck verifies the optional infrastructure is reachable.
//
// Returns:
//   - error: First failure, or nil if all enabled parts are healthy
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
