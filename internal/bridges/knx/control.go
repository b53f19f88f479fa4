package knx

import (
	"context"
	"time"
)

// Module identity used when the control module is disabled.
const (
	ModuleNamespace = "control"
	ModuleName      = "knx"
)

// Host is the controller the KNX control module is attached to.
type Host interface {
	ChargeController

	// ReleaseModule unloads a module the host had loaded.
	ReleaseModule(namespace, name string)
}

// ControlConfig is the control.knx configuration section.
type ControlConfig struct {
	Enabled                  bool
	GatewayIP                string
	GatewayPort              any
	ChargeNowRateAddress     string
	ChargeNowDurationAddress string
	ChargeNowDurationDefault time.Duration
}

// StartControl creates and starts the KNX control module.
//
// When the module is disabled it releases itself from the host and returns
// (nil, nil). A configuration error is returned unchanged and is fatal.
// Otherwise the returned listener is running and must be stopped by the
// caller.
func StartControl(ctx context.Context, cfg ControlConfig, host Host, opts ...ListenerOption) (*Listener, error) {
	if !cfg.Enabled {
		host.ReleaseModule(ModuleNamespace, ModuleName)
		return nil, nil
	}

	l, err := NewListener(ListenerConfig{
		GatewayIP:       cfg.GatewayIP,
		GatewayPort:     cfg.GatewayPort,
		RateAddress:     cfg.ChargeNowRateAddress,
		DurationAddress: cfg.ChargeNowDurationAddress,
		DefaultDuration: cfg.ChargeNowDurationDefault,
	}, host, opts...)
	if err != nil {
		return nil, err
	}

	l.Start(ctx)
	return l, nil
}
