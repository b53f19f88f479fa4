package knx

import "fmt"

// Command kinds reported to metrics.
const (
	commandStart    = "start"
	commandCancel   = "cancel"
	commandDuration = "duration"
)

// HandleTelegram dispatches one received telegram to the charge controller.
//
// The rate address is matched before the duration address and only group
// writes are acted on. Decode failures are logged and dropped. A panic in
// the controller is recovered so the receive loop keeps running.
func (l *Listener) HandleTelegram(t Telegram) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("charge-now command handler panicked",
				"destination", t.Destination.String(),
				"panic", fmt.Sprint(r),
			)
		}
	}()

	l.metrics.IncTelegramsReceived()

	switch {
	case l.isCommand(t, l.rateAddr):
		l.handleRate(t)
	case l.isCommand(t, l.durationAddr):
		l.handleDuration(t)
	default:
		l.logger.Debug("ignoring telegram", "telegram", t.String())
	}
}

func (l *Listener) isCommand(t Telegram, addr GroupAddress) bool {
	return t.Destination == addr && t.IsWrite()
}

// handleRate applies a DPT 14 charge rate. Zero cancels the session; any
// other value starts one for the current default duration.
func (l *Listener) handleRate(t Telegram) {
	value, err := DecodeDPT14(t.Data)
	if err != nil {
		l.logger.Warn("invalid charge-now rate telegram",
			"source", t.Source,
			"data", fmt.Sprintf("%X", t.Data),
			"error", err,
		)
		return
	}

	amps := int(value)
	if amps == 0 {
		l.logger.Info("charge-now cancelled", "source", t.Source)
		l.host.ResetChargeNowAmps()
		l.metrics.IncChargeCommand(commandCancel)
		return
	}

	duration := l.ChargeNowDuration()
	l.logger.Info("charge-now requested",
		"source", t.Source,
		"amps", amps,
		"duration", duration.String(),
	)
	l.host.SetChargeNowTimeEnd(duration)
	l.host.SetChargeNowAmps(amps)
	l.metrics.IncChargeCommand(commandStart)
}

// handleDuration applies a DPT 7 duration in seconds. Zero cancels the
// session; any other value becomes the default for later rate commands.
func (l *Listener) handleDuration(t Telegram) {
	seconds, err := DecodeDPT7(t.Data)
	if err != nil {
		l.logger.Warn("invalid charge-now duration telegram",
			"source", t.Source,
			"data", fmt.Sprintf("%X", t.Data),
			"error", err,
		)
		return
	}

	if seconds == 0 {
		l.logger.Info("charge-now cancelled by zero duration", "source", t.Source)
		l.host.ResetChargeNowAmps()
		l.metrics.IncChargeCommand(commandCancel)
		return
	}

	l.duration.Store(int64(seconds))
	l.logger.Info("charge-now duration updated",
		"source", t.Source,
		"seconds", seconds,
	)
	l.metrics.IncChargeCommand(commandDuration)
}
