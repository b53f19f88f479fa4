package knx

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nerrad567/evbridge/internal/metrics"
)

func TestHandleTelegram(t *testing.T) {
	otherGA := GroupAddress{Main: 2, Middle: 0, Sub: 1}

	tests := []struct {
		name         string
		telegram     Telegram
		wantCalls    []string
		wantDuration time.Duration
	}{
		{
			name:         "rate starts session with default duration",
			telegram:     NewWriteTelegram(testRateGA, EncodeDPT14(16)),
			wantCalls:    []string{"timeEnd:1h0m0s", "amps:16"},
			wantDuration: time.Hour,
		},
		{
			name:         "fractional rate is truncated",
			telegram:     NewWriteTelegram(testRateGA, EncodeDPT14(10.9)),
			wantCalls:    []string{"timeEnd:1h0m0s", "amps:10"},
			wantDuration: time.Hour,
		},
		{
			name:         "zero rate cancels",
			telegram:     NewWriteTelegram(testRateGA, EncodeDPT14(0)),
			wantCalls:    []string{"reset"},
			wantDuration: time.Hour,
		},
		{
			name:         "rate below one amp cancels",
			telegram:     NewWriteTelegram(testRateGA, EncodeDPT14(0.9)),
			wantCalls:    []string{"reset"},
			wantDuration: time.Hour,
		},
		{
			name:         "negative rate is passed through",
			telegram:     NewWriteTelegram(testRateGA, EncodeDPT14(-3.7)),
			wantCalls:    []string{"timeEnd:1h0m0s", "amps:-3"},
			wantDuration: time.Hour,
		},
		{
			name:         "duration updates default only",
			telegram:     NewWriteTelegram(testDurationGA, EncodeDPT7(900)),
			wantDuration: 15 * time.Minute,
		},
		{
			name:         "zero duration cancels",
			telegram:     NewWriteTelegram(testDurationGA, EncodeDPT7(0)),
			wantCalls:    []string{"reset"},
			wantDuration: time.Hour,
		},
		{
			name:         "rate read request ignored",
			telegram:     Telegram{Destination: testRateGA, APCI: APCIRead},
			wantDuration: time.Hour,
		},
		{
			name:         "rate response ignored",
			telegram:     Telegram{Destination: testRateGA, APCI: APCIResponse, Data: EncodeDPT14(16)},
			wantDuration: time.Hour,
		},
		{
			name:         "duration response ignored",
			telegram:     Telegram{Destination: testDurationGA, APCI: APCIResponse, Data: EncodeDPT7(60)},
			wantDuration: time.Hour,
		},
		{
			name:         "unrelated address ignored",
			telegram:     NewWriteTelegram(otherGA, EncodeDPT14(16)),
			wantDuration: time.Hour,
		},
		{
			name:         "short rate payload ignored",
			telegram:     NewWriteTelegram(testRateGA, []byte{0x01}),
			wantDuration: time.Hour,
		},
		{
			name:         "non-finite rate ignored",
			telegram:     NewWriteTelegram(testRateGA, EncodeDPT14(float32(math.Inf(1)))),
			wantDuration: time.Hour,
		},
		{
			name:         "short duration payload ignored",
			telegram:     NewWriteTelegram(testDurationGA, []byte{0x01}),
			wantDuration: time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := &recordingController{}
			l := newTestListener(t, host)

			l.HandleTelegram(tt.telegram)

			assert.Equal(t, tt.wantCalls, host.Calls())
			assert.Equal(t, tt.wantDuration, l.ChargeNowDuration())
		})
	}
}

func TestHandleTelegramDurationAppliesToNextRate(t *testing.T) {
	host := &recordingController{}
	l := newTestListener(t, host)

	l.HandleTelegram(NewWriteTelegram(testDurationGA, EncodeDPT7(1800)))
	l.HandleTelegram(NewWriteTelegram(testRateGA, EncodeDPT14(32)))
	l.HandleTelegram(NewWriteTelegram(testDurationGA, EncodeDPT7(0)))
	l.HandleTelegram(NewWriteTelegram(testRateGA, EncodeDPT14(6)))

	assert.Equal(t, []string{
		"timeEnd:30m0s", "amps:32",
		"reset",
		"timeEnd:30m0s", "amps:6",
	}, host.Calls())
}

func TestHandleTelegramRecoversPanic(t *testing.T) {
	host := &recordingController{panicMsg: "controller exploded"}
	l := newTestListener(t, host)

	assert.NotPanics(t, func() {
		l.HandleTelegram(NewWriteTelegram(testRateGA, EncodeDPT14(16)))
	})

	host.mu.Lock()
	host.panicMsg = ""
	host.mu.Unlock()

	l.HandleTelegram(NewWriteTelegram(testRateGA, EncodeDPT14(0)))
	assert.Equal(t, []string{"reset"}, host.Calls())
}

// commandCounter records command kinds and telegram counts.
type commandCounter struct {
	metrics.Collector
	mu        sync.Mutex
	telegrams int
	kinds     []string
}

func (c *commandCounter) IncTelegramsReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.telegrams++
}

func (c *commandCounter) IncChargeCommand(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
}

func TestHandleTelegramReportsCommands(t *testing.T) {
	counter := &commandCounter{Collector: metrics.Noop()}
	l := newTestListener(t, &recordingController{}, WithMetrics(counter))

	l.HandleTelegram(NewWriteTelegram(testRateGA, EncodeDPT14(16)))
	l.HandleTelegram(NewWriteTelegram(testDurationGA, EncodeDPT7(60)))
	l.HandleTelegram(NewWriteTelegram(testRateGA, EncodeDPT14(0)))
	l.HandleTelegram(NewWriteTelegram(GroupAddress{Main: 3}, EncodeDPT14(16)))

	assert.Equal(t, 4, counter.telegrams)
	assert.Equal(t, []string{commandStart, commandDuration, commandCancel}, counter.kinds)
}
