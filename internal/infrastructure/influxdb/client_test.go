package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/evbridge/internal/infrastructure/config"
)

// fakeInflux answers /ping and records line protocol sent to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu          sync.Mutex
	lines       []string
	query       string
	auth        string
	writeStatus int
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()

	f := &fakeInflux{writeStatus: http.StatusNoContent}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/ping"):
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/api/v2/write":
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
		f.mu.Lock()
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		f.query = r.URL.RawQuery
		f.auth = r.Header.Get("Authorization")
		status := f.writeStatus
		f.mu.Unlock()

		if status != http.StatusNoContent {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"code":"invalid","message":"bad point"}`)
			return
		}
		w.WriteHeader(status)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeInflux) testConfig() config.InfluxDBStatusConfig {
	return config.InfluxDBStatusConfig{
		Enabled:       true,
		URL:           f.URL,
		Token:         "evbridge-token",
		Org:           "home",
		Bucket:        "charger",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connectTest(t *testing.T, f *fakeInflux) *Client {
	t.Helper()

	c, err := Connect(f.testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup

	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxDBStatusConfig{Enabled: false})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestConnectUnreachable(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.testConfig()
	f.Close()

	_, err := Connect(cfg)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestPublishWritesStatusPoints(t *testing.T) {
	f := newFakeInflux(t)
	c := connectTest(t, f)

	assert.True(t, c.Publish("garage", "chargeNowAmps", 16))
	assert.True(t, c.Publish("garage", "chargeNowTimeEnd", time.Unix(1700003600, 0)))
	assert.True(t, c.Publish("garage", "state", "charging"))
	c.Flush()

	lines := f.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "charger_status,device_id=garage chargeNowAmps=16i 1700000000000000000", lines[0])
	assert.Equal(t, "charger_status,device_id=garage chargeNowTimeEnd=1700003600i 1700000000000000000", lines[1])
	assert.Equal(t, `charger_status,device_id=garage state="charging" 1700000000000000000`, lines[2])

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Contains(t, f.query, "bucket=charger")
	assert.Contains(t, f.query, "org=home")
	assert.Equal(t, "Token evbridge-token", f.auth)
}

func TestPublishAfterClose(t *testing.T) {
	f := newFakeInflux(t)
	c := connectTest(t, f)

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
	assert.False(t, c.Publish("garage", "chargeNowAmps", 16))
	assert.ErrorIs(t, c.HealthCheck(context.Background()), ErrNotConnected)

	c.Flush()
	require.NoError(t, c.Close())
}

func TestPublishRejectsNil(t *testing.T) {
	f := newFakeInflux(t)
	c := connectTest(t, f)

	assert.False(t, c.Publish("garage", "chargeNowAmps", nil))
}

func TestHealthCheck(t *testing.T) {
	f := newFakeInflux(t)
	c := connectTest(t, f)

	assert.NoError(t, c.HealthCheck(context.Background()))
}

func TestWriteErrorsReachCallback(t *testing.T) {
	f := newFakeInflux(t)
	f.writeStatus = http.StatusBadRequest
	c := connectTest(t, f)

	errs := make(chan error, 4)
	c.SetOnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	c.Publish("garage", "chargeNowAmps", 16)
	c.Flush()

	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, ErrWriteFailed))
	case <-time.After(5 * time.Second):
		t.Fatal("write error was not reported")
	}
}

type phase int

func (phase) String() string { return "charging" }

func TestFieldValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
		ok    bool
	}{
		{"nil", nil, nil, false},
		{"int", 16, int64(16), true},
		{"int64", int64(-1), int64(-1), true},
		{"uint16", uint16(3600), uint64(3600), true},
		{"float32", float32(1.5), float64(1.5), true},
		{"float64", 6.25, 6.25, true},
		{"bool", true, true, true},
		{"string", "idle", "idle", true},
		{"bytes", []byte("raw"), "raw", true},
		{"time", time.Unix(1700000000, 0), int64(1700000000), true},
		{"duration", 90 * time.Second, float64(90), true},
		{"stringer", phase(1), "charging", true},
		{"other", []int{1, 2}, "[1 2]", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fieldValue(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
