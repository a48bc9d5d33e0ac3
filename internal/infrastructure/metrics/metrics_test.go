package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// value returns the value of the series name{labels} from reg.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	series:
		for _, m := range fam.GetMetric() {
			got := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue series
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue(), true
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func TestCollector_StoreObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewWithRegistry(reg)

	c.SignalPublished("openhab")
	c.SignalPublished("openhab")
	c.SignalPublished("homeassistant")
	c.NotificationDropped()
	c.SubscribersChanged(3)

	if v, _ := value(t, reg, "signalhub_signals_published_total", map[string]string{"source": "openhab"}); v != 2 {
		t.Errorf("published{openhab} = %v, want 2", v)
	}
	if v, _ := value(t, reg, "signalhub_signals_published_total", map[string]string{"source": "homeassistant"}); v != 1 {
		t.Errorf("published{homeassistant} = %v, want 1", v)
	}
	if v, _ := value(t, reg, "signalhub_notifications_dropped_total", nil); v != 1 {
		t.Errorf("dropped = %v, want 1", v)
	}
	if v, _ := value(t, reg, "signalhub_subscribers", nil); v != 3 {
		t.Errorf("subscribers = %v, want 3", v)
	}
}

func TestCollector_AdapterPhaseClearsPrevious(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewWithRegistry(reg)

	c.AdapterPhase("openhab", "loading")
	c.AdapterPhase("openhab", "connected")

	if v, _ := value(t, reg, "signalhub_adapter_phase", map[string]string{"adapter": "openhab", "phase": "loading"}); v != 0 {
		t.Errorf("phase{loading} = %v, want 0", v)
	}
	if v, _ := value(t, reg, "signalhub_adapter_phase", map[string]string{"adapter": "openhab", "phase": "connected"}); v != 1 {
		t.Errorf("phase{connected} = %v, want 1", v)
	}
}

func TestCollector_AdapterRetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewWithRegistry(reg)

	c.AdapterRetry("openhab", 5*time.Second)
	c.AdapterRetry("openhab", 10*time.Second)

	if v, _ := value(t, reg, "signalhub_adapter_retries_total", map[string]string{"adapter": "openhab"}); v != 2 {
		t.Errorf("retries = %v, want 2", v)
	}
	if v, _ := value(t, reg, "signalhub_adapter_retry_delay_seconds", map[string]string{"adapter": "openhab"}); v != 10 {
		t.Errorf("retry delay = %v, want 10", v)
	}
}

func TestCollector_SinkWrite(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewWithRegistry(reg)

	c.SinkWrite("influxdb", nil)
	c.SinkWrite("influxdb", errors.New("boom"))

	if v, _ := value(t, reg, "signalhub_sink_writes_total", map[string]string{"sink": "influxdb", "result": "ok"}); v != 1 {
		t.Errorf("sink ok = %v, want 1", v)
	}
	if v, _ := value(t, reg, "signalhub_sink_writes_total", map[string]string{"sink": "influxdb", "result": "error"}); v != 1 {
		t.Errorf("sink error = %v, want 1", v)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.SignalPublished("openhab")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `signalhub_signals_published_total{source="openhab"} 1`) {
		t.Errorf("metrics output missing published counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing Go runtime collector")
	}
}
