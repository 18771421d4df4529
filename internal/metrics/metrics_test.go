package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestCollectorExposesRegisteredMetrics(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.BytesUp(100)
	c.BytesDown(200)
	c.SaturationTrip()
	c.ProtocolViolation()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"vsock_shell_sessions_opened_total 1",
		"vsock_shell_bytes_received_total 100",
		"vsock_shell_bytes_sent_total 200",
		"vsock_shell_saturation_trips_total 1",
		"vsock_shell_protocol_violations_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q\nfull output:\n%s", want, body)
		}
	}
}

func TestSessionClosedDecrementsActiveGauge(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "vsock_shell_sessions_active 1") {
		t.Errorf("expected sessions_active gauge at 1 after one close, got:\n%s", rec.Body.String())
	}
}
