// Package metrics exposes a small set of Prometheus counters/gauges over
// the server's session lifecycle, loosely grounded on
// runZeroInc-sockstats/pkg/exporter/exporter.go: a struct holding plain
// counters and a gauge that are registered on a private registry rather
// than as promauto globals. It does not implement prometheus.Collector
// (no Describe/Collect pair).
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector tracks per-session protocol counters for one server process.
type Collector struct {
	mu sync.Mutex

	sessionsOpened    prometheus.Counter
	sessionsActive    prometheus.Gauge
	bytesUp           prometheus.Counter
	bytesDown         prometheus.Counter
	saturationTrips   prometheus.Counter
	protocolViolation prometheus.Counter
}

// New constructs a Collector with all metrics in the vsock_shell
// namespace. They are registered when Registry is called.
func New() *Collector {
	return &Collector{
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsock_shell",
			Name:      "sessions_opened_total",
			Help:      "Sessions accepted since process start.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vsock_shell",
			Name:      "sessions_active",
			Help:      "Sessions currently open.",
		}),
		bytesUp: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsock_shell",
			Name:      "bytes_received_total",
			Help:      "Payload bytes received from clients (CLIENT_DATA + FILE_DATA upload).",
		}),
		bytesDown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsock_shell",
			Name:      "bytes_sent_total",
			Help:      "Payload bytes sent to clients (PTY_DATA + FILE_DATA download).",
		}),
		saturationTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsock_shell",
			Name:      "saturation_trips_total",
			Help:      "Times a download producer found its session's TX ring saturated and yielded.",
		}),
		protocolViolation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsock_shell",
			Name:      "protocol_violations_total",
			Help:      "Sessions destroyed due to a protocol error.",
		}),
	}
}

// Registry returns a prometheus.Registerer with all of c's metrics
// registered, ready to be mounted behind promhttp.
func (c *Collector) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c.sessionsOpened, c.sessionsActive, c.bytesUp, c.bytesDown, c.saturationTrips, c.protocolViolation)
	return reg
}

func (c *Collector) SessionOpened()      { c.sessionsOpened.Inc(); c.sessionsActive.Inc() }
func (c *Collector) SessionClosed()      { c.sessionsActive.Dec() }
func (c *Collector) BytesUp(n int)       { c.bytesUp.Add(float64(n)) }
func (c *Collector) BytesDown(n int)     { c.bytesDown.Add(float64(n)) }
func (c *Collector) SaturationTrip()     { c.saturationTrips.Inc() }
func (c *Collector) ProtocolViolation()  { c.protocolViolation.Inc() }

// Serve starts an HTTP server exposing /metrics on addr. It blocks until
// the server stops; callers run it in a goroutine.
func (c *Collector) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
