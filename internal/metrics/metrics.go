package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame pipeline counters
	FramesAcquired  atomic.Uint64
	FramesDropped   atomic.Uint64 // Overwritten in the hand-off slot before delivery
	FramesDelivered atomic.Uint64
	FallbackFrames  atomic.Uint64

	// Detection counters
	DetectionCycles   atomic.Uint64
	DetectionFailures atomic.Uint64
	ObjectsDetected   atomic.Uint64

	// Alert counters
	AlertsEmitted    atomic.Uint64
	AlertsSuppressed atomic.Uint64

	// Source state
	CamerasConnected atomic.Uint64

	// Client tracking
	StreamClients atomic.Uint64
	EventClients  atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"threatwatch_frames_acquired_total", "Total frames acquired from camera sources", m.FramesAcquired.Load},
		{"threatwatch_frames_dropped_total", "Total frames overwritten before delivery", m.FramesDropped.Load},
		{"threatwatch_frames_delivered_total", "Total frames delivered to clients", m.FramesDelivered.Load},
		{"threatwatch_fallback_frames_total", "Total synthetic fallback frames substituted", m.FallbackFrames.Load},
		{"threatwatch_detection_cycles_total", "Total completed detection cycles", m.DetectionCycles.Load},
		{"threatwatch_detection_failures_total", "Total detector failures", m.DetectionFailures.Load},
		{"threatwatch_objects_detected_total", "Total objects detected across all cycles", m.ObjectsDetected.Load},
		{"threatwatch_alerts_emitted_total", "Total alerts emitted", m.AlertsEmitted.Load},
		{"threatwatch_alerts_suppressed_total", "Total threat detections suppressed by cooldown", m.AlertsSuppressed.Load},
		{"threatwatch_cameras_connected", "Number of cameras currently connected", m.CamerasConnected.Load},
		{"threatwatch_stream_clients", "Number of connected MJPEG stream clients", m.StreamClients.Load},
		{"threatwatch_event_clients", "Number of connected WebSocket/SSE event clients", m.EventClients.Load},
	}
	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
