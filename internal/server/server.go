// Package server exposes the dashboard, the REST API and the real-time
// frame and alert channels over HTTP.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/intelligence-lair/threatwatch/internal/alert"
	"github.com/intelligence-lair/threatwatch/internal/detect"
	"github.com/intelligence-lair/threatwatch/internal/metrics"
	"github.com/intelligence-lair/threatwatch/internal/stream"
	"github.com/intelligence-lair/threatwatch/pkg/types"
)

const defaultAlertLimit = 20

// Config holds the presentation-layer knobs.
type Config struct {
	StatusInterval time.Duration // SSE status push cadence
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		StatusInterval: 2 * time.Second,
	}
}

// Server wires the pipeline supervisor and alert engine to HTTP clients.
type Server struct {
	cfg        Config
	supervisor *stream.Supervisor
	engine     *alert.Engine
	classifier *detect.Classifier
	metrics    *metrics.Metrics
}

// NewServer returns a configured dashboard server.
func NewServer(cfg Config, sup *stream.Supervisor, engine *alert.Engine, classifier *detect.Classifier, m *metrics.Metrics) *Server {
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = DefaultConfig().StatusInterval
	}
	return &Server{
		cfg:        cfg,
		supervisor: sup,
		engine:     engine,
		classifier: classifier,
		metrics:    m,
	}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stream/", s.handleStream)
	mux.HandleFunc("/api/cameras", s.handleCameras)
	mux.HandleFunc("/api/alerts", s.handleAlerts)
	mux.HandleFunc("/api/alerts/", s.handleAcknowledge)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// handleStream serves one camera's annotated feed as MJPEG.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	cameraID := strings.TrimPrefix(r.URL.Path, "/stream/")
	if cameraID == "" || strings.Contains(cameraID, "/") {
		http.NotFound(w, r)
		return
	}

	pipeline := s.supervisor.Pipeline(cameraID)
	if pipeline == nil {
		writeJSONWithStatus(w, map[string]any{"error": "unknown camera"}, http.StatusNotFound)
		return
	}

	id, frameCh := pipeline.SubscribeFrames()
	defer pipeline.UnsubscribeFrames(id)

	s.metrics.StreamClients.Add(1)
	defer s.metrics.StreamClients.Add(^uint64(0))

	streamMJPEGFromChannel(w, r, frameCh)
}

func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"cameras":   s.supervisor.Statuses(),
		"timestamp": float64(time.Now().UnixMilli()) / 1000.0,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONWithStatus(w, map[string]any{"error": "invalid limit"}, http.StatusBadRequest)
			return
		}
		limit = n
	}

	alerts := s.engine.Recent(limit)
	events := make([]types.AlertEvent, 0, len(alerts))
	for _, a := range alerts {
		events = append(events, toAlertEvent(a))
	}

	writeJSON(w, map[string]any{
		"alerts":         events,
		"unacknowledged": s.engine.UnacknowledgedCount(),
	})
}

// handleAcknowledge handles POST /api/alerts/<id>/acknowledge.
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	idStr, action, found := strings.Cut(rest, "/")
	if !found || action != "acknowledge" {
		http.NotFound(w, r)
		return
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "invalid alert id"}, http.StatusBadRequest)
		return
	}

	if err := s.engine.Acknowledge(id); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "alert not found"}, http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "ok",
		"timestamp": float64(time.Now().Unix()),
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
