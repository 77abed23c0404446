package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/intelligence-lair/threatwatch/internal/logger"
	"github.com/intelligence-lair/threatwatch/internal/stream"
)

func writeSSE(w http.ResponseWriter, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// streamMJPEGFromChannel streams annotated frames as multipart MJPEG until
// the client disconnects or the channel closes.
func streamMJPEGFromChannel(w http.ResponseWriter, r *http.Request, frameCh <-chan *stream.Cycle) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	for {
		var cycle *stream.Cycle
		select {
		case <-r.Context().Done():
			return
		case c, ok := <-frameCh:
			if !ok {
				// Channel closed, client should disconnect
				return
			}
			cycle = c
		}
		if cycle == nil || len(cycle.JPEG) == 0 {
			continue
		}

		if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
			logger.Debug("MJPEG", "Client disconnected during write: %v", err)
			return
		}
		if _, err := w.Write(cycle.JPEG); err != nil {
			logger.Debug("MJPEG", "Client disconnected during frame write: %v", err)
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			logger.Debug("MJPEG", "Client disconnected during delimiter write: %v", err)
			return
		}
		flusher.Flush()
	}
}

// handleStatusStream pushes camera statuses over SSE at a fixed cadence.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.metrics.EventClients.Add(1)
	defer s.metrics.EventClients.Add(^uint64(0))

	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		payload := map[string]any{
			"cameras":        s.supervisor.Statuses(),
			"unacknowledged": s.engine.UnacknowledgedCount(),
			"timestamp":      float64(time.Now().UnixMilli()) / 1000.0,
		}
		if err := writeSSE(w, payload); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		case <-keepalive.C:
			// Comment line keeps proxies from timing the stream out.
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				logger.Debug("SSE", "Client disconnected during keepalive: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
