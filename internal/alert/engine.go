// Package alert decides which threat detections become alerts and tracks
// the rolling alert history and per-camera threat level.
package alert

import (
	"errors"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/intelligence-lair/threatwatch/internal/detect"
	"github.com/intelligence-lair/threatwatch/internal/logger"
)

// ErrNotFound is returned when an alert identifier does not exist.
var ErrNotFound = errors.New("alert: not found")

// Alert records a threat detection that crossed the confidence threshold
// and was not suppressed by cooldown.
type Alert struct {
	ID           uint64    `json:"id"`
	CameraID     string    `json:"camera_id"`
	CameraName   string    `json:"camera_name"`
	ThreatType   string    `json:"threat_type"`
	Confidence   float64   `json:"confidence"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// cooldownKey scopes the cooldown window to one threat class on one camera.
type cooldownKey struct {
	cameraID string
	class    string
}

// Engine is the single owner of alert state. Every camera pipeline calls
// ProcessCycle; all access is serialized behind one mutex.
type Engine struct {
	classifier *detect.Classifier
	cooldown   time.Duration
	capacity   int
	thresholds LevelThresholds

	mu        sync.Mutex
	nextID    uint64
	history   []Alert // most recent first
	lastAlert map[cooldownKey]time.Time
}

// NewEngine creates an alert engine with the given cooldown period, history
// capacity and level thresholds.
func NewEngine(classifier *detect.Classifier, cooldown time.Duration, capacity int, thresholds LevelThresholds) *Engine {
	return &Engine{
		classifier: classifier,
		cooldown:   cooldown,
		capacity:   capacity,
		thresholds: thresholds,
		lastAlert:  make(map[cooldownKey]time.Time),
	}
}

// ProcessCycle consumes one camera's detections for one cycle. It returns
// the alerts emitted this cycle (in detection order) and the instantaneous
// threat level. Suppressed detections leave both the history and the
// cooldown window untouched.
func (e *Engine) ProcessCycle(cameraID, cameraName string, detections []detect.Detection, now time.Time) ([]Alert, Level) {
	threats := lo.Filter(detections, func(d detect.Detection, _ int) bool {
		return e.classifier.Classify(d.Label) == detect.CategoryThreat
	})

	level := e.thresholds.levelFor(len(threats), maxConfidence(threats))

	if len(threats) == 0 {
		return nil, level
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var emitted []Alert
	for _, threat := range threats {
		key := cooldownKey{cameraID: cameraID, class: threat.Label}
		if last, ok := e.lastAlert[key]; ok && now.Sub(last) < e.cooldown {
			logger.Debug("AlertEngine", "[%s] %s suppressed by cooldown", cameraID, threat.Label)
			continue
		}

		e.nextID++
		a := Alert{
			ID:         e.nextID,
			CameraID:   cameraID,
			CameraName: cameraName,
			ThreatType: threat.Label,
			Confidence: threat.Confidence,
			Timestamp:  now,
		}
		// Only an emission refreshes the window; cooldown is measured
		// from the last alert, not the last detection.
		e.lastAlert[key] = now
		e.history = append([]Alert{a}, e.history...)
		if len(e.history) > e.capacity {
			e.history = e.history[:e.capacity]
		}
		emitted = append(emitted, a)
		logger.Warn("AlertEngine", "ALERT #%d: %s on %s (confidence %.2f)", a.ID, a.ThreatType, cameraName, a.Confidence)
	}

	return emitted, level
}

// Acknowledge marks an alert as acknowledged. Acknowledging twice is a
// no-op; an unknown identifier reports ErrNotFound.
func (e *Engine) Acknowledge(id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.history {
		if e.history[i].ID == id {
			e.history[i].Acknowledged = true
			return nil
		}
	}
	return ErrNotFound
}

// Recent returns up to limit alerts, most recent first.
func (e *Engine) Recent(limit int) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit <= 0 || limit > len(e.history) {
		limit = len(e.history)
	}
	out := make([]Alert, limit)
	copy(out, e.history[:limit])
	return out
}

// UnacknowledgedCount returns the number of alerts not yet acknowledged.
func (e *Engine) UnacknowledgedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return lo.CountBy(e.history, func(a Alert) bool { return !a.Acknowledged })
}

func maxConfidence(detections []detect.Detection) float64 {
	max := 0.0
	for _, d := range detections {
		if d.Confidence > max {
			max = d.Confidence
		}
	}
	return max
}
