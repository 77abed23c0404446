// Package stream runs the per-camera acquisition and delivery loops and
// fans annotated frames and alerts out to connected clients.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/intelligence-lair/threatwatch/internal/alert"
	"github.com/intelligence-lair/threatwatch/internal/camera"
	"github.com/intelligence-lair/threatwatch/internal/detect"
	"github.com/intelligence-lair/threatwatch/internal/logger"
	"github.com/intelligence-lair/threatwatch/internal/metrics"
	"github.com/intelligence-lair/threatwatch/pkg/types"
)

// After this many consecutive detector failures the camera is reported
// degraded until a cycle succeeds again.
const degradeAfterFailures = 3

// Cycle is the output of one detection cycle, ready for delivery.
type Cycle struct {
	CameraID    string
	JPEG        []byte
	Detections  []detect.Detection
	PeopleCount int
	ThreatCount int
	Level       alert.Level
	Timestamp   time.Time
	Fallback    bool
}

// Pipeline drives one camera: an acquisition loop running as fast as the
// source allows and a delivery loop running at a fixed cadence, decoupled
// by a single-slot hand-off.
type Pipeline struct {
	cameraID   string
	cameraName string
	source     camera.Source
	detector   detect.Detector
	annotator  *detect.Annotator
	classifier *detect.Classifier
	engine     *alert.Engine
	metrics    *metrics.Metrics

	deliveryInterval time.Duration
	retryInterval    time.Duration

	slot   Slot
	frames *Broadcaster[*Cycle]
	alerts *Broadcaster[alert.Alert]

	mu               sync.Mutex
	reportedState    types.ConnState
	detectFailures   int
	fallbackNum      uint64
	lastLevel        alert.Level
	lastFrameTime    time.Time
	lastDelivered    *Cycle
	announcedDegrade bool
}

// PipelineOptions bundles the collaborators shared by all pipelines.
type PipelineOptions struct {
	Detector         detect.Detector
	Annotator        *detect.Annotator
	Classifier       *detect.Classifier
	Engine           *alert.Engine
	Metrics          *metrics.Metrics
	Alerts           *Broadcaster[alert.Alert]
	DeliveryInterval time.Duration
	RetryInterval    time.Duration
}

// NewPipeline creates a pipeline for one camera.
func NewPipeline(cameraID, cameraName string, source camera.Source, opts PipelineOptions) *Pipeline {
	return &Pipeline{
		cameraID:         cameraID,
		cameraName:       cameraName,
		source:           source,
		detector:         opts.Detector,
		annotator:        opts.Annotator,
		classifier:       opts.Classifier,
		engine:           opts.Engine,
		metrics:          opts.Metrics,
		alerts:           opts.Alerts,
		deliveryInterval: opts.DeliveryInterval,
		retryInterval:    opts.RetryInterval,
		frames:           NewBroadcaster[*Cycle]("FrameFanout:" + cameraID),
		reportedState:    types.StateDisconnected,
	}
}

// acquireLoop runs the per-cycle sequence: acquire, detect, update alert
// state, annotate, publish to the hand-off slot and the alert fanout.
func (p *Pipeline) acquireLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := p.source.NextFrame(ctx)
		switch {
		case err == nil:
			p.noteConnectivity(types.StateConnected)
		case errors.Is(err, camera.ErrUnavailable):
			p.noteConnectivity(types.StateDisconnected)
			p.metrics.FallbackFrames.Add(1)
			frame = p.nextFallbackFrame()
			// Pace reconnection attempts instead of spinning on the
			// downed source.
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.retryInterval):
			}
		default:
			// Context ended mid-read.
			return
		}

		p.metrics.FramesAcquired.Add(1)
		p.runCycle(ctx, frame)
	}
}

func (p *Pipeline) runCycle(ctx context.Context, frame *types.Frame) {
	var detections []detect.Detection
	if !frame.Synthetic {
		var err error
		detections, err = p.detector.Detect(ctx, frame.Image)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.metrics.DetectionFailures.Add(1)
			p.noteDetectFailure(err)
			return // Skip the cycle; no state update, no annotation.
		}
		p.noteDetectSuccess()
	}

	newAlerts, level := p.engine.ProcessCycle(p.cameraID, p.cameraName, detections, frame.Timestamp)

	jpegData, err := p.annotator.Annotate(frame.Image, detections)
	if err != nil {
		logger.Error("Pipeline", "[%s] annotate failed: %v", p.cameraID, err)
		return
	}

	people, threats := 0, 0
	for _, d := range detections {
		switch p.classifier.Classify(d.Label) {
		case detect.CategoryPerson:
			people++
		case detect.CategoryThreat:
			threats++
		}
	}

	cycle := &Cycle{
		CameraID:    p.cameraID,
		JPEG:        jpegData,
		Detections:  detections,
		PeopleCount: people,
		ThreatCount: threats,
		Level:       level,
		Timestamp:   frame.Timestamp,
		Fallback:    frame.Synthetic,
	}

	if p.slot.Put(cycle) {
		p.metrics.FramesDropped.Add(1)
	}

	p.metrics.DetectionCycles.Add(1)
	p.metrics.ObjectsDetected.Add(uint64(len(detections)))
	p.metrics.AlertsEmitted.Add(uint64(len(newAlerts)))
	if threats > len(newAlerts) {
		p.metrics.AlertsSuppressed.Add(uint64(threats - len(newAlerts)))
	}

	for _, a := range newAlerts {
		p.alerts.Publish(a)
	}

	p.mu.Lock()
	p.lastLevel = level
	p.lastFrameTime = frame.Timestamp
	p.mu.Unlock()
}

// deliverLoop pushes the freshest cycle to subscribers at a fixed cadence.
// When no new cycle arrived since the last tick it re-sends the previous
// one rather than stall.
func (p *Pipeline) deliverLoop(ctx context.Context) {
	ticker := time.NewTicker(p.deliveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cycle, ok := p.slot.Take()
		if ok {
			p.mu.Lock()
			p.lastDelivered = cycle
			p.mu.Unlock()
		} else {
			p.mu.Lock()
			cycle = p.lastDelivered
			p.mu.Unlock()
			if cycle == nil {
				continue
			}
		}

		p.frames.Publish(cycle)
		p.metrics.FramesDelivered.Add(1)
	}
}

func (p *Pipeline) nextFallbackFrame() *types.Frame {
	p.mu.Lock()
	p.fallbackNum++
	n := p.fallbackNum
	p.mu.Unlock()
	return camera.FallbackFrame(p.cameraID, n)
}

// noteConnectivity records a source state change, logging the transition
// exactly once rather than every cycle.
func (p *Pipeline) noteConnectivity(state types.ConnState) {
	p.mu.Lock()
	prev := p.reportedState
	if state == types.StateConnected && p.detectFailures >= degradeAfterFailures {
		state = types.StateDegraded
	}
	p.reportedState = state
	p.mu.Unlock()

	if prev == state {
		return
	}

	// The connected gauge counts degraded cameras as connected; it only
	// moves on transitions to or from the disconnected state.
	switch {
	case prev == types.StateDisconnected:
		p.metrics.CamerasConnected.Add(1)
	case state == types.StateDisconnected:
		p.metrics.CamerasConnected.Add(^uint64(0))
	}

	switch state {
	case types.StateConnected:
		logger.Info("Pipeline", "[%s] camera connected", p.cameraID)
	case types.StateDisconnected:
		logger.Warn("Pipeline", "[%s] camera disconnected, substituting fallback frames", p.cameraID)
	case types.StateDegraded:
		logger.Warn("Pipeline", "[%s] camera degraded", p.cameraID)
	}
}

func (p *Pipeline) noteDetectFailure(err error) {
	p.mu.Lock()
	p.detectFailures++
	failures := p.detectFailures
	announced := p.announcedDegrade
	if failures >= degradeAfterFailures {
		p.announcedDegrade = true
	}
	p.mu.Unlock()

	logger.Warn("Pipeline", "[%s] detection failed (%d consecutive): %v", p.cameraID, failures, err)
	if failures >= degradeAfterFailures && !announced {
		p.noteConnectivity(types.StateDegraded)
	}
}

func (p *Pipeline) noteDetectSuccess() {
	p.mu.Lock()
	wasDegraded := p.detectFailures >= degradeAfterFailures
	p.detectFailures = 0
	p.announcedDegrade = false
	p.mu.Unlock()

	if wasDegraded {
		p.noteConnectivity(types.StateConnected)
	}
}

// Status reports the camera's connectivity, measured FPS and current
// threat level.
func (p *Pipeline) Status() types.CameraStatus {
	src := p.source.Status()

	p.mu.Lock()
	defer p.mu.Unlock()

	state := src.State
	if state == types.StateConnected && p.detectFailures >= degradeAfterFailures {
		state = types.StateDegraded
	}
	status := types.CameraStatus{
		ID:          p.cameraID,
		Name:        p.cameraName,
		State:       state,
		FPS:         src.FPS,
		ThreatLevel: p.lastLevel.String(),
	}
	if !p.lastFrameTime.IsZero() {
		status.LastFrameUnix = float64(p.lastFrameTime.UnixMilli()) / 1000.0
	}
	return status
}

// SubscribeFrames attaches a delivery client to this camera's stream.
func (p *Pipeline) SubscribeFrames() (int, <-chan *Cycle) {
	return p.frames.Subscribe()
}

// UnsubscribeFrames detaches a delivery client.
func (p *Pipeline) UnsubscribeFrames(id int) {
	p.frames.Unsubscribe(id)
}
