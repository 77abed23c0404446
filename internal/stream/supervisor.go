package stream

import (
	"context"
	"sync"

	"github.com/intelligence-lair/threatwatch/internal/alert"
	"github.com/intelligence-lair/threatwatch/internal/logger"
	"github.com/intelligence-lair/threatwatch/pkg/types"
)

// Supervisor owns one pipeline per camera and the shared alert fanout. It
// starts and stops the acquisition and delivery goroutines together.
type Supervisor struct {
	pipelines map[string]*Pipeline
	order     []string
	alerts    *Broadcaster[alert.Alert]

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// NewSupervisor creates an empty supervisor. Pipelines are added with Add
// before Start.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		pipelines: make(map[string]*Pipeline),
		alerts:    NewBroadcaster[alert.Alert]("AlertFanout"),
	}
}

// Alerts exposes the shared alert fanout so pipelines publish into it.
func (s *Supervisor) Alerts() *Broadcaster[alert.Alert] {
	return s.alerts
}

// Add registers a pipeline. Must be called before Start.
func (s *Supervisor) Add(p *Pipeline) {
	s.pipelines[p.cameraID] = p
	s.order = append(s.order, p.cameraID)
}

// Start launches the acquisition and delivery loops for every camera.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, p := range s.pipelines {
		p := p
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			p.acquireLoop(ctx)
		}()
		go func() {
			defer s.wg.Done()
			p.deliverLoop(ctx)
		}()
	}
	logger.Info("Supervisor", "started %d camera pipelines", len(s.pipelines))
}

// Stop cancels the loops, closes the sources and waits for all goroutines
// to drain, then shuts the fanouts so subscribers unblock.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	for _, p := range s.pipelines {
		if err := p.source.Close(); err != nil {
			logger.Warn("Supervisor", "[%s] source close: %v", p.cameraID, err)
		}
	}
	s.wg.Wait()

	for _, p := range s.pipelines {
		p.frames.Close()
	}
	s.alerts.Close()
	logger.Info("Supervisor", "stopped")
}

// Pipeline returns the pipeline for a camera, or nil when unknown.
func (s *Supervisor) Pipeline(cameraID string) *Pipeline {
	return s.pipelines[cameraID]
}

// Statuses reports every camera's current status in registration order.
func (s *Supervisor) Statuses() []types.CameraStatus {
	out := make([]types.CameraStatus, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.pipelines[id].Status())
	}
	return out
}
