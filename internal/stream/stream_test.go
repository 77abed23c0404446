package stream

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelligence-lair/threatwatch/internal/alert"
	"github.com/intelligence-lair/threatwatch/internal/camera"
	"github.com/intelligence-lair/threatwatch/internal/detect"
	"github.com/intelligence-lair/threatwatch/internal/metrics"
	"github.com/intelligence-lair/threatwatch/pkg/types"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	return img
}

// fakeSource produces frames at a controlled rate and can be toggled down.
type fakeSource struct {
	mu     sync.Mutex
	down   bool
	num    uint64
	pace   time.Duration
	closed bool
}

func (f *fakeSource) NextFrame(ctx context.Context) (*types.Frame, error) {
	if f.pace > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.pace):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, camera.ErrUnavailable
	}
	if f.down {
		return nil, camera.ErrUnavailable
	}
	f.num++
	return &types.Frame{
		CameraID:  "cam1",
		Image:     testImage(),
		Timestamp: time.Now(),
		Number:    f.num,
	}, nil
}

func (f *fakeSource) Status() camera.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := types.StateConnected
	if f.down || f.closed {
		state = types.StateDisconnected
	}
	return camera.Status{State: state, FPS: 30}
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

// fakeDetector returns canned detections, or errors while failing is set.
type fakeDetector struct {
	mu         sync.Mutex
	detections []detect.Detection
	failing    bool
	calls      int
}

func (f *fakeDetector) Detect(ctx context.Context, img image.Image) ([]detect.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failing {
		return nil, errors.New("inference backend timeout")
	}
	return f.detections, nil
}

func (f *fakeDetector) setDetections(d []detect.Detection) {
	f.mu.Lock()
	f.detections = d
	f.mu.Unlock()
}

func (f *fakeDetector) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func newTestPipeline(t *testing.T, src camera.Source, det detect.Detector) (*Pipeline, *Supervisor) {
	t.Helper()
	classifier := detect.NewClassifier([]string{"knife", "scissors"}, "person")
	engine := alert.NewEngine(classifier, 30*time.Second, 100, alert.LevelThresholds{
		HighCount:      2,
		CriticalCount:  4,
		HighConfidence: 0.75,
	})
	sup := NewSupervisor()
	p := NewPipeline("cam1", "Front Door", src, PipelineOptions{
		Detector:         det,
		Annotator:        detect.NewAnnotator(classifier, 70),
		Classifier:       classifier,
		Engine:           engine,
		Metrics:          metrics.New(),
		Alerts:           sup.Alerts(),
		DeliveryInterval: 20 * time.Millisecond,
		RetryInterval:    10 * time.Millisecond,
	})
	sup.Add(p)
	return p, sup
}

func TestSlotKeepsOnlyLatest(t *testing.T) {
	var s Slot

	_, ok := s.Take()
	assert.False(t, ok, "empty slot should report no value")

	first := &Cycle{CameraID: "a"}
	second := &Cycle{CameraID: "b"}

	assert.False(t, s.Put(first), "put into empty slot is not an overwrite")
	assert.True(t, s.Put(second), "second put should report the overwrite")

	got, ok := s.Take()
	require.True(t, ok)
	assert.Same(t, second, got, "take should return the freshest cycle")

	_, ok = s.Take()
	assert.False(t, ok, "take empties the slot")
}

func TestBroadcasterFanout(t *testing.T) {
	b := NewBroadcaster[int]("test")
	defer b.Close()

	id1, ch1 := b.Subscribe()
	id2, ch2 := b.Subscribe()
	assert.Equal(t, 2, b.ClientCount())

	b.Publish(7)
	assert.Equal(t, 7, <-ch1)
	assert.Equal(t, 7, <-ch2)

	b.Unsubscribe(id1)
	assert.Equal(t, 1, b.ClientCount())

	b.Publish(8)
	assert.Equal(t, 8, <-ch2)
	b.Unsubscribe(id2)
}

func TestBroadcasterDropsForSlowClient(t *testing.T) {
	b := NewBroadcaster[int]("test")
	defer b.Close()

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	// Channel buffer is 2. Publishing more must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow client")
	}

	// The slow client sees the earliest buffered values, not all ten.
	assert.Equal(t, 0, <-ch)
	assert.Equal(t, 1, <-ch)
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("expected no more buffered values, got %d", v)
		}
	default:
	}
}

func TestBroadcasterSubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster[int]("test")
	b.Close()

	_, ch := b.Subscribe()
	_, open := <-ch
	assert.False(t, open, "subscribing after close should yield a closed channel")
}

func TestPipelineDeliversFrames(t *testing.T) {
	src := &fakeSource{pace: 2 * time.Millisecond}
	det := &fakeDetector{}
	p, sup := newTestPipeline(t, src, det)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)
	defer sup.Stop()

	id, frames := p.SubscribeFrames()
	defer p.UnsubscribeFrames(id)

	select {
	case cycle := <-frames:
		assert.Equal(t, "cam1", cycle.CameraID)
		assert.NotEmpty(t, cycle.JPEG)
		assert.Equal(t, alert.LevelSafe, cycle.Level)
		assert.False(t, cycle.Fallback)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestPipelineSubstitutesFallbackWhenDown(t *testing.T) {
	src := &fakeSource{down: true}
	det := &fakeDetector{}
	p, sup := newTestPipeline(t, src, det)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)
	defer sup.Stop()

	id, frames := p.SubscribeFrames()
	defer p.UnsubscribeFrames(id)

	select {
	case cycle := <-frames:
		assert.True(t, cycle.Fallback, "downed source should yield fallback cycles")
		assert.Empty(t, cycle.Detections, "fallback frames skip detection")
		assert.Equal(t, alert.LevelSafe, cycle.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("no fallback frame delivered")
	}

	det.mu.Lock()
	calls := det.calls
	det.mu.Unlock()
	assert.Zero(t, calls, "detector must not run on fallback frames")
}

func TestPipelineAlertFanout(t *testing.T) {
	src := &fakeSource{pace: 2 * time.Millisecond}
	det := &fakeDetector{}
	det.setDetections([]detect.Detection{
		{Label: "knife", Confidence: 0.9, Box: detect.Box{X1: 5, Y1: 5, X2: 30, Y2: 30}},
	})
	_, sup := newTestPipeline(t, src, det)

	alertID, alerts := sup.Alerts().Subscribe()
	defer sup.Alerts().Unsubscribe(alertID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)
	defer sup.Stop()

	select {
	case a := <-alerts:
		assert.Equal(t, "cam1", a.CameraID)
		assert.Equal(t, "knife", a.ThreatType)
		assert.InDelta(t, 0.9, a.Confidence, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("no alert published")
	}

	// The cooldown keeps the fanout quiet even though the threat persists.
	select {
	case a := <-alerts:
		t.Fatalf("unexpected second alert %d within cooldown", a.ID)
	case <-time.After(150 * time.Millisecond):
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnectedGaugeMovesOncePerTransition(t *testing.T) {
	src := &fakeSource{pace: time.Millisecond}
	det := &fakeDetector{}
	p, sup := newTestPipeline(t, src, det)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)
	defer sup.Stop()

	waitFor(t, func() bool { return p.metrics.CamerasConnected.Load() == 1 },
		"camera never reported connected")

	src.setDown(true)
	waitFor(t, func() bool { return p.metrics.CamerasConnected.Load() == 0 },
		"camera never reported disconnected")

	// Staying down for several fallback cycles must not move the gauge
	// again.
	base := p.metrics.FallbackFrames.Load()
	waitFor(t, func() bool { return p.metrics.FallbackFrames.Load() >= base+3 },
		"no fallback frames while source down")
	assert.Equal(t, uint64(0), p.metrics.CamerasConnected.Load())

	src.setDown(false)
	waitFor(t, func() bool { return p.metrics.CamerasConnected.Load() == 1 },
		"camera never recovered")

	// And staying up must not move it either.
	acquired := p.metrics.FramesAcquired.Load()
	waitFor(t, func() bool { return p.metrics.FramesAcquired.Load() >= acquired+3 },
		"no frames after recovery")
	assert.Equal(t, uint64(1), p.metrics.CamerasConnected.Load())
}

func TestPipelineDegradesAfterDetectorFailures(t *testing.T) {
	src := &fakeSource{pace: time.Millisecond}
	det := &fakeDetector{failing: true}
	p, sup := newTestPipeline(t, src, det)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)
	defer sup.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Status().State == types.StateDegraded {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, types.StateDegraded, p.Status().State,
		"repeated detector failures should degrade the camera")

	// A successful cycle clears the degradation.
	det.setFailing(false)
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Status().State == types.StateConnected {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, types.StateConnected, p.Status().State)
}

func TestSupervisorStatuses(t *testing.T) {
	src := &fakeSource{pace: 2 * time.Millisecond}
	det := &fakeDetector{}
	_, sup := newTestPipeline(t, src, det)

	statuses := sup.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "cam1", statuses[0].ID)
	assert.Equal(t, "Front Door", statuses[0].Name)

	assert.Nil(t, sup.Pipeline("nope"))
	assert.NotNil(t, sup.Pipeline("cam1"))
}

func TestSupervisorStopUnblocksSubscribers(t *testing.T) {
	src := &fakeSource{pace: 2 * time.Millisecond}
	det := &fakeDetector{}
	p, sup := newTestPipeline(t, src, det)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	_, frames := p.SubscribeFrames()
	sup.Stop()

	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-frames:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("frame channel not closed after Stop")
		}
	}
}
