package camera

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
	"time"

	"github.com/intelligence-lair/threatwatch/pkg/types"
)

const (
	syntheticWidth  = 640
	syntheticHeight = 480
)

// Color bars: White, Yellow, Cyan, Green, Magenta, Red, Blue, Black
var barColors = []color.RGBA{
	{R: 255, G: 255, B: 255, A: 255},
	{R: 255, G: 255, B: 0, A: 255},
	{R: 0, G: 255, B: 255, A: 255},
	{R: 0, G: 255, B: 0, A: 255},
	{R: 255, G: 0, B: 255, A: 255},
	{R: 255, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 255, A: 255},
	{R: 0, G: 0, B: 0, A: 255},
}

// SyntheticSource generates color-bar frames at a fixed rate. Used for demo
// mode and for tests; it is always connected.
type SyntheticSource struct {
	cameraID string
	interval time.Duration
	frameNum atomic.Uint64
	closed   chan struct{}
}

// NewSyntheticSource creates a synthetic source producing fps frames per
// second.
func NewSyntheticSource(cameraID string, fps int) *SyntheticSource {
	if fps <= 0 {
		fps = 15
	}
	return &SyntheticSource{
		cameraID: cameraID,
		interval: time.Second / time.Duration(fps),
		closed:   make(chan struct{}),
	}
}

// NextFrame waits one frame interval and returns a fresh synthetic frame.
func (s *SyntheticSource) NextFrame(ctx context.Context) (*types.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrUnavailable
	case <-time.After(s.interval):
	}

	n := s.frameNum.Add(1)
	return &types.Frame{
		CameraID:  s.cameraID,
		Image:     renderBars(n),
		Timestamp: time.Now(),
		Number:    n,
	}, nil
}

// Status reports the source as always connected.
func (s *SyntheticSource) Status() Status {
	select {
	case <-s.closed:
		return Status{State: types.StateDisconnected}
	default:
		return Status{State: types.StateConnected, FPS: float64(time.Second / s.interval)}
	}
}

// Close stops the source.
func (s *SyntheticSource) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

// FallbackFrame returns a synthetic frame substituted when a real source is
// unavailable, so downstream consumers always have something to render.
func FallbackFrame(cameraID string, number uint64) *types.Frame {
	return &types.Frame{
		CameraID:  cameraID,
		Image:     renderBars(number),
		Timestamp: time.Now(),
		Number:    number,
		Synthetic: true,
	}
}

// renderBars draws color bars with a marker strip that moves with the frame
// number so streams visibly advance.
func renderBars(frameNum uint64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, syntheticWidth, syntheticHeight))
	barWidth := syntheticWidth / len(barColors)
	for y := 0; y < syntheticHeight; y++ {
		for x := 0; x < syntheticWidth; x++ {
			barIndex := x / barWidth
			if barIndex >= len(barColors) {
				barIndex = len(barColors) - 1
			}
			img.Set(x, y, barColors[barIndex])
		}
	}

	markerX := int(frameNum*8) % (syntheticWidth - 16)
	marker := color.RGBA{R: 255, G: 128, B: 0, A: 255}
	for y := syntheticHeight - 24; y < syntheticHeight-8; y++ {
		for x := markerX; x < markerX+16; x++ {
			img.Set(x, y, marker)
		}
	}
	return img
}
