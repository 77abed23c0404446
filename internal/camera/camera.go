// Package camera acquires frames from live or simulated video sources.
package camera

import (
	"context"
	"errors"

	"github.com/intelligence-lair/threatwatch/pkg/types"
)

// ErrUnavailable is returned when the source cannot produce a frame right
// now. The caller decides whether to retry or substitute a fallback frame.
var ErrUnavailable = errors.New("camera: source unavailable")

// Status reports a source's connectivity and measured frame rate.
type Status struct {
	State types.ConnState
	FPS   float64
}

// Source yields frames on demand and reports connectivity.
type Source interface {
	// NextFrame blocks until the next frame is available or the context is
	// done. Returns ErrUnavailable when the feed is down.
	NextFrame(ctx context.Context) (*types.Frame, error)
	Status() Status
	Close() error
}
