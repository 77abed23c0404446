package types

import (
	"image"
	"time"
)

// Frame represents one decoded camera frame with metadata
type Frame struct {
	CameraID  string      // Camera the frame came from
	Image     image.Image // Decoded pixels
	Timestamp time.Time   // Capture timestamp
	Number    uint64      // Sequential frame number per camera
	Synthetic bool        // True if this is a fallback frame, not a real capture
}

// ConnState is the connectivity state of a camera source
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateDegraded
	StateConnected
)

var connStateNames = map[ConnState]string{
	StateDisconnected: "disconnected",
	StateDegraded:     "degraded",
	StateConnected:    "connected",
}

func (s ConnState) String() string {
	if name, ok := connStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText makes ConnState render as its name in JSON payloads.
func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
