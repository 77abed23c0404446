package types

// DetectionPayload mirrors the JSON shape pushed to browsers per detection.
type DetectionPayload struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
	Box        [4]int  `json:"box"` // x1, y1, x2, y2
}

// FrameEvent is the per-camera payload emitted at delivery cadence.
type FrameEvent struct {
	CameraID    string             `json:"camera_id"`
	Frame       string             `json:"frame"` // base64 JPEG
	Detections  []DetectionPayload `json:"detections"`
	PeopleCount int                `json:"people_count"`
	ThreatCount int                `json:"threat_count"`
	ThreatLevel string             `json:"threat_level"`
	Timestamp   float64            `json:"timestamp"`
}

// AlertEvent is emitted exactly once per non-suppressed alert.
type AlertEvent struct {
	ID           uint64  `json:"id"`
	CameraID     string  `json:"camera_id"`
	CameraName   string  `json:"camera_name"`
	ThreatType   string  `json:"threat_type"`
	Confidence   float64 `json:"confidence"`
	Timestamp    float64 `json:"timestamp"`
	TimeStr      string  `json:"time_str"`
	Acknowledged bool    `json:"acknowledged"`
}

// CameraStatus is the per-camera connectivity and threat summary.
type CameraStatus struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	State         ConnState `json:"state"`
	FPS           float64   `json:"fps"`
	ThreatLevel   string    `json:"threat_level"`
	LastFrameUnix float64   `json:"last_frame,omitempty"`
}
