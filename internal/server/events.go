package server

import (
	"encoding/base64"

	"github.com/intelligence-lair/threatwatch/internal/alert"
	"github.com/intelligence-lair/threatwatch/internal/detect"
	"github.com/intelligence-lair/threatwatch/internal/stream"
	"github.com/intelligence-lair/threatwatch/pkg/types"
)

func toAlertEvent(a alert.Alert) types.AlertEvent {
	return types.AlertEvent{
		ID:           a.ID,
		CameraID:     a.CameraID,
		CameraName:   a.CameraName,
		ThreatType:   a.ThreatType,
		Confidence:   a.Confidence,
		Timestamp:    float64(a.Timestamp.UnixMilli()) / 1000.0,
		TimeStr:      a.Timestamp.Format("15:04:05"),
		Acknowledged: a.Acknowledged,
	}
}

func toFrameEvent(c *stream.Cycle, classifier *detect.Classifier) types.FrameEvent {
	detections := make([]types.DetectionPayload, 0, len(c.Detections))
	for _, d := range c.Detections {
		detections = append(detections, types.DetectionPayload{
			Label:      d.Label,
			Confidence: d.Confidence,
			Category:   classifier.Classify(d.Label).String(),
			Box:        [4]int{d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2},
		})
	}
	return types.FrameEvent{
		CameraID:    c.CameraID,
		Frame:       base64.StdEncoding.EncodeToString(c.JPEG),
		Detections:  detections,
		PeopleCount: c.PeopleCount,
		ThreatCount: c.ThreatCount,
		ThreatLevel: c.Level.String(),
		Timestamp:   float64(c.Timestamp.UnixMilli()) / 1000.0,
	}
}
