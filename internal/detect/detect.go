package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"time"

	"github.com/samber/lo"
)

// Box is a bounding box in pixel space of the source frame.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Detection is one recognized object in one frame.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Detector runs object detection on a single frame.
// Implementations are treated as pure, stateless functions per call.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}

// Client calls an external YOLO-style inference service over HTTP.
// The service accepts a JPEG body on POST /detect and answers with a JSON
// detection list.
type Client struct {
	endpoint  string
	threshold float64
	http      *http.Client
}

// NewClient returns a detector client for the given inference endpoint.
// Detections below the confidence threshold are filtered out.
func NewClient(endpoint string, threshold float64, timeout time.Duration) *Client {
	return &Client{
		endpoint:  endpoint,
		threshold: threshold,
		http:      &http.Client{Timeout: timeout},
	}
}

type detectResponse struct {
	Detections []Detection `json:"detections"`
}

// Detect encodes the frame as JPEG and submits it to the inference service.
func (c *Client) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/detect", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference service returned %d", resp.StatusCode)
	}

	var result detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}

	return lo.Filter(result.Detections, func(d Detection, _ int) bool {
		return d.Confidence >= c.threshold
	}), nil
}
