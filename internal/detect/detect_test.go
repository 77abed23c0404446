package detect

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	return img
}

func TestClientDetectFiltersByThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/detect", r.URL.Path)
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"detections":[
			{"label":"person","confidence":0.9,"box":{"x1":1,"y1":2,"x2":30,"y2":40}},
			{"label":"knife","confidence":0.3,"box":{"x1":5,"y1":5,"x2":10,"y2":10}},
			{"label":"scissors","confidence":0.55,"box":{"x1":0,"y1":0,"x2":8,"y2":8}}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0.5, time.Second)
	dets, err := client.Detect(context.Background(), testFrame())
	require.NoError(t, err)

	require.Len(t, dets, 2)
	assert.Equal(t, "person", dets[0].Label)
	assert.Equal(t, "scissors", dets[1].Label)
	assert.Equal(t, Box{X1: 1, Y1: 2, X2: 30, Y2: 40}, dets[0].Box)
}

func TestClientDetectServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0.5, time.Second)
	_, err := client.Detect(context.Background(), testFrame())
	assert.Error(t, err)
}

func TestClientDetectContextCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client := NewClient(srv.URL, 0.5, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Detect(ctx, testFrame())
	assert.Error(t, err)
}

func TestAnnotateReturnsValidJPEGAndLeavesOriginal(t *testing.T) {
	classifier := NewClassifier([]string{"knife"}, "person")
	annotator := NewAnnotator(classifier, 70)
	frame := testFrame()
	before := append([]uint8(nil), frame.Pix...)

	data, err := annotator.Annotate(frame, []Detection{
		{Label: "knife", Confidence: 0.8, Box: Box{X1: 4, Y1: 4, X2: 30, Y2: 30}},
		{Label: "person", Confidence: 0.9, Box: Box{X1: 10, Y1: 2, X2: 60, Y2: 46}},
	})
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, frame.Bounds(), decoded.Bounds())

	// The unannotated original is never touched.
	assert.Equal(t, before, frame.Pix)
}

func TestAnnotateEmptyDetections(t *testing.T) {
	annotator := NewAnnotator(NewClassifier([]string{"knife"}, "person"), 70)
	data, err := annotator.Annotate(testFrame(), nil)
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}
