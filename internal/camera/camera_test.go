package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelligence-lair/threatwatch/pkg/types"
)

var tinyJPEG = encodeTinyJPEG()

func encodeTinyJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func mjpegTestServer(t *testing.T, frames int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		flusher := w.(http.Flusher)
		for i := 0; i < frames; i++ {
			fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(tinyJPEG))
			_, _ = w.Write(tinyJPEG)
			fmt.Fprint(w, "\r\n")
			flusher.Flush()
		}
		fmt.Fprint(w, "--frame--\r\n")
	}))
}

func TestMJPEGSourceReadsFrames(t *testing.T) {
	srv := mjpegTestServer(t, 3)
	defer srv.Close()

	src := NewMJPEGSource("cam1", srv.URL, time.Second, 10*time.Millisecond)
	defer src.Close()

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		frame, err := src.NextFrame(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), frame.Number)
		assert.Equal(t, "cam1", frame.CameraID)
		assert.NotNil(t, frame.Image)
		assert.False(t, frame.Synthetic)
	}
	assert.Equal(t, types.StateConnected, src.Status().State)

	// Stream exhausted: source reports unavailable and flips to disconnected.
	_, err := src.NextFrame(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, types.StateDisconnected, src.Status().State)
}

func TestMJPEGSourceStatusDuringStalledRead(t *testing.T) {
	// Feed sends one complete frame plus the next part's headers, then goes
	// silent without closing the connection.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n")
		_, _ = w.Write(tinyJPEG)
		fmt.Fprint(w, "\r\n--frame\r\nContent-Type: image/jpeg\r\n\r\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	src := NewMJPEGSource("cam1", srv.URL, 300*time.Millisecond, 10*time.Millisecond)
	defer src.Close()

	frame, err := src.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame.Number)

	errCh := make(chan error, 1)
	go func() {
		_, err := src.NextFrame(context.Background())
		errCh <- err
	}()

	// Status must answer while the stalled read is in flight.
	statusCh := make(chan Status, 1)
	go func() { statusCh <- src.Status() }()
	select {
	case <-statusCh:
	case <-time.After(150 * time.Millisecond):
		t.Fatal("Status blocked behind a stalled stream read")
	}

	// The stalled read expires into the unavailable path.
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("stalled read never timed out")
	}
	assert.Equal(t, types.StateDisconnected, src.Status().State)
}

func TestMJPEGSourceSkipsCorruptPart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n")
		_, _ = w.Write(tinyJPEG)
		fmt.Fprint(w, "\r\n--frame\r\nContent-Type: image/jpeg\r\n\r\nnot a jpeg\r\n")
		fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n")
		_, _ = w.Write(tinyJPEG)
		fmt.Fprint(w, "\r\n--frame--\r\n")
	}))
	defer srv.Close()

	src := NewMJPEGSource("cam1", srv.URL, time.Second, 10*time.Millisecond)
	defer src.Close()

	ctx := context.Background()
	f1, err := src.NextFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f1.Number)

	// The corrupt middle part is skipped, not reported as a lost feed.
	f2, err := src.NextFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f2.Number)
	assert.Equal(t, types.StateConnected, src.Status().State)
}

func TestMJPEGSourceUnreachableFeed(t *testing.T) {
	src := NewMJPEGSource("cam1", "http://127.0.0.1:1/stream", 50*time.Millisecond, 10*time.Millisecond)
	defer src.Close()

	_, err := src.NextFrame(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, types.StateDisconnected, src.Status().State)

	// Within the backoff window the source fails fast instead of redialing.
	start := time.Now()
	_, err = src.NextFrame(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), 40*time.Millisecond)
}

func TestMJPEGSourceRejectsNonMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "not a camera")
	}))
	defer srv.Close()

	src := NewMJPEGSource("cam1", srv.URL, time.Second, 10*time.Millisecond)
	defer src.Close()

	_, err := src.NextFrame(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMJPEGSourceCloseUnblocks(t *testing.T) {
	src := NewMJPEGSource("cam1", "http://127.0.0.1:1/stream", time.Second, time.Millisecond)
	require.NoError(t, src.Close())
	_, err := src.NextFrame(context.Background())
	assert.Error(t, err)
}

func TestSyntheticSource(t *testing.T) {
	src := NewSyntheticSource("demo", 100)
	defer src.Close()

	f1, err := src.NextFrame(context.Background())
	require.NoError(t, err)
	f2, err := src.NextFrame(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(1), f1.Number)
	assert.Equal(t, uint64(2), f2.Number)
	assert.Equal(t, types.StateConnected, src.Status().State)

	require.NoError(t, src.Close())
	_, err = src.NextFrame(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, types.StateDisconnected, src.Status().State)
}

func TestSyntheticSourceContextCancel(t *testing.T) {
	src := NewSyntheticSource("demo", 1)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.NextFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFallbackFrame(t *testing.T) {
	frame := FallbackFrame("cam2", 7)
	assert.True(t, frame.Synthetic)
	assert.Equal(t, "cam2", frame.CameraID)
	assert.Equal(t, uint64(7), frame.Number)
	assert.NotNil(t, frame.Image)
}
