package camera

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/intelligence-lair/threatwatch/internal/logger"
	"github.com/intelligence-lair/threatwatch/pkg/types"
)

const maxReconnectDelay = 30 * time.Second

// deadlineConn arms a read deadline before every read so a feed that stays
// connected but stops sending surfaces a timeout instead of blocking.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

// MJPEGSource pulls frames from an HTTP multipart/x-mixed-replace camera
// feed, reconnecting with exponential backoff when the feed drops or stalls.
type MJPEGSource struct {
	cameraID string
	url      string
	client   *http.Client

	ctx    context.Context
	cancel context.CancelFunc

	// Connection state. Held across stream reads, so only NextFrame and
	// Close touch it.
	connMu    sync.Mutex
	resp      *http.Response
	reader    *multipart.Reader
	baseRetry time.Duration
	backoff   time.Duration
	nextRetry time.Time

	// Status snapshot. Never held across I/O so Status always returns
	// promptly, stalled feed or not.
	statusMu  sync.Mutex
	state     types.ConnState
	frameNum  uint64
	lastFrame time.Time
	fps       float64
}

// NewMJPEGSource creates a source for the given feed URL. Connection, header
// and stream reads are all bounded by connectTimeout; a read exceeding it
// drops the connection into the reconnect backoff.
func NewMJPEGSource(cameraID, url string, connectTimeout, retryInterval time.Duration) *MJPEGSource {
	ctx, cancel := context.WithCancel(context.Background())
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &MJPEGSource{
		cameraID: cameraID,
		url:      url,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					conn, err := dialer.DialContext(ctx, network, addr)
					if err != nil {
						return nil, err
					}
					return &deadlineConn{Conn: conn, timeout: connectTimeout}, nil
				},
				ResponseHeaderTimeout: connectTimeout,
			},
		},
		ctx:       ctx,
		cancel:    cancel,
		state:     types.StateDisconnected,
		baseRetry: retryInterval,
	}
}

// NextFrame returns the next decoded frame from the feed.
func (s *MJPEGSource) NextFrame(ctx context.Context) (*types.Frame, error) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	default:
	}

	if s.reader == nil {
		if time.Now().Before(s.nextRetry) {
			return nil, ErrUnavailable
		}
		if err := s.connectLocked(); err != nil {
			logger.Debug("Camera", "[%s] connect failed: %v", s.cameraID, err)
			return nil, ErrUnavailable
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		part, err := s.reader.NextPart()
		if err != nil {
			s.dropConnectionLocked(err)
			return nil, ErrUnavailable
		}
		data, err := io.ReadAll(part)
		if err != nil {
			s.dropConnectionLocked(err)
			return nil, ErrUnavailable
		}
		decoded, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			// A corrupt part is not a lost connection; read on.
			logger.Debug("Camera", "[%s] bad frame, skipping: %v", s.cameraID, err)
			continue
		}

		now := time.Now()

		s.statusMu.Lock()
		if !s.lastFrame.IsZero() {
			if dt := now.Sub(s.lastFrame).Seconds(); dt > 0 {
				s.fps = 1.0 / dt
			}
		}
		s.lastFrame = now
		s.frameNum++
		n := s.frameNum
		s.statusMu.Unlock()

		return &types.Frame{
			CameraID:  s.cameraID,
			Image:     decoded,
			Timestamp: now,
			Number:    n,
		}, nil
	}
}

func (s *MJPEGSource) connectLocked() error {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.url, nil)
	if err != nil {
		s.scheduleRetryLocked()
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.scheduleRetryLocked()
		return err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		s.scheduleRetryLocked()
		return fmt.Errorf("feed returned %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/x-mixed-replace" || params["boundary"] == "" {
		resp.Body.Close()
		s.scheduleRetryLocked()
		return fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	s.resp = resp
	s.reader = multipart.NewReader(resp.Body, params["boundary"])
	s.backoff = 0
	s.setState(types.StateConnected)
	logger.Info("Camera", "[%s] connected to %s", s.cameraID, s.url)
	return nil
}

func (s *MJPEGSource) dropConnectionLocked(cause error) {
	if s.resp != nil {
		s.resp.Body.Close()
		s.resp = nil
	}
	s.reader = nil

	s.statusMu.Lock()
	wasConnected := s.state != types.StateDisconnected
	s.state = types.StateDisconnected
	s.statusMu.Unlock()

	if wasConnected {
		logger.Warn("Camera", "[%s] lost connection: %v", s.cameraID, cause)
	}
	s.scheduleRetryLocked()
}

func (s *MJPEGSource) scheduleRetryLocked() {
	if s.backoff <= 0 {
		s.backoff = s.baseRetry
	} else {
		s.backoff *= 2
		if s.backoff > maxReconnectDelay {
			s.backoff = maxReconnectDelay
		}
	}
	s.nextRetry = time.Now().Add(s.backoff)
}

func (s *MJPEGSource) setState(state types.ConnState) {
	s.statusMu.Lock()
	s.state = state
	s.statusMu.Unlock()
}

// Status reports current connectivity and measured FPS. It never waits on
// an in-flight stream read.
func (s *MJPEGSource) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return Status{State: s.state, FPS: s.fps}
}

// Close releases the underlying connection. Safe to call while a read is in
// flight; the read unblocks with an error.
func (s *MJPEGSource) Close() error {
	s.cancel()
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.resp != nil {
		s.resp.Body.Close()
		s.resp = nil
	}
	s.reader = nil
	s.setState(types.StateDisconnected)
	return nil
}
