package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/intelligence-lair/threatwatch/internal/logger"
	"github.com/intelligence-lair/threatwatch/internal/stream"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard is served from the same process; cross-origin
		// embedding is allowed.
		return true
	},
}

// wsMessage is the envelope pushed to browser clients.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsMessage

	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// enqueue drops the message when the client cannot keep up. Frames are
// superseded by the next delivery anyway.
func (c *wsClient) enqueue(msg wsMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
	}
}

// handleWebSocket upgrades the connection and pushes frame, alert and
// status events for every camera until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WS", "upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan wsMessage, wsSendBuffer),
		done: make(chan struct{}),
	}
	logger.Info("WS", "client connected: %s", r.RemoteAddr)
	s.metrics.EventClients.Add(1)
	defer s.metrics.EventClients.Add(^uint64(0))

	// Current camera state goes out immediately; the ticker only covers
	// subsequent updates.
	client.enqueue(wsMessage{Type: "camera_status", Data: s.supervisor.Statuses()})

	var wg sync.WaitGroup

	// One forwarder per camera feed.
	for _, status := range s.supervisor.Statuses() {
		pipeline := s.supervisor.Pipeline(status.ID)
		if pipeline == nil {
			continue
		}
		wg.Add(1)
		go func(p *stream.Pipeline) {
			defer wg.Done()
			s.forwardFrames(client, p)
		}(pipeline)
	}

	// One forwarder for the shared alert fanout.
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.forwardAlerts(client)
	}()

	// Periodic status pushes on the same socket.
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.forwardStatuses(client)
	}()

	go client.writePump()
	client.readPump()

	client.close()
	wg.Wait()
	logger.Info("WS", "client disconnected: %s", r.RemoteAddr)
}

func (s *Server) forwardFrames(client *wsClient, p *stream.Pipeline) {
	id, frames := p.SubscribeFrames()
	defer p.UnsubscribeFrames(id)

	for {
		select {
		case <-client.done:
			return
		case cycle, ok := <-frames:
			if !ok {
				return
			}
			client.enqueue(wsMessage{Type: "frame", Data: toFrameEvent(cycle, s.classifier)})
		}
	}
}

func (s *Server) forwardAlerts(client *wsClient) {
	id, alerts := s.supervisor.Alerts().Subscribe()
	defer s.supervisor.Alerts().Unsubscribe(id)

	for {
		select {
		case <-client.done:
			return
		case a, ok := <-alerts:
			if !ok {
				return
			}
			client.enqueue(wsMessage{Type: "new_alert", Data: toAlertEvent(a)})
		}
	}
}

func (s *Server) forwardStatuses(client *wsClient) {
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			return
		case <-ticker.C:
			client.enqueue(wsMessage{Type: "camera_status", Data: s.supervisor.Statuses()})
		}
	}
}

// readPump drains client messages so pings are answered and close frames
// are noticed. The dashboard never sends anything meaningful upstream.
func (c *wsClient) readPump() {
	defer c.close()

	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WS", "read error: %v", err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
