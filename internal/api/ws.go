// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"yatra.is/crowdwatch/internal/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth is API-key based, not cookie based, so cross-origin dashboards
	// are allowed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan Event
}

// wsHub mirrors the combined SSE feed (alerts, emergency transitions,
// density readings) onto WebSocket connections.
type wsHub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	server  *Server
}

func newWSHub(s *Server) *wsHub {
	return &wsHub{
		clients: make(map[string]*wsClient),
		server:  s,
	}
}

func (h *wsHub) publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- ev:
		default:
			// slow consumer: drop rather than block the event source
		}
	}
}

func (h *wsHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	metrics.StreamClients.WithLabelValues("ws").Inc()
}

func (h *wsHub) unregister(id string) {
	h.mu.Lock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()
	metrics.StreamClients.WithLabelValues("ws").Dec()
}

// handleWS upgrades the connection and mirrors the event feed onto it.
// GET /api/v1/ws
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Event, streamClientBuffer),
	}
	s.ws.register(client)
	s.logger.Info("WebSocket client connected", "conn", client.id)

	client.send <- Event{Type: "connected", Data: map[string]string{"connectionId": client.id}}
	if st := s.emergency.State(); st != nil {
		client.send <- Event{Type: "emergency", Data: st}
	}

	go s.wsWriteLoop(client)
	go s.wsReadLoop(client)
}

// wsWriteLoop drains the client's event queue onto the socket and sends
// pings. Exits when the queue closes or a write fails.
func (s *Server) wsWriteLoop(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				s.tracker.RecordStreamSendError(err, c.id)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsReadLoop consumes (and discards) inbound frames to process control
// messages and detect disconnect.
func (s *Server) wsReadLoop(c *wsClient) {
	defer func() {
		s.ws.unregister(c.id)
		s.logger.Info("WebSocket client disconnected", "conn", c.id)
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
