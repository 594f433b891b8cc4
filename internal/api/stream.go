// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"yatra.is/crowdwatch/internal/metrics"
)

// heartbeatInterval is how often an SSE comment line is written to keep
// intermediaries from timing out idle streams.
const heartbeatInterval = 30 * time.Second

// streamClientBuffer bounds each connection's pending-event queue. A client
// that cannot drain fast enough drops events rather than blocking the
// publisher.
const streamClientBuffer = 64

// Event is the envelope pushed over SSE and WebSocket connections.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type streamClient struct {
	id      string
	events  chan Event
	density bool // density feed instead of alert/emergency feed
}

// streamHub tracks connected SSE clients and fans events out to them.
type streamHub struct {
	mu      sync.RWMutex
	clients map[string]*streamClient
	server  *Server
}

func newStreamHub(s *Server) *streamHub {
	return &streamHub{
		clients: make(map[string]*streamClient),
		server:  s,
	}
}

// publish delivers an alert/emergency event to all event-stream clients.
func (h *streamHub) publish(ev Event) {
	h.fanOut(ev, false)
}

// publishDensity delivers a density reading to all density-stream clients.
func (h *streamHub) publishDensity(ev Event) {
	h.fanOut(ev, true)
}

func (h *streamHub) fanOut(ev Event, density bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.density != density {
			continue
		}
		select {
		case c.events <- ev:
		default:
			// slow consumer: drop rather than block the event source
		}
	}
}

func (h *streamHub) add(c *streamClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	metrics.StreamClients.WithLabelValues("sse").Inc()
}

func (h *streamHub) remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
	metrics.StreamClients.WithLabelValues("sse").Dec()
}

// handleEventStream streams alert and emergency events.
// GET /api/v1/stream
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, false)
}

// handleDensityStream streams raw density readings.
// GET /api/v1/density-stream
func (s *Server) handleDensityStream(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, true)
}

// serveSSE runs one SSE connection: a connected event, the current
// emergency state if one is active, then the live feed with periodic
// heartbeats. Send failures are recorded and the loop continues; only the
// client closing the request tears the stream down.
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, density bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	client := &streamClient{
		id:      uuid.NewString(),
		events:  make(chan Event, streamClientBuffer),
		density: density,
	}
	s.streams.add(client)
	defer s.streams.remove(client.id)

	s.logger.Info("Stream client connected", "conn", client.id, "density", density)
	defer s.logger.Info("Stream client disconnected", "conn", client.id)

	s.writeSSE(w, flusher, client.id, Event{Type: "connected", Data: map[string]string{"connectionId": client.id}})
	if st := s.emergency.State(); st != nil && !density {
		s.writeSSE(w, flusher, client.id, Event{Type: "emergency", Data: st})
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev := <-client.events:
			s.writeSSE(w, flusher, client.id, ev)
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				s.tracker.RecordStreamSendError(err, client.id)
				continue
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSE serializes one event as an SSE frame. Failures are recorded, not
// returned: the stream keeps running until the client aborts.
func (s *Server) writeSSE(w http.ResponseWriter, flusher http.Flusher, connID string, ev Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		s.tracker.RecordStreamSendError(err, connID)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
		s.tracker.RecordStreamSendError(err, connID)
		return
	}
	flusher.Flush()
}
