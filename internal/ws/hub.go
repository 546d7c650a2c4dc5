// Package ws fans change events out to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/metrics"
)

const (
	broadcastBuffer     = 256
	registerBuffer      = 64
	maxClients          = 50
	maxBroadcastPayload = 8192
	drainTimeout        = 3 * time.Second
	drainPoll           = 50 * time.Millisecond
)

// Hub tracks connected clients and broadcasts events to all of them.
// The client set is only touched by the Run goroutine.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	shutdown   chan struct{}
	done       chan struct{}
	count      atomic.Int64
	log        *logrus.Logger
	seq        EventSequence
	buffer     *EventBuffer
}

// NewHub creates a Hub. Call Run to start it.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, registerBuffer),
		unregister: make(chan *Client, registerBuffer),
		broadcast:  make(chan []byte, broadcastBuffer),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		log:        log,
		buffer:     NewEventBuffer(defaultBufferMaxLen, defaultBufferMaxAge),
	}
}

// Run is the hub event loop. It exits on Shutdown or context cancellation.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.drainClients()
			return
		case <-h.shutdown:
			h.drainClients()
			return

		case c := <-h.register:
			if len(h.clients) >= maxClients {
				h.log.Warn("connection limit reached, dropping client")
				c.closeSend()

				continue
			}

			h.clients[c] = struct{}{}
			h.updateCount()
			h.log.WithField("total", len(h.clients)).Info("client registered")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.closeSend()
			}

			h.updateCount()
			h.log.WithField("total", len(h.clients)).Info("client unregistered")

		case msg := <-h.broadcast:
			for c := range h.clients {
				if !c.trySend(msg) {
					// Slow consumer; it can resubscribe with its last event ID.
					delete(h.clients, c)
					c.closeSend()
				}
			}

			h.updateCount()
		}
	}
}

func (h *Hub) updateCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.WSConnections.Set(float64(len(h.clients)))
}

// BroadcastEvent assigns a sequence ID, buffers the event for replay and
// queues it for every client. Oversized payloads are dropped.
func (h *Hub) BroadcastEvent(eventType string, data json.RawMessage) {
	if len(data) > maxBroadcastPayload {
		h.log.WithFields(logrus.Fields{
			"type":         eventType,
			"payload_size": len(data),
		}).Warn("dropping oversized event")

		return
	}

	evt := Event{Type: eventType, ID: h.seq.Next(), Data: data, Time: time.Now().UTC()}

	msg, err := json.Marshal(evt)
	if err != nil {
		h.log.WithError(err).Error("marshaling event")
		return
	}

	h.buffer.Append(&evt)

	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("broadcast channel full, dropping event")
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	default:
		h.log.Warn("register channel full, dropping client")
		c.closeSend()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Shutdown sends a shutdown frame to every client, waits for their queues
// to flush and closes them. It blocks until Run returns.
func (h *Hub) Shutdown() {
	close(h.shutdown)
	<-h.done
}

func (h *Hub) drainClients() {
	if len(h.clients) == 0 {
		return
	}

	h.log.WithField("clients", len(h.clients)).Info("draining WebSocket clients")

	shutdownMsg := []byte(`{"type":"shutdown","message":"server shutting down"}`)
	for c := range h.clients {
		c.trySend(shutdownMsg)
	}

	deadline := time.After(drainTimeout)
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

wait:
	for h.pending() {
		select {
		case <-deadline:
			h.log.Warn("WebSocket drain timeout, closing remaining clients")
			break wait
		case <-ticker.C:
		}
	}

	for c := range h.clients {
		c.closeSend()
		delete(h.clients, c)
	}

	h.updateCount()
}

func (h *Hub) pending() bool {
	for c := range h.clients {
		if len(c.send) > 0 {
			return true
		}
	}

	return false
}

// ReplayEvents queues buffered events after lastEventID for c. It returns
// false when lastEventID has already been evicted.
func (h *Hub) ReplayEvents(c *Client, lastEventID uint64) bool {
	oldest := h.buffer.OldestID()
	if oldest > 0 && lastEventID > 0 && lastEventID+1 < oldest {
		return false
	}

	for _, evt := range h.buffer.Since(lastEventID) {
		msg, err := json.Marshal(evt)
		if err != nil {
			continue
		}

		if !c.trySend(msg) {
			return true
		}
	}

	return true
}
