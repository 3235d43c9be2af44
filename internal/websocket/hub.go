// Package websocket pushes now-playing state changes to connected browsers.
package websocket

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"vibe/internal/nowplaying"
)

// Hub manages the set of active clients and broadcasts messages.
// The last broadcast message is replayed to every client that registers later.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	last       []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. It must be run in a separate goroutine.
func (h *Hub) Run(ctx context.Context) {
	logrus.Info("hub started")
	defer logrus.Info("hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
			if h.last != nil {
				h.send(client, h.last)
			}
			logrus.WithField("remoteAddr", client.remoteAddr()).Debug("client registered")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			logrus.WithField("remoteAddr", client.remoteAddr()).Debug("client unregistered")
		case message := <-h.broadcast:
			h.last = message
			for client := range h.clients {
				h.send(client, message)
			}
		}
	}
}

// Publish broadcasts a state update to all connected clients. A nil state is sent as the
// empty state. It returns immediately once the hub has stopped.
func (h *Hub) Publish(state *nowplaying.TrackState) {
	if state == nil {
		state = &nowplaying.TrackState{}
	}
	message, err := json.Marshal(state)
	if err != nil {
		logrus.WithError(err).Error("failed to encode state for broadcast")
		return
	}

	h.broadcastMessage(message)
}

// PublishError broadcasts {"error": code} so clients can tell a failure from the empty state.
// It is replayed to later clients until the next state is published.
func (h *Hub) PublishError(err error) {
	message, merr := json.Marshal(map[string]string{"error": nowplaying.ErrorCode(err)})
	if merr != nil {
		logrus.WithError(merr).Error("failed to encode error for broadcast")
		return
	}
	h.broadcastMessage(message)
}

func (h *Hub) broadcastMessage(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// send queues a message without blocking the hub. Clients that cannot keep up are dropped.
func (h *Hub) send(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		logrus.WithField("remoteAddr", client.remoteAddr()).Warn("client send buffer full, dropping client")
		delete(h.clients, client)
		close(client.send)
	}
}

// closeAll releases every client during shutdown. Each write pump sends a close frame and exits.
func (h *Hub) closeAll() {
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
