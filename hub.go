package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans received messages out to websocket subscribers. A subscriber
// that does not keep up misses messages instead of stalling the others.
type Hub struct {
	logger *slog.Logger

	mu   sync.RWMutex
	pool map[chan []byte]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		pool:   make(map[chan []byte]struct{}),
	}
}

// Publish implements Sink.
func (h *Hub) Publish(ev InboxEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode inbox event", "error", err)
		return
	}
	h.Broadcast(payload)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.pool {
		select {
		case ch <- msg:
		default:
			h.logger.Debug("Subscriber lagging, message skipped")
		}
	}
}

// Subscribe returns a channel of broadcast payloads and the function that
// unsubscribes and closes it.
func (h *Hub) Subscribe(buffer int) (<-chan []byte, func()) {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan []byte, buffer)

	h.mu.Lock()
	h.pool[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.pool[ch]; ok {
			delete(h.pool, ch)
			close(ch)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pool)
}

// ServeWS upgrades the connection and streams every published message as a
// text frame until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.Subscribe(100)
	defer cancel()

	// the client never sends anything; reading only notices the close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for msg := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
