// Package live fans finalized flow records out to subscribed websocket
// clients, adapting the teacher's echo-only WebSocket handler
// (pkg/server/websocket.go) from "echo whatever the client sent" to
// "push every record Broadcast receives."
package live

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/netfprint/ja4core/pkg/stream"
)

// upgrader mirrors the teacher's permissive settings: this is a read-only
// diagnostic feed, not a trust boundary.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// subscriberBuffer bounds how far a client can lag before it is dropped
// rather than stalling the record pipeline.
const subscriberBuffer = 16

// Hub tracks subscribed websocket connections and broadcasts finalized
// stream.Records to all of them.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*websocket.Conn]chan stream.Record
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[*websocket.Conn]chan stream.Record)}
}

// ServeHTTP upgrades the request to a websocket connection and streams
// every record passed to Broadcast as JSON until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: websocket upgrade failed: %v", err)
		return
	}

	ch := make(chan stream.Record, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.subscribers, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// This endpoint never expects application messages from the client; the
	// read loop exists only to notice the connection closing and to service
	// gorilla/websocket's control-frame (ping/close) handling.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for rec := range ch {
		if err := conn.WriteJSON(rec); err != nil {
			log.Printf("live: write to %s failed: %v", r.RemoteAddr, err)
			return
		}
	}
}

// Broadcast pushes rec to every currently subscribed client. A subscriber
// that can't keep up is dropped rather than allowed to block every other
// subscriber or the caller.
func (h *Hub) Broadcast(rec stream.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.subscribers {
		select {
		case ch <- rec:
		default:
			log.Printf("live: subscriber channel full, dropping %s", conn.RemoteAddr())
			close(ch)
			delete(h.subscribers, conn)
		}
	}
}

// Close shuts down every subscriber channel, letting their ServeHTTP loops
// return.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, conn)
	}
}
