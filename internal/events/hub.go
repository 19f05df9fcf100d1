package events

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans lifecycle events out to connected WebSocket clients. Each
// broadcast carries a monotonic sequence number; clients reconnect with
// ?from_seq=N and the hub replays what they missed from a ring buffer.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	seq     int64
	replay  *ReplayBuffer
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates a hub with the given replay capacity.
func NewHub(replayCapacity int) *Hub {
	return &Hub{
		clients: make(map[*wsClient]bool),
		replay:  NewReplayBuffer(replayCapacity),
	}
}

// Send implements Notifier: wraps the event in a sequenced envelope and
// broadcasts it to all connected clients.
func (h *Hub) Send(ctx context.Context, ev Event) error {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	envelope, err := json.Marshal(map[string]interface{}{
		"seq":   seq,
		"event": ev,
	})
	if err != nil {
		return err
	}
	h.replay.Push(seq, envelope)

	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.send <- envelope:
		default:
			// Slow client; it will resync via from_seq on reconnect.
		}
	}
	h.mu.RUnlock()
	return nil
}

// Seq returns the current sequence number.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades an HTTP connection and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[events] ws upgrade: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[events] ws client connected (%d total)", count)

	// Backfill anything the client missed while disconnected.
	if fromStr := r.URL.Query().Get("from_seq"); fromStr != "" {
		if from, err := strconv.ParseInt(fromStr, 10, 64); err == nil {
			for _, envelope := range h.replay.Since(from) {
				select {
				case client.send <- envelope:
				default:
				}
			}
		}
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) removeClient(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
		log.Println("[events] ws client disconnected")
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
