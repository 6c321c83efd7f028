// Package ws implements the live-update fanout to connected map viewers.
package ws

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"smart-parking-backend/internal/metric"
)

const (
	// Time allowed to write a message to a client.
	writeWait = 10 * time.Second

	// Maximum message size allowed from a client.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Update is the structured event pushed to every subscriber for each
// accepted sensor message. Broadcast cadence is per-event; the durable
// store only sees the batched cadence.
type Update struct {
	Type      string `json:"type"`
	SpotID    int    `json:"spot_id"`
	Status    string `json:"status"`
	City      string `json:"city"`
	Timestamp string `json:"timestamp"`
}

// NewSpotUpdate builds the broadcast payload for an accepted event.
func NewSpotUpdate(spotID int, status, city string, at time.Time) Update {
	return Update{
		Type:      "spot_update",
		SpotID:    spotID,
		Status:    status,
		City:      city,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

type subscriber struct {
	id   string
	conn *websocket.Conn

	// guards concurrent writes (broadcasts vs. echo replies)
	writeMu sync.Mutex
}

func (s *subscriber) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// Hub maintains the subscriber set and fans updates out to it. Membership
// is in-memory only; it rebuilds itself as connections open and close.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]*subscriber)}
}

// ClientCount returns the current number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subscribers[s.id] = s
	n := len(h.subscribers)
	h.mu.Unlock()
	metric.BroadcastClients.Set(float64(n))
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	s, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	n := len(h.subscribers)
	h.mu.Unlock()
	metric.BroadcastClients.Set(float64(n))
	if ok {
		s.conn.Close()
	}
}

// Broadcast delivers the update to every current subscriber. A failed
// delivery removes only that subscriber; it never raises to the caller.
func (h *Hub) Broadcast(u Update) {
	h.mu.Lock()
	snapshot := make([]*subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		snapshot = append(snapshot, s)
	}
	h.mu.Unlock()

	for _, s := range snapshot {
		if err := s.writeJSON(u); err != nil {
			log.Printf("removing websocket client %s after write error: %v", s.id, err)
			h.remove(s.id)
		}
	}
}

// ServeHTTP upgrades the request and runs the connection's read loop.
// Inbound client text is echoed back; it carries no semantic effect.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	s := &subscriber{id: uuid.NewString(), conn: conn}
	h.add(s)
	log.Printf("websocket client connected: %s", s.id)

	defer func() {
		h.remove(s.id)
		log.Printf("websocket client disconnected: %s", s.id)
	}()

	conn.SetReadLimit(maxMessageSize)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket client %s read error: %v", s.id, err)
			}
			return
		}
		if err := s.writeJSON(map[string]string{"type": "echo", "message": string(msg)}); err != nil {
			return
		}
	}
}
