package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	TypeSessionActivated = "session.activated"
	TypeSessionRevoked   = "session.revoked"
	TypeEcho             = "echo"
	TypeReady            = "ready"
)

type Event struct {
	Type   string          `json:"type"`
	At     string          `json:"at"`
	UserID string          `json:"userId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func NewEvent(eventType, userID string, data interface{}) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Event{Type: eventType, At: time.Now().UTC().Format(time.RFC3339Nano), UserID: userID, Data: raw}
}

// Hub fans session events out to subscribers. A subscriber registered with a
// user ID only receives that user's events; an empty ID receives everything.
// Slow subscribers drop events rather than blocking publishers.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]string
}

func NewHub() *Hub {
	return &Hub{subs: map[chan Event]string{}}
}

func (h *Hub) Subscribe(userID string, buffer int) chan Event {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = userID
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	_, exists := h.subs[ch]
	if exists {
		delete(h.subs, ch)
	}
	h.mu.Unlock()
	if exists {
		close(ch)
	}
}

func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch, userID := range h.subs {
		if userID != "" && userID != evt.UserID {
			continue
		}
		select {
		case ch <- evt:
		default:
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
