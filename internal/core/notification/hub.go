// Package notification fans domain events out to operator clients. Rooms are
// tenant scoped; delivery is best effort and never blocks the publisher.
package notification

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one real-time notification.
type Event struct {
	Name     string      `json:"event"`
	TenantID string      `json:"tenant_id"`
	Data     interface{} `json:"data"`
	At       time.Time   `json:"at"`
}

type subscriber struct {
	ch    chan Event
	rooms []string
}

// Hub is an in-process room registry.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[uint64]*subscriber
	nextID  uint64
	buffer  int
	dropped atomic.Int64
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		rooms:  make(map[string]map[uint64]*subscriber),
		buffer: buffer,
	}
}

// Subscribe joins the given rooms. The returned cancel func leaves them and
// closes the channel.
func (h *Hub) Subscribe(rooms ...string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	sub := &subscriber{ch: make(chan Event, h.buffer), rooms: rooms}
	for _, room := range rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[uint64]*subscriber)
		}
		h.rooms[room][id] = sub
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for _, room := range sub.rooms {
				delete(h.rooms[room], id)
				if len(h.rooms[room]) == 0 {
					delete(h.rooms, room)
				}
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers ev once to every subscriber of any of the rooms and
// returns the number of subscribers reached. Full subscribers miss the event.
func (h *Hub) Publish(ev Event, rooms ...string) int {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*subscriber]struct{})
	delivered := 0
	for _, room := range rooms {
		for _, sub := range h.rooms[room] {
			if _, dup := seen[sub]; dup {
				continue
			}
			seen[sub] = struct{}{}
			select {
			case sub.ch <- ev:
				delivered++
			default:
				h.dropped.Add(1)
			}
		}
	}
	return delivered
}

// Dropped counts events lost to slow subscribers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
