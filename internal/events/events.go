// Package events distributes attendance transitions to live listeners.
package events

import (
	"log"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Event types.
const (
	TypeCheckIn  = "check_in"
	TypeCheckOut = "check_out"
	TypeOverride = "override"
)

// Event is a successful attendance transition.
type Event struct {
	Type     string             `json:"type"`
	UserID   string             `json:"userId"`
	UserName string             `json:"userName,omitempty"`
	Record   *attendance.Record `json:"record"`
	At       time.Time          `json:"at"`
}

// Publisher receives attendance events.
type Publisher interface {
	Publish(ev Event) error
}

// Hub fans events out to in-process listeners such as SSE connections.
type Hub struct {
	listeners []chan Event
	mu        sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// AddListener registers a buffered listener channel.
func (h *Hub) AddListener() chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, constants.EventChannelBuffer)
	h.listeners = append(h.listeners, ch)
	return ch
}

// RemoveListener unregisters and closes ch.
func (h *Hub) RemoveListener(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, listener := range h.listeners {
		if listener == ch {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// ListenerCount returns the number of registered listeners.
func (h *Hub) ListenerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Publish sends ev to every listener without blocking.
func (h *Hub) Publish(ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, listener := range h.listeners {
		select {
		case listener <- ev:
		default:
			// Listener buffer full, skip.
		}
	}
	return nil
}

// Fanout publishes to several publishers, logging failures.
type Fanout []Publisher

// Publish forwards ev to every publisher. Errors are logged, never returned,
// so a broken sink cannot fail a transition that already happened.
func (f Fanout) Publish(ev Event) error {
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ev); err != nil {
			log.Printf("Failed to publish %s event for user %s: %v", ev.Type, ev.UserID, err)
		}
	}
	return nil
}
