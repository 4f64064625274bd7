// Package events fans control-plane notifications out to live listeners.
package events

import (
	"sync"
	"time"
)

// Event types published by the monitor.
const (
	TypeReady              = "events.ready"
	TypeStatusUpdated      = "status.updated"
	TypeRegistryUpdated    = "registry.updated"
	TypeActionCompleted    = "action.completed"
	TypeDiscoveryCompleted = "discovery.completed"
	TypeDescriptorsChanged = "descriptors.changed"
)

const defaultBuffer = 16

// Event is one notification. EventID is assigned by Hub.Publish and grows
// monotonically for the lifetime of the hub.
type Event struct {
	EventID   int64          `json:"eventId"`
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(eventType string, payload map[string]any) Event {
	return Event{Type: eventType, Timestamp: stamp(), Payload: payload}
}

func stamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Hub delivers events to listeners without ever blocking the publisher. A
// listener whose buffer is full misses the event; the next status event
// carries the current state anyway.
type Hub struct {
	mu        sync.Mutex
	seq       int64
	listeners map[chan Event]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{listeners: make(map[chan Event]struct{})}
}

// Subscribe registers a listener with the given buffer size. The returned
// cancel func closes the channel and is safe to call more than once. A nil
// hub hands out an already-closed channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if h == nil {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.listeners[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() { h.drop(ch) }
}

func (h *Hub) drop(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listeners[ch]; !ok {
		return
	}
	delete(h.listeners, ch)
	close(ch)
}

// Publish assigns the next EventID, fills in a missing timestamp and hands
// the event to every listener that has room for it.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = stamp()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	event.EventID = h.seq
	for ch := range h.listeners {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers returns the number of live listeners.
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
