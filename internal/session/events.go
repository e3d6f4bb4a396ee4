package session

import (
	"sync"
	"time"

	"repcount/internal/exercise"
)

// EventKind tells subscribers what happened to the session.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventCount   EventKind = "count"
	EventStopped EventKind = "stopped"
)

// Event is published on session start, stop and every count change.
type Event struct {
	Kind      EventKind      `json:"kind"`
	SessionID string         `json:"session_id"`
	Exercise  string         `json:"exercise"`
	Label     string         `json:"label"`
	Count     int            `json:"count"`
	Stage     exercise.Stage `json:"stage,omitempty"`
	Time      time.Time      `json:"time"`
}

// EventBus fans session events out to buffered channel subscribers.
// Publish never blocks: a subscriber that falls behind misses events.
type EventBus struct {
	subscribers map[chan Event]bool
	mu          sync.RWMutex
}

// NewEventBus creates an empty event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[chan Event]bool),
	}
}

// SubscribeChannel returns a buffered channel of events. Events are dropped
// while the channel is full. The channel is closed on unsubscribe or Close.
func (b *EventBus) SubscribeChannel(bufferSize int) (<-chan Event, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}
	ch := make(chan Event, bufferSize)

	b.mu.Lock()
	b.subscribers[ch] = true
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.subscribers[ch] {
			delete(b.subscribers, ch)
			close(ch)
		}
	}
}

// Publish delivers an event to all subscribers
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// Channel full, skip this event
		}
	}
}

// Close unsubscribes everyone and closes channels
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
