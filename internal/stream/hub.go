// Package stream broadcasts live simulation events to WebSocket
// subscribers.
package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/echolabs/echosim/internal/engine"
	"github.com/echolabs/echosim/internal/targeting"
)

// Event is one message on the wire.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

const (
	EventRoundStarted   = "round_started"
	EventRoundCompleted = "round_completed"
	EventSessionEnded   = "session_ended"
)

type subscriber struct {
	sessionID string // empty means all sessions
	ch        chan []byte
}

// Hub fans simulation events out to subscribers. It implements
// engine.EventSink; controllers publish through it without knowing
// who listens. Slow subscribers lose events instead of slowing the
// simulation down.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
	log  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{subs: make(map[*subscriber]struct{}), log: log}
}

// Subscribe registers a listener for one session's events, or for all
// sessions when sessionID is empty. The returned cancel func must be
// called when the listener goes away.
func (h *Hub) Subscribe(sessionID string, buffer int) (<-chan []byte, func()) {
	if buffer < 1 {
		buffer = 16
	}
	sub := &subscriber{sessionID: sessionID, ch: make(chan []byte, buffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[sub]; ok {
			delete(h.subs, sub)
			close(sub.ch)
		}
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// RoundStarted implements engine.EventSink.
func (h *Hub) RoundStarted(sessionID string, round int, targets []targeting.Target) {
	h.publish(Event{
		Type:      EventRoundStarted,
		SessionID: sessionID,
		Payload: map[string]any{
			"round":   round,
			"targets": targets,
		},
	})
}

// RoundCompleted implements engine.EventSink.
func (h *Hub) RoundCompleted(sessionID string, rec engine.RoundRecord) {
	h.publish(Event{
		Type:      EventRoundCompleted,
		SessionID: sessionID,
		Payload:   rec,
	})
}

// SessionEnded implements engine.EventSink.
func (h *Hub) SessionEnded(sessionID string, reason engine.StopReason) {
	h.publish(Event{
		Type:      EventSessionEnded,
		SessionID: sessionID,
		Payload:   map[string]any{"stop_reason": reason},
	})
}

func (h *Hub) publish(ev Event) {
	ev.Timestamp = time.Now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to encode event", "type", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.sessionID != "" && sub.sessionID != ev.SessionID {
			continue
		}
		select {
		case sub.ch <- data:
		default:
			// Subscriber is not keeping up; drop rather than block.
		}
	}
}

// SubscriberCount reports the current number of listeners.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
