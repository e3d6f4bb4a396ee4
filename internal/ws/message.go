package ws

import (
	"time"

	"repcount/internal/session"
)

// CountMessage is pushed to clients on session start, stop and every rep.
type CountMessage struct {
	Type      string    `json:"type"` // "started", "count", "stopped" or "status"
	SessionID string    `json:"session_id,omitempty"`
	Exercise  string    `json:"exercise,omitempty"`
	Label     string    `json:"label,omitempty"`
	Count     int       `json:"count"`
	Stage     string    `json:"stage,omitempty"`
	Running   bool      `json:"running"`
	Timestamp time.Time `json:"timestamp"`
}

// FromEvent converts a session event to its wire message.
func FromEvent(ev session.Event) *CountMessage {
	return &CountMessage{
		Type:      string(ev.Kind),
		SessionID: ev.SessionID,
		Exercise:  ev.Exercise,
		Label:     ev.Label,
		Count:     ev.Count,
		Stage:     string(ev.Stage),
		Running:   ev.Kind != session.EventStopped,
		Timestamp: ev.Time,
	}
}

// FromStatus builds the snapshot message sent when a client connects.
func FromStatus(st session.Status) *CountMessage {
	return &CountMessage{
		Type:      "status",
		SessionID: st.ID,
		Exercise:  st.Exercise,
		Label:     st.Label,
		Count:     st.Count,
		Stage:     string(st.Stage),
		Running:   st.Running,
		Timestamp: time.Now(),
	}
}
