// Package notify fans out engine events to subscribers, currently over
// WebSocket.
package notify

import (
	"encoding/json"
	"time"
)

// Event types pushed to clients.
const (
	EventTick          = "tick"
	EventCandle        = "candle"
	EventOrderExecuted = "order_executed"
	EventOrderRejected = "order_rejected"
	EventOrderOpen     = "order_open"
	EventPosition      = "position_update"
	EventLeaderboard   = "leaderboard_updated"
)

// Event is one notification. Payload is the event-specific body.
type Event struct {
	Type         string    `json:"type"`
	Symbol       string    `json:"symbol,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	TournamentID string    `json:"tournament_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      any       `json:"payload,omitempty"`
}

func (e Event) marshal() ([]byte, bool) {
	raw, err := json.Marshal(e)
	return raw, err == nil
}

// Sink receives events. Publish must never block the caller.
type Sink interface {
	Publish(e Event)
}

// NopSink discards everything; used in tests.
type NopSink struct{}

func (NopSink) Publish(Event) {}
