package realtime

import (
	"encoding/json"
	"time"
)

// Broadcast event vocabulary. Broadcasts are ephemeral fire-and-forget
// messages; row changes mirror durable store mutations.
const (
	EventDiceRolled        = "dice-rolled"
	EventDoubleDownApplied = "double-down-applied"
	EventKPIUpdated        = "kpi-updated"
	EventSessionEnded      = "session-ended"
)

// Tables that produce row-change notifications.
const (
	TableSessions  = "sessions"
	TableDecisions = "team_decisions"
	TableRoundData = "team_round_data"
)

const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

type messageKind string

const (
	kindBroadcast messageKind = "broadcast"
	kindRowChange messageKind = "row_change"
)

// Message is the wire envelope on a session channel.
type Message struct {
	Kind      messageKind     `json:"kind"`
	Event     string          `json:"event,omitempty"`
	Table     string          `json:"table,omitempty"`
	Op        string          `json:"op,omitempty"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SentAt    time.Time       `json:"sent_at"`
}

// RowChange is a durable-mutation notification as seen by a subscriber.
type RowChange struct {
	Table     string
	Op        string
	SessionID string
	Payload   json.RawMessage
}

// BroadcastMsg is an ephemeral event as seen by a subscriber.
type BroadcastMsg struct {
	Event     string
	SessionID string
	Payload   json.RawMessage
}

// Status of one subscription's underlying connection.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	// StatusDegraded means the resubscribe budget is exhausted; dependents
	// should switch to their polling fallback.
	StatusDegraded Status = "degraded"
)

// Handlers receives subscription callbacks. Any nil handler is skipped.
// Callbacks run on the subscription goroutine; panics are swallowed and
// logged so one malformed payload cannot tear down the subscription.
type Handlers struct {
	OnRowChange func(RowChange)
	OnBroadcast func(BroadcastMsg)
	OnStatus    func(Status)
}
