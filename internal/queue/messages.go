package queue

import (
	"time"

	"github.com/google/uuid"
)

// CallEventMessage mirrors one registry transition to the call-provider side.
type CallEventMessage struct {
	EventID    uuid.UUID  `json:"event_id"`
	Seq        uint64     `json:"seq"`
	CallID     uuid.UUID  `json:"call_id"`
	Handle     string     `json:"handle"`
	Direction  string     `json:"direction"`
	Report     string     `json:"report"`
	Kind       string     `json:"kind"`
	FromState  string     `json:"from_state,omitempty"`
	ToState    string     `json:"to_state"`
	StartedAt  time.Time  `json:"started_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// SDKEventType enumerates events the calling SDK reports.
type SDKEventType string

const (
	SDKEventIncoming  SDKEventType = "incoming"
	SDKEventProgress  SDKEventType = "progress"
	SDKEventEstablish SDKEventType = "establish"
	SDKEventEnd       SDKEventType = "end"
)

// SDKEventMessage is a network event from the calling SDK. Incoming events carry
// a handle; the rest carry a call id, or a handle when the SDK does not know it.
type SDKEventMessage struct {
	Type       SDKEventType `json:"type"`
	Handle     string       `json:"handle,omitempty"`
	CallID     *uuid.UUID   `json:"call_id,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}
