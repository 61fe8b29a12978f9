package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallDirection tells who placed the call.
type CallDirection string

const (
	DirectionIncoming CallDirection = "incoming"
	DirectionOutgoing CallDirection = "outgoing"
)

// Valid reports whether d is a known direction.
func (d CallDirection) Valid() bool {
	return d == DirectionIncoming || d == DirectionOutgoing
}

// CallState enumerates lifecycle stages of a call session.
type CallState string

const (
	CallStateRinging      CallState = "ringing"
	CallStateEstablishing CallState = "establishing"
	CallStateActive       CallState = "active"
	CallStateEnded        CallState = "ended"
)

// IsTerminal reports whether no further transition is possible.
func (s CallState) IsTerminal() bool {
	return s == CallStateEnded
}

// CanTransition reports whether the lifecycle allows moving from s to next.
//
//	ringing -> establishing -> active -> ended
//	ringing -> active
//	any non-ended -> ended
func (s CallState) CanTransition(next CallState) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case CallStateEstablishing:
		return s == CallStateRinging
	case CallStateActive:
		return s == CallStateRinging || s == CallStateEstablishing
	case CallStateEnded:
		return true
	default:
		return false
	}
}

// Call is one telephony session with a remote party. AnsweredAt is set when
// the call becomes active.
type Call struct {
	ID           uuid.UUID
	RemoteHandle string
	Direction    CallDirection
	State        CallState
	CreatedAt    time.Time
	UpdatedAt    time.Time
	AnsweredAt   *time.Time
	EndedAt      *time.Time
	// EndedFrom is the state the call left when it ended; empty until then.
	EndedFrom CallState
}

// Ended reports whether the call reached its terminal state.
func (c Call) Ended() bool {
	return c.State.IsTerminal()
}

// Clone returns a copy that shares no pointers with c.
func (c Call) Clone() Call {
	if c.AnsweredAt != nil {
		t := *c.AnsweredAt
		c.AnsweredAt = &t
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		c.EndedAt = &t
	}
	return c
}

// EventKind names a registry transition.
type EventKind string

const (
	EventStarted     EventKind = "started"
	EventProgressed  EventKind = "progressed"
	EventEstablished EventKind = "established"
	EventEnded       EventKind = "ended"
)

// Event describes one successful transition. Call holds the state after it.
type Event struct {
	Seq  uint64
	Kind EventKind
	Call Call
	From CallState
	To   CallState
	At   time.Time
}
