package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/acme/hotline/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// EventLog keeps every reported transition per call.
type EventLog interface {
	Append(ctx context.Context, record EventRecord) error
	ListByCall(ctx context.Context, callID uuid.UUID, limit int, pagingState []byte) ([]EventRecord, []byte, error)
}

// HistoryRepository keeps one row per ended call plus per-handle counters.
type HistoryRepository interface {
	Record(ctx context.Context, record HistoryRecord) error
	List(ctx context.Context, before *HistoryCursor, limit int) ([]HistoryRecord, error)
	HandleStats(ctx context.Context, handle string) (*HandleStats, error)
}

// EventRecord is the storage representation of one call event.
type EventRecord struct {
	CallID     uuid.UUID
	Seq        int64
	EventID    uuid.UUID
	Kind       string
	Report     string
	FromState  string
	ToState    string
	Handle     string
	Direction  string
	OccurredAt time.Time
}

// HistoryRecord describes a finished call.
type HistoryRecord struct {
	CallID     uuid.UUID  `db:"call_id" json:"call_id"`
	Handle     string     `db:"handle" json:"handle"`
	Direction  string     `db:"direction" json:"direction"`
	EndedFrom  string     `db:"ended_from" json:"ended_from"`
	Answered   bool       `db:"answered" json:"answered"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	AnsweredAt *time.Time `db:"answered_at" json:"answered_at,omitempty"`
	EndedAt    time.Time  `db:"ended_at" json:"ended_at"`
	LastSeq    int64      `db:"last_seq" json:"-"`
}

// Duration is how long the call lasted, ringing included.
func (r HistoryRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// TalkTime is the time between answer and hang-up; zero for unanswered calls.
func (r HistoryRecord) TalkTime() time.Duration {
	if r.AnsweredAt == nil || r.EndedAt.Before(*r.AnsweredAt) {
		return 0
	}
	return r.EndedAt.Sub(*r.AnsweredAt)
}

// HistoryCursor marks the last row of a history page; the next page starts after it.
type HistoryCursor struct {
	EndedAt time.Time `json:"ended_at"`
	CallID  uuid.UUID `json:"call_id"`
}

// HandleStats aggregates finished calls for one handle.
type HandleStats struct {
	Handle        string    `db:"handle" json:"handle"`
	TotalCalls    int64     `db:"total_calls" json:"total_calls"`
	AnsweredCalls int64     `db:"answered_calls" json:"answered_calls"`
	IncomingCalls int64     `db:"incoming_calls" json:"incoming_calls"`
	OutgoingCalls int64     `db:"outgoing_calls" json:"outgoing_calls"`
	TalkSeconds   int64     `db:"talk_seconds" json:"talk_seconds"`
	LastCallAt    time.Time `db:"last_call_at" json:"last_call_at"`
}
