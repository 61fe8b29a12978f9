package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/hotline/internal/repository"
)

// EventLog persists call events in Scylla, one partition per call.
type EventLog struct {
	session *gocql.Session
}

// NewEventLog creates a new event log.
func NewEventLog(session *gocql.Session) *EventLog {
	return &EventLog{session: session}
}

// Append inserts an event. Rows are keyed by (call_id, seq) so redelivery overwrites.
func (l *EventLog) Append(ctx context.Context, record repository.EventRecord) error {
	if err := l.session.Query(`INSERT INTO call_events (call_id, seq, event_id, kind, report, from_state, to_state, handle, direction, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.CallID.String(), record.Seq, record.EventID.String(), record.Kind, record.Report,
		record.FromState, record.ToState, record.Handle, record.Direction, record.OccurredAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("event log: insert call_events: %w", err)
	}
	return nil
}

// ListByCall lists a call's events in order with pagination.
func (l *EventLog) ListByCall(ctx context.Context, callID uuid.UUID, limit int, pagingState []byte) ([]repository.EventRecord, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := l.session.Query(`SELECT seq, event_id, kind, report, from_state, to_state, handle, direction, occurred_at
		FROM call_events WHERE call_id = ?`, callID.String()).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	records := make([]repository.EventRecord, 0, limit)

	var (
		seq        int64
		eventIDStr string
		kind       string
		report     string
		fromState  string
		toState    string
		handle     string
		direction  string
		occurredAt time.Time
	)

	for len(records) < limit && iter.Scan(&seq, &eventIDStr, &kind, &report, &fromState, &toState, &handle, &direction, &occurredAt) {
		eventID, err := uuid.Parse(eventIDStr)
		if err != nil {
			continue
		}
		records = append(records, repository.EventRecord{
			CallID:     callID,
			Seq:        seq,
			EventID:    eventID,
			Kind:       kind,
			Report:     report,
			FromState:  fromState,
			ToState:    toState,
			Handle:     handle,
			Direction:  direction,
			OccurredAt: occurredAt,
		})
	}

	nextState := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("event log: iter close: %w", err)
	}

	return records, nextState, nil
}
