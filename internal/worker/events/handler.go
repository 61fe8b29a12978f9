package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/acme/hotline/internal/domain"
	"github.com/acme/hotline/internal/queue"
	"github.com/acme/hotline/internal/repository"
)

// Handler persists call events. Either store may be nil when not configured.
type Handler struct {
	log     repository.EventLog
	history repository.HistoryRepository
}

// NewHandler builds a handler writing to the given stores.
func NewHandler(log repository.EventLog, history repository.HistoryRepository) *Handler {
	return &Handler{log: log, history: history}
}

// Handle appends msg to the event log and records the call in history once it has ended.
func (h *Handler) Handle(ctx context.Context, msg queue.CallEventMessage) error {
	var errs []error

	if h.log != nil {
		if err := h.log.Append(ctx, eventRecord(msg)); err != nil {
			errs = append(errs, err)
		}
	}

	if h.history != nil && msg.Kind == string(domain.EventEnded) && msg.EndedAt != nil {
		if err := h.history.Record(ctx, historyRecord(msg)); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("events: persist %s: %w", msg.CallID, errors.Join(errs...))
	}
	return nil
}

func eventRecord(msg queue.CallEventMessage) repository.EventRecord {
	return repository.EventRecord{
		CallID:     msg.CallID,
		Seq:        int64(msg.Seq),
		EventID:    msg.EventID,
		Kind:       msg.Kind,
		Report:     msg.Report,
		FromState:  msg.FromState,
		ToState:    msg.ToState,
		Handle:     msg.Handle,
		Direction:  msg.Direction,
		OccurredAt: msg.OccurredAt,
	}
}

func historyRecord(msg queue.CallEventMessage) repository.HistoryRecord {
	return repository.HistoryRecord{
		CallID:     msg.CallID,
		Handle:     msg.Handle,
		Direction:  msg.Direction,
		EndedFrom:  msg.FromState,
		Answered:   msg.AnsweredAt != nil || msg.FromState == string(domain.CallStateActive),
		StartedAt:  msg.StartedAt,
		AnsweredAt: msg.AnsweredAt,
		EndedAt:    *msg.EndedAt,
		LastSeq:    int64(msg.Seq),
	}
}
