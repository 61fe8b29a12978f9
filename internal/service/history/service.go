package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/acme/hotline/internal/repository"
	"github.com/acme/hotline/internal/service/common"
	apperrors "github.com/acme/hotline/pkg/errors"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Service reads persisted call history and event logs. Either store may be nil
// when not configured, in which case its operations report ErrUnavailable.
type Service struct {
	history repository.HistoryRepository
	events  repository.EventLog
}

// Page is one page of finished calls.
type Page struct {
	Items      []repository.HistoryRecord `json:"items"`
	NextCursor string                     `json:"next_cursor,omitempty"`
}

// EventPage is one page of a call's events.
type EventPage struct {
	Items     []repository.EventRecord `json:"items"`
	PageToken string                   `json:"page_token,omitempty"`
}

// NewService builds the history service.
func NewService(history repository.HistoryRepository, events repository.EventLog) *Service {
	return &Service{history: history, events: events}
}

// List returns finished calls newest first.
func (s *Service) List(ctx context.Context, cursor string, limit int) (Page, error) {
	if s.history == nil {
		return Page{}, apperrors.Wrap(apperrors.ErrUnavailable, "history: not configured")
	}
	limit = clampLimit(limit)

	before, err := decodeCursor(cursor)
	if err != nil {
		return Page{}, err
	}

	items, err := s.history.List(ctx, before, limit)
	if err != nil {
		return Page{}, fmt.Errorf("history: list: %w", err)
	}

	page := Page{Items: items}
	if len(items) == limit {
		last := items[len(items)-1]
		next, err := common.EncodeCursor(repository.HistoryCursor{EndedAt: last.EndedAt, CallID: last.CallID})
		if err != nil {
			return Page{}, fmt.Errorf("history: %w", err)
		}
		page.NextCursor = next
	}
	return page, nil
}

// Events returns the logged events of a call.
func (s *Service) Events(ctx context.Context, callID uuid.UUID, pageToken string, limit int) (EventPage, error) {
	if s.events == nil {
		return EventPage{}, apperrors.Wrap(apperrors.ErrUnavailable, "history: event log not configured")
	}

	var state []byte
	if pageToken != "" {
		decoded, err := common.DecodeBase64(pageToken)
		if err != nil {
			return EventPage{}, fmt.Errorf("history: page token: %w", apperrors.ErrValidation)
		}
		state = decoded
	}

	items, next, err := s.events.ListByCall(ctx, callID, clampLimit(limit), state)
	if err != nil {
		return EventPage{}, fmt.Errorf("history: events: %w", err)
	}

	page := EventPage{Items: items}
	if len(next) > 0 {
		page.PageToken = common.EncodeBase64(next)
	}
	return page, nil
}

// HandleStats returns aggregate counters for a handle.
func (s *Service) HandleStats(ctx context.Context, handle string) (*repository.HandleStats, error) {
	if s.history == nil {
		return nil, apperrors.Wrap(apperrors.ErrUnavailable, "history: not configured")
	}
	stats, err := s.history.HandleStats(ctx, strings.TrimSpace(handle))
	if err != nil {
		return nil, fmt.Errorf("history: stats %q: %w", handle, err)
	}
	return stats, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}

func decodeCursor(s string) (*repository.HistoryCursor, error) {
	if s == "" {
		return nil, nil
	}
	var c repository.HistoryCursor
	if err := common.DecodeCursor(s, &c); err != nil || c.CallID == uuid.Nil {
		return nil, fmt.Errorf("history: cursor: %w", apperrors.ErrValidation)
	}
	return &c, nil
}
