package inbound

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/acme/hotline/internal/domain"
	"github.com/acme/hotline/internal/queue"
	apperrors "github.com/acme/hotline/pkg/errors"
)

// Calls is the part of the call service driven by SDK events.
type Calls interface {
	Receive(ctx context.Context, handle string) (domain.Call, error)
	Progress(ctx context.Context, id uuid.UUID) (domain.Call, error)
	Answer(ctx context.Context, id uuid.UUID) (domain.Call, error)
	Hangup(ctx context.Context, id uuid.UUID) (domain.Call, error)
	ByHandle(handle string) (domain.Call, error)
}

// Handler applies one SDK event to the registry through the call service.
type Handler struct {
	calls Calls
}

// NewHandler builds a handler over the call service.
func NewHandler(calls Calls) *Handler {
	return &Handler{calls: calls}
}

// Handle applies msg and returns the resulting call.
func (h *Handler) Handle(ctx context.Context, msg queue.SDKEventMessage) (domain.Call, error) {
	if msg.Type == queue.SDKEventIncoming {
		return h.calls.Receive(ctx, msg.Handle)
	}

	id, err := h.resolve(msg)
	if err != nil {
		return domain.Call{}, err
	}

	switch msg.Type {
	case queue.SDKEventProgress:
		return h.calls.Progress(ctx, id)
	case queue.SDKEventEstablish:
		return h.calls.Answer(ctx, id)
	case queue.SDKEventEnd:
		return h.calls.Hangup(ctx, id)
	default:
		return domain.Call{}, fmt.Errorf("inbound: unknown event type %q: %w", msg.Type, apperrors.ErrValidation)
	}
}

func (h *Handler) resolve(msg queue.SDKEventMessage) (uuid.UUID, error) {
	if msg.CallID != nil && *msg.CallID != uuid.Nil {
		return *msg.CallID, nil
	}
	if msg.Handle == "" {
		return uuid.Nil, fmt.Errorf("inbound: %s event without call id or handle: %w", msg.Type, apperrors.ErrValidation)
	}
	call, err := h.calls.ByHandle(msg.Handle)
	if err != nil {
		return uuid.Nil, err
	}
	return call.ID, nil
}
