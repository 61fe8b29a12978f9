package call

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/hotline/internal/domain"
	"github.com/acme/hotline/internal/telephony"
	apperrors "github.com/acme/hotline/pkg/errors"
	"github.com/acme/hotline/pkg/logger"
)

// Registry is the call registry as seen by the service.
type Registry interface {
	StartCall(ctx context.Context, handle string, direction domain.CallDirection) (domain.Call, error)
	Progress(ctx context.Context, id uuid.UUID) (domain.Call, error)
	Establish(ctx context.Context, id uuid.UUID) (domain.Call, error)
	End(ctx context.Context, id uuid.UUID) (domain.Call, error)
	CallWithHandle(handle string) (domain.Call, bool)
	Call(id uuid.UUID) (domain.Call, bool)
	List() iter.Seq[domain.Call]
}

// Service coordinates call lifecycle operations between the registry and the SDK.
type Service struct {
	registry Registry
	dialer   telephony.Dialer
	logger   *logger.Logger
}

// NewService builds the call service.
func NewService(registry Registry, dialer telephony.Dialer, l *logger.Logger) *Service {
	if dialer == nil {
		dialer = telephony.NopDialer{}
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Service{registry: registry, dialer: dialer, logger: l}
}

// Place starts an outgoing call and hands it to the SDK. If the SDK refuses
// the call it is ended so the handle is free again.
func (s *Service) Place(ctx context.Context, handle string) (domain.Call, error) {
	call, err := s.registry.StartCall(ctx, handle, domain.DirectionOutgoing)
	if err != nil {
		return domain.Call{}, fmt.Errorf("call service: place: %w", err)
	}

	if err := s.dialer.Dial(ctx, call); err != nil {
		if _, endErr := s.registry.End(ctx, call.ID); endErr != nil {
			s.logger.Warn("call service: end after failed dial", zap.String("call_id", call.ID.String()), zap.Error(endErr))
		}
		return domain.Call{}, fmt.Errorf("call service: dial %s: %w", handle, err)
	}

	s.logger.Info("call service: call placed", zap.String("call_id", call.ID.String()), zap.String("handle", call.RemoteHandle))
	return call, nil
}

// Receive registers an incoming call reported by the SDK.
func (s *Service) Receive(ctx context.Context, handle string) (domain.Call, error) {
	call, err := s.registry.StartCall(ctx, handle, domain.DirectionIncoming)
	if err != nil {
		return domain.Call{}, fmt.Errorf("call service: receive: %w", err)
	}
	s.logger.Info("call service: incoming call", zap.String("call_id", call.ID.String()), zap.String("handle", call.RemoteHandle))
	return call, nil
}

// Toggle places a call to handle unless one already exists, in which case
// that call is returned and created is false.
func (s *Service) Toggle(ctx context.Context, handle string) (call domain.Call, created bool, err error) {
	if existing, ok := s.registry.CallWithHandle(handle); ok {
		return existing, false, nil
	}
	call, err = s.Place(ctx, handle)
	if err != nil {
		return domain.Call{}, false, err
	}
	return call, true, nil
}

// Progress records that the remote side is ringing.
func (s *Service) Progress(ctx context.Context, id uuid.UUID) (domain.Call, error) {
	call, err := s.registry.Progress(ctx, id)
	if err != nil {
		return domain.Call{}, fmt.Errorf("call service: progress: %w", err)
	}
	return call, nil
}

// Answer records that media is established.
func (s *Service) Answer(ctx context.Context, id uuid.UUID) (domain.Call, error) {
	call, err := s.registry.Establish(ctx, id)
	if err != nil {
		return domain.Call{}, fmt.Errorf("call service: answer: %w", err)
	}
	return call, nil
}

// Hangup ends the call and tells the SDK. The registry is updated first so the
// hang-up takes effect even if the SDK is unreachable.
func (s *Service) Hangup(ctx context.Context, id uuid.UUID) (domain.Call, error) {
	call, err := s.registry.End(ctx, id)
	if err != nil {
		return domain.Call{}, fmt.Errorf("call service: hangup: %w", err)
	}
	if err := s.dialer.Hangup(ctx, id); err != nil {
		s.logger.Warn("call service: sdk hangup", zap.String("call_id", id.String()), zap.Error(err))
	}
	return call, nil
}

// HangupHandle ends the live call with handle.
func (s *Service) HangupHandle(ctx context.Context, handle string) (domain.Call, error) {
	call, ok := s.registry.CallWithHandle(handle)
	if !ok {
		return domain.Call{}, fmt.Errorf("call service: hangup %q: %w", handle, apperrors.ErrNotFound)
	}
	return s.Hangup(ctx, call.ID)
}

// Get returns a call by id.
func (s *Service) Get(id uuid.UUID) (domain.Call, error) {
	call, ok := s.registry.Call(id)
	if !ok {
		return domain.Call{}, fmt.Errorf("call service: get %s: %w", id, apperrors.ErrNotFound)
	}
	return call, nil
}

// ByHandle returns the live call for handle.
func (s *Service) ByHandle(handle string) (domain.Call, error) {
	call, ok := s.registry.CallWithHandle(handle)
	if !ok {
		return domain.Call{}, fmt.Errorf("call service: lookup %q: %w", handle, apperrors.ErrNotFound)
	}
	return call, nil
}

// List returns all tracked calls in start order.
func (s *Service) List() []domain.Call {
	return slices.Collect(s.registry.List())
}
