// Package registry keeps the single authoritative record of in-progress calls.
//
// All mutations go through one mutex and are delivered to observers while it is
// held, so every observer sees the same ordered stream of transitions. Readers
// use an immutable snapshot published after each mutation and never wait on a
// writer.
package registry

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/hotline/internal/domain"
	apperrors "github.com/acme/hotline/pkg/errors"
	"github.com/acme/hotline/pkg/logger"
)

// Observer receives every successful transition, in registration order.
// Notify runs on the writer's goroutine; it must not call mutating registry methods.
type Observer interface {
	Notify(ctx context.Context, ev domain.Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev domain.Event) error

// Notify calls f.
func (f ObserverFunc) Notify(ctx context.Context, ev domain.Event) error {
	return f(ctx, ev)
}

// PruneObserver is implemented by observers that want to hear about pruned calls.
type PruneObserver interface {
	Pruned(ctx context.Context, ids []uuid.UUID)
}

// Registry tracks calls by id and by remote handle.
type Registry struct {
	mu        sync.Mutex
	calls     map[uuid.UUID]*domain.Call
	order     []uuid.UUID
	byHandle  map[string]uuid.UUID
	observers []Observer
	seq       uint64

	snap atomic.Pointer[snapshot]

	logger *logger.Logger
	now    func() time.Time
	newID  func() uuid.UUID
}

// Option customises a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report observer failures.
func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides call id generation.
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(r *Registry) { r.newID = gen }
}

// New builds an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		calls:    make(map[uuid.UUID]*domain.Call),
		byHandle: make(map[string]uuid.UUID),
		logger:   logger.Nop(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.snap.Store(emptySnapshot())
	return r
}

// Register appends an observer. Observers registered later see only later transitions.
func (r *Registry) Register(o Observer) {
	if o == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// StartCall creates a ringing call for handle.
func (r *Registry) StartCall(ctx context.Context, handle string, direction domain.CallDirection) (domain.Call, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return domain.Call{}, fmt.Errorf("registry: start call: %w: handle is required", apperrors.ErrValidation)
	}
	if !direction.Valid() {
		return domain.Call{}, fmt.Errorf("registry: start call: %w: unknown direction %q", apperrors.ErrValidation, direction)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byHandle[handle]; ok {
		return domain.Call{}, fmt.Errorf("registry: start call for %q (existing %s): %w", handle, id, apperrors.ErrDuplicateCall)
	}

	now := r.now()
	call := &domain.Call{
		ID:           r.newID(),
		RemoteHandle: handle,
		Direction:    direction,
		State:        domain.CallStateRinging,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.calls[call.ID] = call
	r.order = append(r.order, call.ID)
	r.byHandle[handle] = call.ID

	return r.commit(ctx, domain.EventStarted, call, "", now), nil
}

// Progress moves a ringing call to establishing.
func (r *Registry) Progress(ctx context.Context, id uuid.UUID) (domain.Call, error) {
	return r.transition(ctx, id, domain.CallStateEstablishing, domain.EventProgressed)
}

// Establish moves a ringing or establishing call to active.
func (r *Registry) Establish(ctx context.Context, id uuid.UUID) (domain.Call, error) {
	return r.transition(ctx, id, domain.CallStateActive, domain.EventEstablished)
}

// End terminates a call from any state. Ending an ended call returns it unchanged.
func (r *Registry) End(ctx context.Context, id uuid.UUID) (domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[id]
	if !ok {
		return domain.Call{}, fmt.Errorf("registry: end %s: %w", id, apperrors.ErrNotFound)
	}
	if call.Ended() {
		return call.Clone(), nil
	}

	from := call.State
	now := r.now()
	call.State = domain.CallStateEnded
	call.EndedFrom = from
	call.EndedAt = &now
	call.UpdatedAt = now
	delete(r.byHandle, call.RemoteHandle)

	return r.commit(ctx, domain.EventEnded, call, from, now), nil
}

func (r *Registry) transition(ctx context.Context, id uuid.UUID, next domain.CallState, kind domain.EventKind) (domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[id]
	if !ok || call.Ended() {
		return domain.Call{}, fmt.Errorf("registry: %s %s: %w", kind, id, apperrors.ErrNotFound)
	}
	if !call.State.CanTransition(next) {
		return domain.Call{}, fmt.Errorf("registry: %s %s from %s: %w", kind, id, call.State, apperrors.ErrInvalidTransition)
	}

	from := call.State
	now := r.now()
	call.State = next
	call.UpdatedAt = now
	if next == domain.CallStateActive {
		call.AnsweredAt = &now
	}

	return r.commit(ctx, kind, call, from, now), nil
}

// commit publishes a new snapshot and notifies observers. Callers hold r.mu.
func (r *Registry) commit(ctx context.Context, kind domain.EventKind, call *domain.Call, from domain.CallState, at time.Time) domain.Call {
	r.publish()

	r.seq++
	ev := domain.Event{
		Seq:  r.seq,
		Kind: kind,
		Call: call.Clone(),
		From: from,
		To:   call.State,
		At:   at,
	}
	for _, o := range r.observers {
		if err := o.Notify(ctx, ev); err != nil {
			r.logger.Warn("registry: observer failed",
				zap.Error(err),
				zap.String("call_id", call.ID.String()),
				zap.String("event", string(kind)),
			)
		}
	}
	return call.Clone()
}

// Prune drops ended calls that ended before cutoff and returns how many were removed.
func (r *Registry) Prune(ctx context.Context, cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []uuid.UUID
	kept := r.order[:0]
	for _, id := range r.order {
		call := r.calls[id]
		if call.Ended() && call.EndedAt != nil && call.EndedAt.Before(cutoff) {
			delete(r.calls, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	if len(removed) == 0 {
		return 0
	}

	r.publish()
	for _, o := range r.observers {
		if po, ok := o.(PruneObserver); ok {
			po.Pruned(ctx, removed)
		}
	}
	return len(removed)
}

// CallWithHandle returns the non-ended call for handle, if any.
func (r *Registry) CallWithHandle(handle string) (domain.Call, bool) {
	return r.snap.Load().byHandle(strings.TrimSpace(handle))
}

// Call returns the call with id, including ended calls not yet pruned.
func (r *Registry) Call(id uuid.UUID) (domain.Call, bool) {
	return r.snap.Load().byID(id)
}

// List returns the calls in start order as of the moment List is called.
// The sequence can be ranged over any number of times and always yields the same calls.
func (r *Registry) List() iter.Seq[domain.Call] {
	return r.snap.Load().all()
}

// Len reports the number of tracked calls, ended ones included.
func (r *Registry) Len() int {
	return len(r.snap.Load().calls)
}
