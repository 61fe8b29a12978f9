package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/acme/hotline/internal/domain"
	"github.com/acme/hotline/pkg/logger"
)

// deliveryTimeout bounds a single hand-off to the wrapped observer.
const deliveryTimeout = 10 * time.Second

// AsyncObserver hands events to a wrapped observer on its own goroutine.
// Order is preserved; when the queue is full the event is dropped rather than
// blocking the registry writer. Events already queued are delivered even after
// the start context is cancelled, until Stop returns.
type AsyncObserver struct {
	name    string
	next    Observer
	queue   chan domain.Event
	logger  *logger.Logger
	dropped atomic.Uint64
	timeout time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	quit      chan struct{}
	done      chan struct{}
}

// NewAsyncObserver wraps next with a queue of the given capacity.
func NewAsyncObserver(name string, next Observer, capacity int, l *logger.Logger) *AsyncObserver {
	if capacity <= 0 {
		capacity = 1
	}
	if l == nil {
		l = logger.Nop()
	}
	return &AsyncObserver{
		name:    name,
		next:    next,
		queue:   make(chan domain.Event, capacity),
		logger:  l,
		timeout: deliveryTimeout,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Notify enqueues the event without blocking.
func (a *AsyncObserver) Notify(_ context.Context, ev domain.Event) error {
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
		a.logger.Warn("async observer: queue full, dropping event",
			zap.String("observer", a.name),
			zap.String("call_id", ev.Call.ID.String()),
			zap.Uint64("seq", ev.Seq),
		)
	}
	return nil
}

// Start launches the delivery goroutine. Values of ctx reach the wrapped
// observer but its cancellation does not; the goroutine runs until Stop.
func (a *AsyncObserver) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		a.started.Store(true)
		go a.run(context.WithoutCancel(ctx))
	})
}

func (a *AsyncObserver) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case ev := <-a.queue:
			a.deliver(ctx, ev)
		case <-a.quit:
			a.drain(ctx)
			return
		}
	}
}

// drain delivers whatever is still queued when Stop is called.
func (a *AsyncObserver) drain(ctx context.Context) {
	for {
		select {
		case ev := <-a.queue:
			a.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (a *AsyncObserver) deliver(ctx context.Context, ev domain.Event) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.next.Notify(ctx, ev); err != nil {
		a.logger.Error("async observer: delivery failed",
			zap.String("observer", a.name),
			zap.String("call_id", ev.Call.ID.String()),
			zap.String("event", string(ev.Kind)),
			zap.Error(err),
		)
	}
}

// Stop flushes queued events and waits for the goroutine to exit.
func (a *AsyncObserver) Stop() {
	a.stopOnce.Do(func() {
		close(a.quit)
	})
	if a.started.Load() {
		<-a.done
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (a *AsyncObserver) Dropped() uint64 {
	return a.dropped.Load()
}
