package registry

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/acme/hotline/internal/domain"
)

type blockingObserver struct {
	release chan struct{}
	got     chan domain.Event
}

func (b *blockingObserver) Notify(_ context.Context, ev domain.Event) error {
	<-b.release
	b.got <- ev
	return nil
}

func TestAsyncObserverPreservesOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	async := NewAsyncObserver("test", rec, 16, nil)
	async.Start(ctx)

	for i := 1; i <= 5; i++ {
		_ = async.Notify(ctx, domain.Event{Seq: uint64(i)})
	}
	async.Stop()

	var seqs []uint64
	for _, ev := range rec.events {
		seqs = append(seqs, ev.Seq)
	}
	if !slices.Equal(seqs, []uint64{1, 2, 3, 4, 5}) {
		t.Fatalf("expected ordered delivery, got %v", seqs)
	}
}

func TestAsyncObserverDropsWhenFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := &blockingObserver{release: make(chan struct{}), got: make(chan domain.Event, 8)}
	async := NewAsyncObserver("slow", slow, 1, nil)
	async.Start(ctx)

	// first event is picked up by the goroutine and blocks there
	_ = async.Notify(ctx, domain.Event{Seq: 1})
	deadline := time.After(time.Second)
	for len(async.queue) != 0 {
		select {
		case <-deadline:
			t.Fatalf("delivery goroutine never picked up the first event")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	done := make(chan struct{})
	go func() {
		_ = async.Notify(ctx, domain.Event{Seq: 2}) // fills the queue
		_ = async.Notify(ctx, domain.Event{Seq: 3}) // dropped
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("notify blocked on a full queue")
	}

	if async.Dropped() != 1 {
		t.Fatalf("expected one dropped event, got %d", async.Dropped())
	}

	close(slow.release)
	async.Stop()
	close(slow.got)

	var seqs []uint64
	for ev := range slow.got {
		seqs = append(seqs, ev.Seq)
	}
	if !slices.Equal(seqs, []uint64{1, 2}) {
		t.Fatalf("expected events 1 and 2, got %v", seqs)
	}
}

type slowObserver struct {
	mu        sync.Mutex
	delivered int
	cancelled int
}

func (s *slowObserver) Notify(ctx context.Context, _ domain.Event) error {
	time.Sleep(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered++
	if ctx.Err() != nil {
		s.cancelled++
	}
	return nil
}

func TestAsyncObserverDeliversQueuedEventsAfterCancel(t *testing.T) {
	for run := 0; run < 20; run++ {
		ctx, cancel := context.WithCancel(context.Background())
		slow := &slowObserver{}
		async := NewAsyncObserver("slow", slow, 16, nil)
		async.Start(ctx)

		for i := 1; i <= 10; i++ {
			_ = async.Notify(ctx, domain.Event{Seq: uint64(i)})
		}
		cancel()
		async.Stop()

		if slow.delivered != 10 {
			t.Fatalf("run %d: expected 10 delivered events, got %d (dropped %d)", run, slow.delivered, async.Dropped())
		}
		if slow.cancelled != 0 {
			t.Fatalf("run %d: %d events were delivered with a cancelled context", run, slow.cancelled)
		}
	}
}

func TestAsyncObserverStopWithoutStart(t *testing.T) {
	async := NewAsyncObserver("idle", &recorder{}, 4, nil)
	async.Stop()
	async.Stop()
}

func TestPrunerTick(t *testing.T) {
	ctx := context.Background()
	reg, _, clock := newTestRegistry(t)

	call, _ := reg.StartCall(ctx, "uma", domain.DirectionOutgoing)
	if _, err := reg.End(ctx, call.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	p := NewPruner(reg, time.Minute, time.Second, nil)
	p.now = clock.Now
	if n := p.tick(ctx); n != 0 {
		t.Fatalf("expected nothing pruned inside retention, got %d", n)
	}
	clock.Advance(2 * time.Minute)
	if n := p.tick(ctx); n != 1 {
		t.Fatalf("expected one pruned call, got %d", n)
	}
}

func TestPrunerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPruner(New(), time.Minute, time.Millisecond, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("pruner did not stop")
	}
}
