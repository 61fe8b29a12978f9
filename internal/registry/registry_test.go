package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/hotline/internal/domain"
	apperrors "github.com/acme/hotline/pkg/errors"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
	pruned []uuid.UUID
}

func (r *recorder) Notify(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Pruned(_ context.Context, ids []uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruned = append(r.pruned, ids...)
}

func (r *recorder) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T) (*Registry, *recorder, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	reg := New(WithClock(clock.Now))
	rec := &recorder{}
	reg.Register(rec)
	return reg, rec, clock
}

func TestCallLifecycleNotifiesInOrder(t *testing.T) {
	ctx := context.Background()
	reg, rec, _ := newTestRegistry(t)

	call, err := reg.StartCall(ctx, "alice", domain.DirectionOutgoing)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if call.State != domain.CallStateRinging {
		t.Fatalf("expected ringing, got %s", call.State)
	}
	if _, err := reg.Progress(ctx, call.ID); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if _, err := reg.Establish(ctx, call.ID); err != nil {
		t.Fatalf("establish: %v", err)
	}
	ended, err := reg.End(ctx, call.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}

	want := []domain.EventKind{domain.EventStarted, domain.EventProgressed, domain.EventEstablished, domain.EventEnded}
	if got := rec.kinds(); !slices.Equal(got, want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i, ev := range rec.events {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, ev.Seq)
		}
	}
	if ended.EndedFrom != domain.CallStateActive || ended.EndedAt == nil {
		t.Fatalf("expected ended from active with timestamp, got %+v", ended)
	}
	if _, ok := reg.CallWithHandle("alice"); ok {
		t.Fatalf("expected no call for alice after end")
	}
}

func TestStartCallRejectsDuplicateHandle(t *testing.T) {
	ctx := context.Background()
	reg, rec, _ := newTestRegistry(t)

	first, err := reg.StartCall(ctx, "bob", domain.DirectionOutgoing)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = reg.StartCall(ctx, "bob", domain.DirectionIncoming)
	if !errors.Is(err, apperrors.ErrDuplicateCall) {
		t.Fatalf("expected duplicate call error, got %v", err)
	}
	if len(rec.kinds()) != 1 {
		t.Fatalf("expected failed start to emit nothing, got %v", rec.kinds())
	}
	current, ok := reg.CallWithHandle("bob")
	if !ok || current.ID != first.ID || current.Direction != domain.DirectionOutgoing {
		t.Fatalf("expected original call to be untouched, got %+v", current)
	}

	if _, err := reg.End(ctx, first.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	again, err := reg.StartCall(ctx, "bob", domain.DirectionIncoming)
	if err != nil {
		t.Fatalf("expected new call after end, got %v", err)
	}
	if again.ID == first.ID {
		t.Fatalf("expected a fresh call id")
	}
}

func TestStartCallValidation(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if _, err := reg.StartCall(context.Background(), "  ", domain.DirectionOutgoing); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error for blank handle, got %v", err)
	}
	if _, err := reg.StartCall(context.Background(), "carol", domain.CallDirection("up")); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error for direction, got %v", err)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, rec, clock := newTestRegistry(t)

	call, _ := reg.StartCall(ctx, "dave", domain.DirectionIncoming)
	first, err := reg.End(ctx, call.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	clock.Advance(time.Minute)
	second, err := reg.End(ctx, call.ID)
	if err != nil {
		t.Fatalf("second end should not fail, got %v", err)
	}
	if second.State != first.State || !second.EndedAt.Equal(*first.EndedAt) || second.EndedFrom != first.EndedFrom {
		t.Fatalf("expected identical final state, got %+v vs %+v", first, second)
	}
	if got := rec.kinds(); len(got) != 2 {
		t.Fatalf("expected a single ended event, got %v", got)
	}
}

func TestEndUnknownCall(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if _, err := reg.End(context.Background(), uuid.New()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProgressFailures(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)

	if _, err := reg.Progress(ctx, uuid.New()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for unknown call, got %v", err)
	}

	call, _ := reg.StartCall(ctx, "erin", domain.DirectionOutgoing)
	if _, err := reg.End(ctx, call.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := reg.Progress(ctx, call.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for ended call, got %v", err)
	}
	if _, err := reg.Establish(ctx, call.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found when establishing ended call, got %v", err)
	}
}

func TestInvalidTransitionLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	reg, rec, _ := newTestRegistry(t)

	call, _ := reg.StartCall(ctx, "frank", domain.DirectionOutgoing)
	if _, err := reg.Establish(ctx, call.ID); err != nil {
		t.Fatalf("fast answer should be allowed: %v", err)
	}
	if _, err := reg.Progress(ctx, call.ID); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	got, _ := reg.Call(call.ID)
	if got.State != domain.CallStateActive {
		t.Fatalf("expected call to stay active, got %s", got.State)
	}
	if len(rec.kinds()) != 2 {
		t.Fatalf("expected no event for rejected transition, got %v", rec.kinds())
	}
}

func TestEndedFromDistinguishesUnansweredCalls(t *testing.T) {
	ctx := context.Background()
	reg, rec, _ := newTestRegistry(t)

	missed, _ := reg.StartCall(ctx, "gina", domain.DirectionIncoming)
	answered, _ := reg.StartCall(ctx, "hank", domain.DirectionIncoming)
	if _, err := reg.Establish(ctx, answered.ID); err != nil {
		t.Fatalf("establish: %v", err)
	}

	if _, err := reg.End(ctx, missed.ID); err != nil {
		t.Fatalf("end missed: %v", err)
	}
	if _, err := reg.End(ctx, answered.ID); err != nil {
		t.Fatalf("end answered: %v", err)
	}

	var froms []domain.CallState
	for _, ev := range rec.events {
		if ev.Kind == domain.EventEnded {
			froms = append(froms, ev.From)
		}
	}
	want := []domain.CallState{domain.CallStateRinging, domain.CallStateActive}
	if !slices.Equal(froms, want) {
		t.Fatalf("expected ended-from %v, got %v", want, froms)
	}
}

func TestEstablishStampsAnswerTime(t *testing.T) {
	ctx := context.Background()
	reg, _, clock := newTestRegistry(t)

	call, _ := reg.StartCall(ctx, "lena", domain.DirectionOutgoing)
	clock.Advance(10 * time.Second)
	if _, err := reg.Progress(ctx, call.ID); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if got, _ := reg.Call(call.ID); got.AnsweredAt != nil {
		t.Fatalf("ringing call must not have an answer time")
	}

	clock.Advance(5 * time.Second)
	answered, err := reg.Establish(ctx, call.ID)
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	if answered.AnsweredAt == nil || !answered.AnsweredAt.Equal(clock.Now()) {
		t.Fatalf("expected answered_at %v, got %v", clock.Now(), answered.AnsweredAt)
	}
}

func TestListKeepsStartOrderAndIsRestartable(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)

	handles := []string{"ivy", "jack", "kim"}
	for _, h := range handles {
		if _, err := reg.StartCall(ctx, h, domain.DirectionOutgoing); err != nil {
			t.Fatalf("start %s: %v", h, err)
		}
	}

	seq := reg.List()
	// mutations after List must not leak into the captured sequence
	if _, err := reg.StartCall(ctx, "lou", domain.DirectionOutgoing); err != nil {
		t.Fatalf("start lou: %v", err)
	}

	for pass := 0; pass < 2; pass++ {
		var got []string
		for c := range seq {
			got = append(got, c.RemoteHandle)
		}
		if !slices.Equal(got, handles) {
			t.Fatalf("pass %d: expected %v, got %v", pass, handles, got)
		}
	}

	if n := len(slices.Collect(reg.List())); n != 4 {
		t.Fatalf("expected fresh list to include the fourth call, got %d", n)
	}
}

func TestListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)
	call, _ := reg.StartCall(ctx, "mona", domain.DirectionOutgoing)

	for c := range reg.List() {
		c.State = domain.CallStateEnded
	}
	got, _ := reg.Call(call.ID)
	if got.State != domain.CallStateRinging {
		t.Fatalf("expected registry state untouched, got %s", got.State)
	}
}

func TestObserversRunInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	reg := New()

	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"presentation", "provider", "mirror"} {
		name := name
		reg.Register(ObserverFunc(func(context.Context, domain.Event) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}))
	}

	if _, err := reg.StartCall(ctx, "nick", domain.DirectionOutgoing); err != nil {
		t.Fatalf("start: %v", err)
	}
	want := []string{"presentation", "provider", "mirror"}
	if !slices.Equal(order, want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
}

func TestFailingObserverDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	reg := New()
	reg.Register(ObserverFunc(func(context.Context, domain.Event) error {
		return fmt.Errorf("boom")
	}))
	rec := &recorder{}
	reg.Register(rec)

	if _, err := reg.StartCall(ctx, "olga", domain.DirectionOutgoing); err != nil {
		t.Fatalf("observer failure must not fail the transition: %v", err)
	}
	if len(rec.kinds()) != 1 {
		t.Fatalf("expected second observer to be notified")
	}
}

func TestObserverSeesCommittedSnapshot(t *testing.T) {
	ctx := context.Background()
	reg := New()

	var seen domain.CallState
	reg.Register(ObserverFunc(func(_ context.Context, ev domain.Event) error {
		c, ok := reg.Call(ev.Call.ID)
		if !ok {
			return fmt.Errorf("call %s missing from snapshot", ev.Call.ID)
		}
		seen = c.State
		return nil
	}))

	call, _ := reg.StartCall(ctx, "pete", domain.DirectionOutgoing)
	if _, err := reg.Progress(ctx, call.ID); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if seen != domain.CallStateEstablishing {
		t.Fatalf("expected observer to read establishing, got %s", seen)
	}
}

func TestConcurrentStartsKeepHandleUnique(t *testing.T) {
	ctx := context.Background()
	reg := New()

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.StartCall(ctx, "quinn", domain.DirectionOutgoing); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, apperrors.ErrDuplicateCall) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one call for the handle, got %d", succeeded)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected one tracked call, got %d", reg.Len())
	}
}

func TestPruneRemovesOldEndedCalls(t *testing.T) {
	ctx := context.Background()
	reg, rec, clock := newTestRegistry(t)

	old, _ := reg.StartCall(ctx, "rita", domain.DirectionOutgoing)
	live, _ := reg.StartCall(ctx, "sam", domain.DirectionOutgoing)
	if _, err := reg.End(ctx, old.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	clock.Advance(10 * time.Minute)
	recent, _ := reg.StartCall(ctx, "tom", domain.DirectionOutgoing)
	if _, err := reg.End(ctx, recent.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	if n := reg.Prune(ctx, clock.Now().Add(-5*time.Minute)); n != 1 {
		t.Fatalf("expected one pruned call, got %d", n)
	}
	if _, ok := reg.Call(old.ID); ok {
		t.Fatalf("expected old call to be pruned")
	}
	if _, ok := reg.Call(live.ID); !ok {
		t.Fatalf("expected live call to remain")
	}
	if _, ok := reg.Call(recent.ID); !ok {
		t.Fatalf("expected recently ended call to remain")
	}
	if len(rec.pruned) != 1 || rec.pruned[0] != old.ID {
		t.Fatalf("expected prune notification for %s, got %v", old.ID, rec.pruned)
	}
	if _, err := reg.End(ctx, old.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected pruned call to be unknown, got %v", err)
	}
}
