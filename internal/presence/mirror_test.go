package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/acme/hotline/internal/domain"
)

func newTestMirror(t *testing.T) (*Mirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewMirror(client, "test", time.Minute), mr
}

func liveEvent(id uuid.UUID, handle string, state domain.CallState, seq uint64) domain.Event {
	return domain.Event{
		Seq:  seq,
		Kind: domain.EventStarted,
		Call: domain.Call{
			ID:           id,
			RemoteHandle: handle,
			Direction:    domain.DirectionIncoming,
			State:        state,
		},
	}
}

func endedEvent(id uuid.UUID, handle string, seq uint64) domain.Event {
	ev := liveEvent(id, handle, domain.CallStateEnded, seq)
	ev.Kind = domain.EventEnded
	return ev
}

func TestMirrorKeyAndDefaults(t *testing.T) {
	m := NewMirror(nil, "", 0)
	if m.ttl != time.Hour {
		t.Fatalf("expected default ttl of one hour, got %v", m.ttl)
	}
	if got := m.key("alice"); got != "hotline:handle:alice" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := m.key("  alice "); got != "hotline:handle:alice" {
		t.Fatalf("expected trimmed key, got %q", got)
	}
}

func TestEntryForCopiesCallState(t *testing.T) {
	id := uuid.New()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	ev := domain.Event{
		Seq:  7,
		Kind: domain.EventProgressed,
		Call: domain.Call{
			ID:           id,
			RemoteHandle: "bob",
			Direction:    domain.DirectionOutgoing,
			State:        domain.CallStateEstablishing,
			UpdatedAt:    now,
		},
	}

	entry := entryFor(ev)
	if entry.CallID != id || entry.Handle != "bob" || entry.State != "establishing" || entry.Seq != 7 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if !entry.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at %v, got %v", now, entry.UpdatedAt)
	}
}

func TestMirrorStoresAndClearsLiveCall(t *testing.T) {
	ctx := context.Background()
	m, mr := newTestMirror(t)
	id := uuid.New()

	if err := m.Notify(ctx, liveEvent(id, "alice", domain.CallStateRinging, 1)); err != nil {
		t.Fatalf("notify start: %v", err)
	}
	entry, ok, err := m.Lookup(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("expected mirrored call, got ok=%v err=%v", ok, err)
	}
	if entry.CallID != id || entry.State != "ringing" || entry.Seq != 1 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if ttl := mr.TTL("test:handle:alice"); ttl != time.Minute {
		t.Fatalf("expected ttl of one minute, got %v", ttl)
	}

	if err := m.Notify(ctx, endedEvent(id, "alice", 2)); err != nil {
		t.Fatalf("notify end: %v", err)
	}
	if _, ok, err := m.Lookup(ctx, "alice"); err != nil || ok {
		t.Fatalf("expected handle cleared, got ok=%v err=%v", ok, err)
	}
}

func TestMirrorLateEndKeepsNewerCall(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMirror(t)
	first, second := uuid.New(), uuid.New()

	if err := m.Notify(ctx, liveEvent(first, "bob", domain.CallStateRinging, 1)); err != nil {
		t.Fatalf("notify first: %v", err)
	}
	if err := m.Notify(ctx, liveEvent(second, "bob", domain.CallStateRinging, 3)); err != nil {
		t.Fatalf("notify second: %v", err)
	}
	if err := m.Notify(ctx, endedEvent(first, "bob", 2)); err != nil {
		t.Fatalf("notify late end: %v", err)
	}

	entry, ok, err := m.Lookup(ctx, "bob")
	if err != nil || !ok {
		t.Fatalf("expected newer call to survive, got ok=%v err=%v", ok, err)
	}
	if entry.CallID != second {
		t.Fatalf("expected call %s, got %s", second, entry.CallID)
	}
}

func TestMirrorLookupTrimsHandle(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMirror(t)
	id := uuid.New()

	if err := m.Notify(ctx, liveEvent(id, "carol", domain.CallStateActive, 1)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	entry, ok, err := m.Lookup(ctx, " carol ")
	if err != nil || !ok || entry.CallID != id {
		t.Fatalf("expected padded handle to resolve, got %+v ok=%v err=%v", entry, ok, err)
	}
	if _, ok, err := m.Lookup(ctx, "dave"); err != nil || ok {
		t.Fatalf("expected unknown handle to be absent, got ok=%v err=%v", ok, err)
	}
}
