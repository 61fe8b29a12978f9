package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/acme/hotline/internal/domain"
	"github.com/acme/hotline/internal/queue"
	"github.com/acme/hotline/internal/registry"
	callsvc "github.com/acme/hotline/internal/service/call"
	apperrors "github.com/acme/hotline/pkg/errors"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func encode(t *testing.T, offset int64, msg queue.SDKEventMessage) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafka.Message{Offset: offset, Value: payload}
}

func TestHandlerLifecycleByHandle(t *testing.T) {
	ctx := context.Background()
	reg := registry.New()
	h := NewHandler(callsvc.NewService(reg, nil, nil))

	call, err := h.Handle(ctx, queue.SDKEventMessage{Type: queue.SDKEventIncoming, Handle: "alice"})
	if err != nil {
		t.Fatalf("incoming: %v", err)
	}
	if call.Direction != domain.DirectionIncoming {
		t.Fatalf("expected incoming call, got %s", call.Direction)
	}

	if _, err := h.Handle(ctx, queue.SDKEventMessage{Type: queue.SDKEventEstablish, Handle: "alice"}); err != nil {
		t.Fatalf("establish: %v", err)
	}
	ended, err := h.Handle(ctx, queue.SDKEventMessage{Type: queue.SDKEventEnd, CallID: &call.ID})
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.State != domain.CallStateEnded || ended.EndedFrom != domain.CallStateActive {
		t.Fatalf("unexpected ended call %+v", ended)
	}
}

func TestHandlerRejectsBadEvents(t *testing.T) {
	ctx := context.Background()
	h := NewHandler(callsvc.NewService(registry.New(), nil, nil))

	if _, err := h.Handle(ctx, queue.SDKEventMessage{Type: queue.SDKEventProgress}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := h.Handle(ctx, queue.SDKEventMessage{Type: queue.SDKEventProgress, Handle: "nobody"}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	id := uuid.New()
	if _, err := h.Handle(ctx, queue.SDKEventMessage{Type: "transfer", CallID: &id}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
}

func TestWorkerCommitsEveryMessage(t *testing.T) {
	reg := registry.New()
	reader := &fakeReader{messages: []kafka.Message{
		encode(t, 1, queue.SDKEventMessage{Type: queue.SDKEventIncoming, Handle: "bob"}),
		{Offset: 2, Value: []byte("{not json")},
		encode(t, 3, queue.SDKEventMessage{Type: queue.SDKEventIncoming, Handle: "bob"}),
		encode(t, 4, queue.SDKEventMessage{Type: queue.SDKEventProgress, Handle: "bob"}),
	}}
	w := New(reader, NewHandler(callsvc.NewService(reg, nil, nil)), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for reader.commits() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancelled, got %v", err)
	}

	if reader.commits() != 4 {
		t.Fatalf("expected 4 commits, got %d", reader.commits())
	}
	if !reader.closed {
		t.Fatalf("expected reader to be closed")
	}
	call, ok := reg.CallWithHandle("bob")
	if !ok || call.State != domain.CallStateEstablishing {
		t.Fatalf("expected establishing call for bob, got %+v", call)
	}
	if reg.Len() != 1 {
		t.Fatalf("duplicate incoming should not add a call, got %d", reg.Len())
	}
}
