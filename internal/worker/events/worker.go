package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/hotline/internal/queue"
	"github.com/acme/hotline/pkg/logger"
)

const (
	maxAttempts  = 3
	retryBackoff = 200 * time.Millisecond
)

// Worker consumes call events from Kafka and persists them.
type Worker struct {
	reader  queue.Reader
	handler *Handler
	logger  *logger.Logger
	backoff time.Duration
}

// New creates a worker reading from reader.
func New(reader queue.Reader, handler *Handler, l *logger.Logger) *Worker {
	if l == nil {
		l = logger.Nop()
	}
	return &Worker{reader: reader, handler: handler, logger: l.Named("events"), backoff: retryBackoff}
}

// Run persists call events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	defer w.reader.Close()

	tracer := otel.Tracer("hotline.eventworker")
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("event worker: fetch", zap.Error(err))
			continue
		}

		w.process(ctx, tracer, msg)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("event worker: commit", zap.Error(err))
		}
	}
}

func (w *Worker) process(ctx context.Context, tracer trace.Tracer, msg kafka.Message) {
	var event queue.CallEventMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		w.logger.Error("event worker: unmarshal", zap.Error(err), zap.Int64("offset", msg.Offset))
		return
	}

	sctx, span := tracer.Start(ctx, "call.event", trace.WithAttributes(
		attribute.String("call.id", event.CallID.String()),
		attribute.String("call.event", event.Kind),
		attribute.Int64("call.seq", int64(event.Seq)),
	))
	defer span.End()

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = w.handler.Handle(sctx, event); err == nil {
			return
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.backoff * time.Duration(attempt)):
		}
	}

	span.RecordError(err)
	w.logger.Error("event worker: persist",
		zap.String("call_id", event.CallID.String()),
		zap.String("kind", event.Kind),
		zap.Error(err),
	)
}
