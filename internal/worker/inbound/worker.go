package inbound

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/hotline/internal/queue"
	apperrors "github.com/acme/hotline/pkg/errors"
	"github.com/acme/hotline/pkg/logger"
)

// Worker consumes SDK events from Kafka and applies them to the registry.
type Worker struct {
	reader  queue.Reader
	handler *Handler
	logger  *logger.Logger
}

// New creates a worker reading from reader.
func New(reader queue.Reader, handler *Handler, l *logger.Logger) *Worker {
	if l == nil {
		l = logger.Nop()
	}
	return &Worker{reader: reader, handler: handler, logger: l.Named("inbound")}
}

// Run processes SDK events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	defer w.reader.Close()

	tracer := otel.Tracer("hotline.inbound")
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("inbound worker: fetch", zap.Error(err))
			continue
		}

		w.process(ctx, tracer, msg)

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("inbound worker: commit", zap.Error(err))
		}
	}
}

func (w *Worker) process(ctx context.Context, tracer trace.Tracer, msg kafka.Message) {
	var event queue.SDKEventMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		w.logger.Error("inbound worker: unmarshal", zap.Error(err), zap.Int64("offset", msg.Offset))
		return
	}

	sctx, span := tracer.Start(ctx, "sdk.event", trace.WithAttributes(
		attribute.String("sdk.event", string(event.Type)),
		attribute.String("call.handle", event.Handle),
	))
	defer span.End()

	call, err := w.handler.Handle(sctx, event)
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("call.id", call.ID.String()), attribute.String("call.state", string(call.State)))
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrValidation):
		// stale or malformed SDK reports are expected; the message is still committed
		w.logger.Warn("inbound worker: event rejected", zap.String("type", string(event.Type)), zap.String("handle", event.Handle), zap.Error(err))
	default:
		span.RecordError(err)
		w.logger.Error("inbound worker: handle", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
