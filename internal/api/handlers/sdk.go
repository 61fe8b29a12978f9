package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/hotline/internal/queue"
)

// sdkEvent accepts an SDK webhook and queues it on the SDK topic, where the inbound
// worker applies it in order with the SDK's other reports.
func (h *HandlerSet) sdkEvent(ctx *fiber.Ctx) error {
	if h.deps.SDK == nil {
		return fiber.NewError(http.StatusServiceUnavailable, "sdk events are not accepted")
	}

	var msg queue.SDKEventMessage
	if err := ctx.BodyParser(&msg); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	msg.Handle = strings.TrimSpace(msg.Handle)
	if err := validateSDKEvent(msg); err != nil {
		return err
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}

	if err := h.deps.SDK.PublishSDKEvent(ctx.UserContext(), msg); err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

func validateSDKEvent(msg queue.SDKEventMessage) error {
	hasID := msg.CallID != nil && *msg.CallID != uuid.Nil
	switch msg.Type {
	case queue.SDKEventIncoming:
		if msg.Handle == "" {
			return fiber.NewError(http.StatusBadRequest, "incoming events require a handle")
		}
	case queue.SDKEventProgress, queue.SDKEventEstablish, queue.SDKEventEnd:
		if !hasID && msg.Handle == "" {
			return fiber.NewError(http.StatusBadRequest, "event requires a call_id or a handle")
		}
	default:
		return fiber.NewError(http.StatusBadRequest, "unknown event type")
	}
	return nil
}
