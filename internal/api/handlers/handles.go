package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

func (h *HandlerSet) handleCall(ctx *fiber.Ctx) error {
	call, err := h.deps.Calls.ByHandle(ctx.Params("handle"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toCallResponse(call))
}

func (h *HandlerSet) hangupHandle(ctx *fiber.Ctx) error {
	call, err := h.deps.Calls.HangupHandle(ctx.UserContext(), ctx.Params("handle"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toCallResponse(call))
}

// toggleHandle mirrors tapping a user row: it places a call unless one is already up.
func (h *HandlerSet) toggleHandle(ctx *fiber.Ctx) error {
	call, created, err := h.deps.Calls.Toggle(ctx.UserContext(), ctx.Params("handle"))
	if err != nil {
		return translateError(err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return ctx.Status(status).JSON(fiber.Map{"created": created, "call": toCallResponse(call)})
}

func (h *HandlerSet) handlePresence(ctx *fiber.Ctx) error {
	if h.deps.Presence == nil {
		return fiber.NewError(http.StatusServiceUnavailable, "presence is not configured")
	}

	entry, ok, err := h.deps.Presence.Lookup(ctx.UserContext(), ctx.Params("handle"))
	if err != nil {
		return translateError(err)
	}
	if !ok {
		return fiber.NewError(http.StatusNotFound, "resource not found")
	}
	return ctx.Status(http.StatusOK).JSON(entry)
}

func (h *HandlerSet) handleStats(ctx *fiber.Ctx) error {
	stats, err := h.deps.History.HandleStats(ctx.UserContext(), ctx.Params("handle"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(stats)
}
