package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

func (h *HandlerSet) history(ctx *fiber.Ctx) error {
	page, err := h.deps.History.List(ctx.UserContext(), ctx.Query("cursor"), queryLimit(ctx))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(page)
}
