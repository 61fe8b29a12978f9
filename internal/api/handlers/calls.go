package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/hotline/internal/domain"
)

type placeCallRequest struct {
	Handle string `json:"handle"`
}

type callResponse struct {
	ID        uuid.UUID  `json:"id"`
	Handle    string     `json:"handle"`
	Direction string     `json:"direction"`
	State     string     `json:"state"`
	EndedFrom string     `json:"ended_from,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func toCallResponse(call domain.Call) callResponse {
	return callResponse{
		ID:        call.ID,
		Handle:    call.RemoteHandle,
		Direction: string(call.Direction),
		State:     string(call.State),
		EndedFrom: string(call.EndedFrom),
		CreatedAt: call.CreatedAt,
		UpdatedAt: call.UpdatedAt,
		EndedAt:   call.EndedAt,
	}
}

func toCallResponses(calls []domain.Call) []callResponse {
	out := make([]callResponse, 0, len(calls))
	for _, c := range calls {
		out = append(out, toCallResponse(c))
	}
	return out
}

func (h *HandlerSet) listCalls(ctx *fiber.Ctx) error {
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"items": toCallResponses(h.deps.Calls.List())})
}

func (h *HandlerSet) placeCall(ctx *fiber.Ctx) error {
	var req placeCallRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	call, err := h.deps.Calls.Place(ctx.UserContext(), req.Handle)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusCreated).JSON(toCallResponse(call))
}

func (h *HandlerSet) getCall(ctx *fiber.Ctx) error {
	id, err := callID(ctx)
	if err != nil {
		return err
	}

	call, err := h.deps.Calls.Get(id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCallResponse(call))
}

func (h *HandlerSet) answerCall(ctx *fiber.Ctx) error {
	id, err := callID(ctx)
	if err != nil {
		return err
	}

	call, err := h.deps.Calls.Answer(ctx.UserContext(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCallResponse(call))
}

func (h *HandlerSet) hangupCall(ctx *fiber.Ctx) error {
	id, err := callID(ctx)
	if err != nil {
		return err
	}

	call, err := h.deps.Calls.Hangup(ctx.UserContext(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCallResponse(call))
}

func (h *HandlerSet) callEvents(ctx *fiber.Ctx) error {
	id, err := callID(ctx)
	if err != nil {
		return err
	}

	page, err := h.deps.History.Events(ctx.UserContext(), id, ctx.Query("page_token"), queryLimit(ctx))
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(page)
}

func callID(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(http.StatusBadRequest, "invalid call id")
	}
	return id, nil
}

func queryLimit(ctx *fiber.Ctx) int {
	limit, err := strconv.Atoi(ctx.Query("limit"))
	if err != nil {
		return 0
	}
	return limit
}
