package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/hotline/internal/presentation"
)

type userResponse struct {
	Handle string        `json:"handle"`
	Call   *callResponse `json:"call,omitempty"`
}

type rosterResponse struct {
	Users []userResponse `json:"users"`
	Calls []callResponse `json:"calls"`
}

func toRosterResponse(view presentation.View) rosterResponse {
	resp := rosterResponse{
		Users: make([]userResponse, 0, len(view.Users)),
		Calls: toCallResponses(view.Calls),
	}
	for _, u := range view.Users {
		entry := userResponse{Handle: u.Handle}
		if u.Call != nil {
			c := toCallResponse(*u.Call)
			entry.Call = &c
		}
		resp.Users = append(resp.Users, entry)
	}
	return resp
}

func (h *HandlerSet) roster(ctx *fiber.Ctx) error {
	return ctx.Status(http.StatusOK).JSON(toRosterResponse(h.deps.Roster.View()))
}

// stream pushes a refresh event carrying the roster after every registry change.
func (h *HandlerSet) stream(ctx *fiber.Ctx) error {
	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	signals, unsubscribe := h.deps.Hub.Subscribe()
	roster := h.deps.Roster
	heartbeat := h.deps.Heartbeat
	done := h.done
	lg := h.logger

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		if err := writeRefresh(w, roster.View()); err != nil {
			return
		}
		for {
			select {
			case <-done:
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				if err := writeRefresh(w, roster.View()); err != nil {
					lg.Debug("stream closed", zap.Error(err))
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func writeRefresh(w *bufio.Writer, view presentation.View) error {
	payload, err := json.Marshal(toRosterResponse(view))
	if err != nil {
		return fmt.Errorf("stream: encode roster: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: refresh\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}
