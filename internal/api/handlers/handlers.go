package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/hotline/internal/app"
	"github.com/acme/hotline/internal/presence"
	"github.com/acme/hotline/internal/presentation"
	"github.com/acme/hotline/internal/queue"
	callsvc "github.com/acme/hotline/internal/service/call"
	historysvc "github.com/acme/hotline/internal/service/history"
	"github.com/acme/hotline/pkg/logger"
)

// SDKPublisher forwards SDK webhook events onto the SDK topic.
type SDKPublisher interface {
	PublishSDKEvent(ctx context.Context, msg queue.SDKEventMessage) error
}

// Deps lists what the handlers need. Presence and SDK may be nil.
type Deps struct {
	Logger    *logger.Logger
	Calls     *callsvc.Service
	Roster    *presentation.Roster
	Hub       *presentation.Hub
	History   *historysvc.Service
	Presence  *presence.Mirror
	SDK       SDKPublisher
	Checks    map[string]func(context.Context) error
	Heartbeat time.Duration
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	deps     Deps
	logger   *logger.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// NewHandlerSet creates the handler bundle from the container.
func NewHandlerSet(container *app.Container) *HandlerSet {
	core := container.Core()
	checks := make(map[string]func(context.Context) error)
	if container.Postgres != nil {
		checks["postgres"] = container.Postgres.Ping
	}
	if container.Redis != nil {
		checks["redis"] = container.Redis.Ping
	}
	if container.Scylla != nil {
		checks["scylla"] = container.Scylla.Ping
	}

	return New(Deps{
		Logger:    container.Logger,
		Calls:     core.Calls,
		Roster:    core.Roster,
		Hub:       core.Hub,
		History:   core.History,
		Presence:  core.Presence,
		SDK:       container.Publishers().SDK,
		Checks:    checks,
		Heartbeat: container.Config.HTTP.StreamHeartbeat,
	})
}

// New creates a handler bundle from explicit dependencies.
func New(deps Deps) *HandlerSet {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Heartbeat <= 0 {
		deps.Heartbeat = 15 * time.Second
	}
	return &HandlerSet{deps: deps, logger: deps.Logger.Named("http"), done: make(chan struct{})}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Get("/roster", h.roster)
	v1.Get("/stream", h.stream)

	calls := v1.Group("/calls")
	calls.Get("/", h.listCalls)
	calls.Post("/", h.placeCall)
	calls.Get("/:id", h.getCall)
	calls.Post("/:id/answer", h.answerCall)
	calls.Delete("/:id", h.hangupCall)
	calls.Get("/:id/events", h.callEvents)

	handles := v1.Group("/handles")
	handles.Get("/:handle/call", h.handleCall)
	handles.Delete("/:handle/call", h.hangupHandle)
	handles.Post("/:handle/toggle", h.toggleHandle)
	handles.Get("/:handle/presence", h.handlePresence)
	handles.Get("/:handle/stats", h.handleStats)

	v1.Post("/sdk/events", h.sdkEvent)
	v1.Get("/history", h.history)
}

// Stop ends open refresh streams.
func (h *HandlerSet) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", ctx.Path()), zap.Error(err))
		message = "internal error"
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)
	for name, check := range h.deps.Checks {
		if err := check(healthCtx); err != nil {
			errs[name] = err.Error()
		}
	}

	status, label := fiber.StatusOK, "ok"
	if len(errs) > 0 {
		status, label = fiber.StatusServiceUnavailable, "degraded"
	}

	return ctx.Status(status).JSON(fiber.Map{"status": label, "errors": errs})
}
