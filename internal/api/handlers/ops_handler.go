package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	job "github.com/maheshrc27/skyqueue/internal/jobs"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type StatusSource interface {
	Status() job.Status
}

type OpsHandler struct {
	db          Pinger
	scheduler   StatusSource
	pingTimeout time.Duration
}

func NewOpsHandler(db Pinger, scheduler StatusSource) *OpsHandler {
	return &OpsHandler{
		db:          db,
		scheduler:   scheduler,
		pingTimeout: 2 * time.Second,
	}
}

func (h *OpsHandler) Register(r fiber.Router) {
	r.Get("/healthz", h.Health)
	r.Get("/scheduler/status", h.SchedulerStatus)
}

func (h *OpsHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), h.pingTimeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		slog.Warn("health check failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"error":  "database unreachable",
		})
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *OpsHandler) SchedulerStatus(c *fiber.Ctx) error {
	return c.JSON(h.scheduler.Status())
}
