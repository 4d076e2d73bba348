package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/service"
)

const (
	defaultPreviewRuns = 5
	maxPreviewRuns     = 20
)

type UserLookup interface {
	GetByDid(ctx context.Context, did string) (*models.User, bool, error)
}

// ScheduleHandler serves a read-only view of a user's schedules with their
// next occurrences, for operators checking what the scheduler will do.
type ScheduleHandler struct {
	users     UserLookup
	schedules service.ScheduleService
	now       func() time.Time
}

type schedulePreview struct {
	Schedule *models.PostingSchedule `json:"schedule"`
	NextRuns []time.Time             `json:"next_runs"`
	Error    string                  `json:"error,omitempty"`
}

func NewScheduleHandler(users UserLookup, schedules service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{
		users:     users,
		schedules: schedules,
		now:       time.Now,
	}
}

func (h *ScheduleHandler) Register(r fiber.Router) {
	r.Get("/users/:did/schedules", h.Upcoming)
}

func (h *ScheduleHandler) Upcoming(c *fiber.Ctx) error {
	did := c.Params("did")

	runs := c.QueryInt("runs", defaultPreviewRuns)
	if runs < 1 || runs > maxPreviewRuns {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "runs must be between 1 and 20",
		})
	}

	_, isExist, err := h.users.GetByDid(c.Context(), did)
	if err != nil {
		return err
	}
	if !isExist {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown user",
		})
	}

	timezone, err := h.schedules.Timezone(c.Context(), did)
	if err != nil {
		return err
	}

	schedules, err := h.schedules.ListSchedules(c.Context(), did)
	if err != nil {
		return err
	}

	from := h.now()
	previews := make([]schedulePreview, 0, len(schedules))
	for _, s := range schedules {
		p := schedulePreview{Schedule: s, NextRuns: []time.Time{}}
		if s.Active {
			next, err := h.schedules.UpcomingRuns(s.CronExpression, timezone, from, runs)
			if err != nil {
				slog.Warn("schedule preview failed", "schedule_id", s.ID, "error", err)
				p.Error = err.Error()
			} else {
				p.NextRuns = next
			}
		}
		previews = append(previews, p)
	}

	return c.JSON(fiber.Map{
		"did":       did,
		"timezone":  timezone,
		"schedules": previews,
	})
}
