package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/repository"
	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidCron     = errors.New("invalid cron expression")
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// maxUpcomingRuns bounds UpcomingRuns previews.
const maxUpcomingRuns = 100

type ScheduleService interface {
	SaveSchedules(ctx context.Context, userDid string, schedules []models.ScheduleInput) ([]*models.PostingSchedule, error)
	ListSchedules(ctx context.Context, userDid string) ([]*models.PostingSchedule, error)
	SetTimezone(ctx context.Context, userDid, timezone string) error
	Timezone(ctx context.Context, userDid string) (string, error)
	UpcomingRuns(expr, timezone string, from time.Time, n int) ([]time.Time, error)
}

type scheduleService struct {
	sr  repository.ScheduleRepository
	str repository.SettingsRepository
	now func() time.Time
}

func NewScheduleService(sr repository.ScheduleRepository, str repository.SettingsRepository) ScheduleService {
	return &scheduleService{
		sr:  sr,
		str: str,
		now: time.Now,
	}
}

// ParseCron parses a standard five-field cron expression. Descriptors such as
// @daily are accepted as well.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%q: %w: %v", expr, ErrInvalidCron, err)
	}
	return sched, nil
}

func (s *scheduleService) SaveSchedules(ctx context.Context, userDid string, schedules []models.ScheduleInput) ([]*models.PostingSchedule, error) {
	for _, in := range schedules {
		if _, err := ParseCron(in.CronExpression); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
	}

	return s.sr.ReplaceForUser(ctx, userDid, schedules)
}

func (s *scheduleService) ListSchedules(ctx context.Context, userDid string) ([]*models.PostingSchedule, error) {
	return s.sr.ListByUser(ctx, userDid)
}

func (s *scheduleService) SetTimezone(ctx context.Context, userDid, timezone string) error {
	if timezone == "" {
		return fmt.Errorf("empty: %w", ErrInvalidTimezone)
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("%q: %w", timezone, ErrInvalidTimezone)
	}

	return s.str.UpsertTimezone(ctx, userDid, timezone, s.now())
}

func (s *scheduleService) Timezone(ctx context.Context, userDid string) (string, error) {
	settings, isExist, err := s.str.GetByUserDid(ctx, userDid)
	if err != nil {
		return "", err
	}
	if !isExist || settings.Timezone == "" {
		return models.DefaultTimezone, nil
	}
	return settings.Timezone, nil
}

// UpcomingRuns returns the next n occurrences of expr after from, evaluated
// in timezone.
func (s *scheduleService) UpcomingRuns(expr, timezone string, from time.Time, n int) ([]time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	if timezone == "" {
		timezone = models.DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", timezone, ErrInvalidTimezone)
	}
	if n > maxUpcomingRuns {
		n = maxUpcomingRuns
	}

	runs := make([]time.Time, 0, max(n, 0))
	t := from.In(loc)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		runs = append(runs, t)
	}
	return runs, nil
}
