package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/service"
)

var locations sync.Map // timezone name -> *time.Location

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = models.DefaultTimezone
	}
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	locations.Store(name, loc)
	return loc, nil
}

// IsDue reports whether expr has an occurrence in (effective, now], where
// effective is the later of lastGlobalCheck and lastExecuted. The returned
// time is the first occurrence after effective, due or not.
func IsDue(expr, timezone string, lastGlobalCheck time.Time, lastExecuted *time.Time, now time.Time) (time.Time, bool, error) {
	sched, err := service.ParseCron(expr)
	if err != nil {
		return time.Time{}, false, err
	}
	loc, err := loadLocation(timezone)
	if err != nil {
		return time.Time{}, false, err
	}

	effective := lastGlobalCheck
	if lastExecuted != nil && lastExecuted.After(effective) {
		effective = *lastExecuted
	}

	next := sched.Next(effective.In(loc))
	if next.IsZero() || next.After(now) || !next.After(effective) {
		return next, false, nil
	}
	return next, true, nil
}
