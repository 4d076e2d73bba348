package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/skyqueue/internal/repository"
)

// SessionExpiryJob warns about Bluesky sessions about to expire. Posts for
// those users fail with an auth error until the session is renewed.
type SessionExpiryJob struct {
	sr     repository.SessionRepository
	window time.Duration
	now    func() time.Time
}

func NewSessionExpiryJob(sr repository.SessionRepository, window time.Duration) *SessionExpiryJob {
	return &SessionExpiryJob{
		sr:     sr,
		window: window,
		now:    time.Now,
	}
}

// CheckExpiring returns the number of sessions expiring within the window.
func (j *SessionExpiryJob) CheckExpiring(ctx context.Context) int {
	currentTime := j.now()

	sessions, err := j.sr.ListExpiringBetween(ctx, currentTime, currentTime.Add(j.window))
	if err != nil {
		slog.Info(err.Error())
		return 0
	}

	for _, s := range sessions {
		slog.Warn("bluesky session expiring soon",
			"user_did", s.UserDid,
			"expires_at", s.ExpiresAt,
			"remaining", s.ExpiresAt.Sub(currentTime).Round(time.Second))
	}
	return len(sessions)
}

// Run is the cron entry point.
func (j *SessionExpiryJob) Run() {
	j.CheckExpiring(context.Background())
}
