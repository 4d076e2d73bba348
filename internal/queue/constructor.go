package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/skyqueue/internal/models"
)

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher hands due schedules to asynq workers instead of posting
// inline. Each occurrence maps to one task id, so a repeated enqueue of the
// same occurrence is dropped by asynq.
type AsynqDispatcher struct {
	client      Enqueuer
	postTimeout time.Duration
}

func NewAsynqDispatcher(client Enqueuer, postTimeout time.Duration) *AsynqDispatcher {
	return &AsynqDispatcher{
		client:      client,
		postTimeout: postTimeout,
	}
}

func TaskID(due models.DueSchedule) string {
	return fmt.Sprintf("dispatch:%d:%d", due.ScheduleID, due.Occurrence.Unix())
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, due models.DueSchedule) error {
	taskPayload, err := json.Marshal(payloadFor(due))
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeDispatch, taskPayload)

	// The claim transaction is the only retry bound, so asynq must not retry.
	// The timeout covers storage and the claim as well as the post.
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.TaskID(TaskID(due)),
		asynq.MaxRetry(0),
		asynq.Timeout(2*d.postTimeout),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			slog.Info("dispatch already enqueued", "task_id", TaskID(due))
			return nil
		}
		return fmt.Errorf("enqueue dispatch for schedule %d: %w", due.ScheduleID, err)
	}

	slog.Info("dispatch enqueued", "task_id", info.ID, "queue", info.Queue)
	return nil
}
