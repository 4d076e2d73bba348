package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeDispatch, w.HandleDispatchTask)
}

func (w *Worker) HandleDispatchTask(ctx context.Context, task *asynq.Task) error {
	var payload DispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskTypeDispatch, err, asynq.SkipRetry)
	}

	return w.dispatcher.Dispatch(ctx, payload.due())
}
