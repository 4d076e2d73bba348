package queue

import (
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/service"
)

const TaskTypeDispatch = "schedule:dispatch"

type DispatchPayload struct {
	ScheduleID int64     `json:"schedule_id"`
	UserDid    string    `json:"user_did"`
	Occurrence time.Time `json:"occurrence"`
}

func payloadFor(due models.DueSchedule) DispatchPayload {
	return DispatchPayload{
		ScheduleID: due.ScheduleID,
		UserDid:    due.UserDid,
		Occurrence: due.Occurrence,
	}
}

func (p DispatchPayload) due() models.DueSchedule {
	return models.DueSchedule{
		ScheduleID: p.ScheduleID,
		UserDid:    p.UserDid,
		Occurrence: p.Occurrence,
	}
}

// Worker runs dispatch tasks taken off the asynq queue.
type Worker struct {
	dispatcher service.Dispatcher
}

func NewWorker(dispatcher service.Dispatcher) *Worker {
	return &Worker{
		dispatcher: dispatcher,
	}
}
