package job

import (
	"log/slog"

	"github.com/maheshrc27/podcast-studio/internal/models"
	"github.com/maheshrc27/podcast-studio/internal/queue"
)

// DispatchJob is the timer trigger: every run asks for a dispatch tick on
// each lane.
type DispatchJob struct {
	client queue.TaskEnqueuer
}

func NewDispatchJob(client queue.TaskEnqueuer) *DispatchJob {
	return &DispatchJob{client: client}
}

func (j *DispatchJob) Run() {
	for _, lane := range models.Lanes {
		if err := queue.EnqueueDispatch(j.client, queue.DispatchPayload{Kind: lane.Kind}); err != nil {
			slog.Error("failed to enqueue dispatch", "lane", lane.Kind, "error", err)
		}
	}
}
