package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// uniqueFor collapses dispatch requests for the same lane that arrive while
// one is still queued.
const uniqueFor = 30 * time.Second

// TaskEnqueuer is the part of *asynq.Client used to schedule work.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func EnqueueDispatch(client TaskEnqueuer, payload DispatchPayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeDispatch, taskPayload)

	_, err = client.Enqueue(task,
		asynq.Queue(DispatchQueue),
		asynq.MaxRetry(0),
		asynq.Unique(uniqueFor),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return err
	}

	slog.Debug("dispatch enqueued", "lane", payload.Kind)
	return nil
}

// Notifier lets services request a dispatch tick without depending on asynq.
type Notifier struct {
	client TaskEnqueuer
}

func NewNotifier(client TaskEnqueuer) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) NotifyDispatch(_ context.Context, kind string) error {
	return EnqueueDispatch(n.client, DispatchPayload{Kind: kind})
}
