package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/podcast-studio/internal/models"
)

// HandleDispatchTask runs one dispatch tick for the lane named in the payload.
// Dispatch failures are logged here; the episode's own retry state decides
// when it is tried again, so the task itself is never retried.
func (q *Queue) HandleDispatchTask(ctx context.Context, task *asynq.Task) error {
	var payload DispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	lane, ok := models.LaneByKind(payload.Kind)
	if !ok {
		return fmt.Errorf("unknown lane %q: %w", payload.Kind, asynq.SkipRetry)
	}

	dispatched, err := q.ds.Dispatch(ctx, lane)
	if err != nil {
		slog.Error("dispatch failed", "lane", lane.Kind, "error", err)
		return nil
	}
	if dispatched == nil {
		slog.Debug("nothing dispatched", "lane", lane.Kind)
	}
	return nil
}
