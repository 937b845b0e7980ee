package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/podcast-studio/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTaskEnqueuer struct {
	enqueued []*asynq.Task
	err      error
}

func (m *mockTaskEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.enqueued = append(m.enqueued, task)
	return &asynq.TaskInfo{ID: "test-task-id", Queue: DispatchQueue}, nil
}

type dispatcherStub struct {
	lanes []models.Lane
	task  *models.ExternalTask
	err   error
}

func (d *dispatcherStub) Dispatch(_ context.Context, lane models.Lane) (*models.ExternalTask, error) {
	d.lanes = append(d.lanes, lane)
	return d.task, d.err
}

func (d *dispatcherStub) ReapStale(context.Context, models.Lane, time.Duration) (int, error) {
	return 0, nil
}

func TestEnqueueDispatch(t *testing.T) {
	client := &mockTaskEnqueuer{}

	require.NoError(t, NewNotifier(client).NotifyDispatch(context.Background(), models.TaskTypeYoutubeUpload))

	require.Len(t, client.enqueued, 1)
	assert.Equal(t, TaskTypeDispatch, client.enqueued[0].Type())

	var payload DispatchPayload
	require.NoError(t, json.Unmarshal(client.enqueued[0].Payload(), &payload))
	assert.Equal(t, models.TaskTypeYoutubeUpload, payload.Kind)
}

func TestEnqueueDispatchCollapsesDuplicates(t *testing.T) {
	assert.NoError(t, EnqueueDispatch(&mockTaskEnqueuer{err: asynq.ErrDuplicateTask}, DispatchPayload{Kind: "k"}))
	assert.Error(t, EnqueueDispatch(&mockTaskEnqueuer{err: errors.New("redis down")}, DispatchPayload{Kind: "k"}))
}

func TestHandleDispatchTask(t *testing.T) {
	ds := &dispatcherStub{err: errors.New("compute down")}
	q := NewQueue(ds)

	payload, _ := json.Marshal(DispatchPayload{Kind: models.TaskTypeVideoGeneration})
	err := q.HandleDispatchTask(context.Background(), asynq.NewTask(TaskTypeDispatch, payload))

	assert.NoError(t, err)
	require.Len(t, ds.lanes, 1)
	assert.Equal(t, models.GenerationLane, ds.lanes[0])
}

func TestHandleDispatchTaskUnknownLane(t *testing.T) {
	ds := &dispatcherStub{}
	q := NewQueue(ds)

	payload, _ := json.Marshal(DispatchPayload{Kind: "podcast_rss"})
	err := q.HandleDispatchTask(context.Background(), asynq.NewTask(TaskTypeDispatch, payload))

	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, ds.lanes)
}
