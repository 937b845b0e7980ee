package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/podcast-studio/configs"
	"github.com/maheshrc27/podcast-studio/internal/models"
	"github.com/maheshrc27/podcast-studio/internal/repository"
	"github.com/maheshrc27/podcast-studio/internal/service"
	"github.com/maheshrc27/podcast-studio/internal/test"
	"github.com/maheshrc27/podcast-studio/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callbackServiceStub struct {
	outcome string
	err     error
	lane    models.Lane
	payload *transfer.CallbackPayload
	token   string
}

func (s *callbackServiceStub) Reconcile(_ context.Context, lane models.Lane, payload *transfer.CallbackPayload, token string) (string, error) {
	s.lane, s.payload, s.token = lane, payload, token
	return s.outcome, s.err
}

func newCallbackApp(s service.CallbackService) *fiber.App {
	app := fiber.New()
	h := NewCallbackHandler(s)
	app.All("/callbacks/video-generation", h.Handle(models.GenerationLane))
	app.All("/callbacks/youtube-upload", h.Handle(models.UploadLane))
	return app
}

func post(t *testing.T, app *fiber.App, target, body string) (int, map[string]any) {
	req := httptest.NewRequest("POST", target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	json.Unmarshal(raw, &decoded)
	return resp.StatusCode, decoded
}

func TestCallbackRejectsOtherMethods(t *testing.T) {
	stub := &callbackServiceStub{}
	app := newCallbackApp(stub)

	for _, method := range []string{"GET", "PUT", "DELETE"} {
		resp, err := app.Test(httptest.NewRequest(method, "/callbacks/video-generation", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode, method)
		assert.Equal(t, "POST", resp.Header.Get("Allow"))
	}
	assert.Nil(t, stub.payload)
}

func TestCallbackRejectsMalformedBody(t *testing.T) {
	stub := &callbackServiceStub{}

	status, _ := post(t, newCallbackApp(stub), "/callbacks/video-generation", `{"taskId":`)

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Nil(t, stub.payload)
}

func TestCallbackStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, fiber.StatusOK},
		{fmt.Errorf("%w: taskId and status are required", service.ErrValidation), fiber.StatusBadRequest},
		{fmt.Errorf("%w: bad token", service.ErrUnauthorized), fiber.StatusUnauthorized},
		{fmt.Errorf("%w: task \"abc\"", service.ErrNotFound), fiber.StatusNotFound},
		{errors.New("connection reset by peer"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		stub := &callbackServiceStub{outcome: service.OutcomeCompleted, err: tt.err}

		status, body := post(t, newCallbackApp(stub), "/callbacks/youtube-upload?token=t0k",
			`{"taskId":"abc","status":"completed","youtube_video_id":"yt-1"}`)

		assert.Equal(t, tt.want, status)
		assert.Equal(t, models.UploadLane, stub.lane)
		assert.Equal(t, "yt-1", stub.payload.YoutubeVideoID)
		assert.Equal(t, "t0k", stub.token)
		if tt.err == nil {
			assert.Equal(t, service.OutcomeCompleted, body["status"])
		} else if tt.want == fiber.StatusInternalServerError {
			assert.NotContains(t, body["error"], "connection reset")
		}
	}
}

// The callback endpoint against the real reconciler: task "abc" belongs to
// episode 42.
func newReconcilerApp(t *testing.T) (*fiber.App, sqlmock.Sqlmock) {
	db, mock := test.NewMockDB(t)
	policy := service.RetryPolicy{MaxAttempts: 5, Backoff: service.Backoff{Base: time.Minute, Max: time.Hour}}
	s := service.NewCallbackService(config.Config{}, db,
		repository.NewEpisodeRepository(db),
		repository.NewExternalTaskRepository(db),
		nil, nil, policy)
	return newCallbackApp(s), mock
}

func expectTaskABC(mock sqlmock.Sqlmock) {
	now := time.Now()
	mock.ExpectQuery(`FROM external_tasks`).WithArgs("abc", models.TaskTypeVideoGeneration).
		WillReturnRows(test.TaskRows(&models.ExternalTask{
			ID: 1, ExternalTaskID: "abc", Type: models.TaskTypeVideoGeneration,
			ContentItemID: test.Ptr(int64(42)), Data: json.RawMessage(`{"contentItemId":42}`),
			Status: models.TaskStatusInitiated, CreatedAt: now, UpdatedAt: now,
		}))
	mock.ExpectQuery(`FROM episodes WHERE id = \$1`).WithArgs(int64(42)).
		WillReturnRows(test.EpisodeRows(&models.Episode{
			ID: 42, ShowID: 1, Title: "Pilot", Slug: "pilot", Status: models.EpisodeStatusGenerating,
			DispatchAttempts: 1, LastStatusChangeAt: now, CreatedAt: now, UpdatedAt: now,
		}))
}

func TestCompletedCallbackAdvancesEpisode(t *testing.T) {
	app, mock := newReconcilerApp(t)

	expectTaskABC(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE external_tasks`).
		WithArgs(models.TaskStatusCompleted, sqlmock.AnyArg(), "abc", models.TaskStatusCompleted, models.TaskStatusError).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET video_bucket_key = \$1`).
		WithArgs("x.mp4", models.EpisodeStatusGenerated, sqlmock.AnyArg(), int64(42), models.EpisodeStatusGenerating).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	status, body := post(t, app, "/callbacks/video-generation", `{"taskId":"abc","status":"completed","video_bucket_key":"x.mp4"}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "completed", body["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorCallbackIsAcknowledged(t *testing.T) {
	app, mock := newReconcilerApp(t)

	expectTaskABC(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE external_tasks`).
		WithArgs(models.TaskStatusError, sqlmock.AnyArg(), "abc", models.TaskStatusCompleted, models.TaskStatusError).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = \$1,\s+next_attempt_at = \$2`).
		WithArgs(models.EpisodeStatusPending, sqlmock.AnyArg(), "out of memory", sqlmock.AnyArg(), int64(42), models.EpisodeStatusGenerating).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	status, _ := post(t, app, "/callbacks/video-generation", `{"taskId":"abc","status":"error","error":"out of memory"}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnknownTaskCallback(t *testing.T) {
	app, mock := newReconcilerApp(t)

	mock.ExpectQuery(`FROM external_tasks`).WithArgs("ghost", models.TaskTypeVideoGeneration).WillReturnRows(test.TaskRows())

	status, _ := post(t, app, "/callbacks/video-generation", `{"taskId":"ghost","status":"completed","video_bucket_key":"x.mp4"}`)

	assert.Equal(t, fiber.StatusNotFound, status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallbackStoreErrorIs500(t *testing.T) {
	app, mock := newReconcilerApp(t)

	mock.ExpectQuery(`FROM external_tasks`).WillReturnError(errors.New("too many connections"))

	status, _ := post(t, app, "/callbacks/video-generation", `{"taskId":"abc","status":"error"}`)

	assert.Equal(t, fiber.StatusInternalServerError, status)
}
