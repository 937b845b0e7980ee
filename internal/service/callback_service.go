package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	config "github.com/maheshrc27/podcast-studio/configs"
	"github.com/maheshrc27/podcast-studio/internal/models"
	"github.com/maheshrc27/podcast-studio/internal/repository"
	"github.com/maheshrc27/podcast-studio/internal/transfer"
	"github.com/maheshrc27/podcast-studio/pkg/utils"
)

// Outcomes reported back to the compute service.
const (
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "error"
	OutcomeDuplicate  = "duplicate"
	OutcomeSuperseded = "superseded"
)

// DispatchNotifier requests an out-of-band dispatch tick for a lane.
type DispatchNotifier interface {
	NotifyDispatch(ctx context.Context, kind string) error
}

type CallbackService interface {
	// Reconcile applies a callback for lane. token is the value of the
	// callback URL's token parameter, empty when absent.
	Reconcile(ctx context.Context, lane models.Lane, payload *transfer.CallbackPayload, token string) (string, error)
}

type callbackService struct {
	cfg      config.Config
	db       *sqlx.DB
	episodes repository.EpisodeRepository
	tasks    repository.ExternalTaskRepository
	storage  ObjectStorage
	notifier DispatchNotifier
	policy   RetryPolicy
	now      func() time.Time
}

func NewCallbackService(
	cfg config.Config,
	db *sqlx.DB,
	episodes repository.EpisodeRepository,
	tasks repository.ExternalTaskRepository,
	storage ObjectStorage,
	notifier DispatchNotifier,
	policy RetryPolicy) CallbackService {
	return &callbackService{
		cfg:      cfg,
		db:       db,
		episodes: episodes,
		tasks:    tasks,
		storage:  storage,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
}

func (s *callbackService) Reconcile(ctx context.Context, lane models.Lane, payload *transfer.CallbackPayload, token string) (string, error) {
	if payload.TaskID == "" || payload.Status == "" {
		return "", fmt.Errorf("%w: taskId and status are required", ErrValidation)
	}

	task, err := s.tasks.FindByExternalID(ctx, payload.TaskID, lane.Kind)
	if err != nil {
		return "", err
	}
	if task == nil {
		return "", fmt.Errorf("%w: task %q", ErrNotFound, payload.TaskID)
	}

	episodeID, err := ownerOf(task)
	if err != nil {
		return "", err
	}

	if err := s.authorize(lane, episodeID, task, token); err != nil {
		return "", err
	}

	var result string
	switch payload.Status {
	case models.TaskStatusCompleted:
		result = payload.VideoBucketKey
		field := "video_bucket_key"
		if lane.Kind == models.UploadLane.Kind {
			result = payload.YoutubeVideoID
			field = "youtube_video_id"
		}
		if result == "" {
			return "", fmt.Errorf("%w: %s is required when status is completed", ErrValidation, field)
		}
	case models.TaskStatusError:
	default:
		return "", fmt.Errorf("%w: unsupported status %q", ErrValidation, payload.Status)
	}

	if task.IsTerminal() {
		slog.Info("duplicate callback ignored", "task_id", task.ExternalTaskID, "status", payload.Status, "recorded", task.Status)
		return OutcomeDuplicate, nil
	}

	if payload.Status == models.TaskStatusCompleted && lane.Kind == models.GenerationLane.Kind {
		if err := s.verifyArtifact(ctx, result); err != nil {
			return "", err
		}
	}

	episode, err := s.episodes.GetByID(ctx, episodeID)
	if err != nil {
		return "", err
	}
	if episode == nil {
		return "", fmt.Errorf("%w: episode %d", ErrNotFound, episodeID)
	}

	outcome, err := s.apply(ctx, lane, task, episode, payload, result)
	if err != nil {
		return "", err
	}

	slog.Info("callback reconciled", "lane", lane.Kind, "task_id", task.ExternalTaskID, "episode_id", episodeID, "outcome", outcome)
	if outcome == OutcomeCompleted || outcome == OutcomeFailed {
		s.notify(ctx, lane, payload.Status)
	}
	return outcome, nil
}

// apply settles the task and writes the episode transition in one
// transaction. Settling first locks the task row, so of two concurrent
// deliveries only one gets past it. The episode write only applies while the
// episode is still in flight for the lane; otherwise only the task status is
// recorded.
func (s *callbackService) apply(ctx context.Context, lane models.Lane, task *models.ExternalTask, episode *models.Episode, payload *transfer.CallbackPayload, result string) (outcome string, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	n, err := s.tasks.UpdateStatus(ctx, tx, task.ExternalTaskID, payload.Status)
	if err != nil {
		return "", err
	}
	if n == 0 {
		slog.Info("callback lost the race to a concurrent delivery", "task_id", task.ExternalTaskID, "status", payload.Status)
		if err := tx.Rollback(); err != nil {
			return "", fmt.Errorf("failed to roll back transaction: %w", err)
		}
		return OutcomeDuplicate, nil
	}

	now := s.now()
	switch {
	case payload.Status == models.TaskStatusError:
		reason := payload.Error
		if reason == "" {
			reason = "compute job failed"
		}
		n, err = s.episodes.Release(ctx, tx, lane, episode.ID, s.policy.Release(lane, episode.DispatchAttempts, reason, now))
		outcome = OutcomeFailed
	case lane.Kind == models.UploadLane.Kind:
		n, err = s.episodes.CompleteUpload(ctx, tx, episode.ID, result, publishStatus(episode, now), now)
		outcome = OutcomeCompleted
	default:
		n, err = s.episodes.CompleteGeneration(ctx, tx, episode.ID, result, now)
		outcome = OutcomeCompleted
	}
	if err != nil {
		return "", err
	}

	if n == 0 {
		exists, err := s.episodes.Exists(ctx, tx, episode.ID)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", fmt.Errorf("%w: episode %d", ErrNotFound, episode.ID)
		}
		slog.Warn("episode no longer in flight", "lane", lane.Kind, "episode_id", episode.ID, "task_id", task.ExternalTaskID)
		outcome = OutcomeSuperseded
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return outcome, nil
}

// authorize checks the callback token against the lane, the episode and the
// nonce of the dispatch that created task.
func (s *callbackService) authorize(lane models.Lane, episodeID int64, task *models.ExternalTask, token string) error {
	if s.cfg.SecretKey == "" {
		return nil
	}
	if token == "" {
		return fmt.Errorf("%w: missing callback token", ErrUnauthorized)
	}
	claims, err := utils.ValidateCallbackToken(s.cfg.SecretKey, token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Kind != lane.Kind || claims.ContentItemID != episodeID {
		return fmt.Errorf("%w: token was issued for another task", ErrUnauthorized)
	}
	if claims.ID == "" || claims.ID != taskNonce(task) {
		return fmt.Errorf("%w: token was issued for another dispatch", ErrUnauthorized)
	}
	return nil
}

func (s *callbackService) verifyArtifact(ctx context.Context, key string) error {
	if !s.cfg.VerifyArtifacts || s.storage == nil {
		return nil
	}
	ok, err := s.storage.IsVideo(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is not a video", ErrValidation, key)
	}
	return nil
}

// notify wakes the dispatcher for every lane that may have work now.
func (s *callbackService) notify(ctx context.Context, lane models.Lane, status string) {
	if s.notifier == nil {
		return
	}
	kinds := []string{lane.Kind}
	if status == models.TaskStatusCompleted && lane.Kind == models.GenerationLane.Kind {
		kinds = append(kinds, models.UploadLane.Kind)
	}
	for _, kind := range kinds {
		if err := s.notifier.NotifyDispatch(ctx, kind); err != nil {
			slog.Warn("failed to enqueue dispatch", "lane", kind, "error", err)
		}
	}
}

// ownerOf resolves the episode a task belongs to, preferring the typed
// column over the payload.
func ownerOf(task *models.ExternalTask) (int64, error) {
	if task.ContentItemID != nil && *task.ContentItemID > 0 {
		return *task.ContentItemID, nil
	}
	var data models.TaskData
	if len(task.Data) == 0 || json.Unmarshal(task.Data, &data) != nil || data.ContentItemID <= 0 {
		return 0, fmt.Errorf("%w: task %q has no content item reference", ErrValidation, task.ExternalTaskID)
	}
	return data.ContentItemID, nil
}

func taskNonce(task *models.ExternalTask) string {
	var data models.TaskData
	if json.Unmarshal(task.Data, &data) != nil {
		return ""
	}
	return data.Nonce
}

// publishStatus is the YouTube status of a freshly uploaded episode.
func publishStatus(episode *models.Episode, now time.Time) string {
	if episode.ScheduledPublishAt != nil && episode.ScheduledPublishAt.After(now) {
		return models.PublishStatusScheduled
	}
	return models.PublishStatusPrivate
}
