package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	gonanoid "github.com/matoous/go-nanoid/v2"
	config "github.com/maheshrc27/podcast-studio/configs"
	"github.com/maheshrc27/podcast-studio/internal/models"
	"github.com/maheshrc27/podcast-studio/internal/repository"
	"github.com/maheshrc27/podcast-studio/internal/transfer"
	"github.com/maheshrc27/podcast-studio/pkg/utils"
)

// settleTimeout bounds the writes that record or undo a claim after the
// caller's context is gone.
const settleTimeout = 10 * time.Second

// DispatchService hands pending episodes to the compute service, one lane at
// a time and at most one episode per lane in flight.
type DispatchService interface {
	// Dispatch runs one tick for lane. It returns the recorded task, or nil
	// when the lane is busy or has nothing eligible.
	Dispatch(ctx context.Context, lane models.Lane) (*models.ExternalTask, error)
	// ReapStale releases in-flight episodes whose callback never arrived.
	ReapStale(ctx context.Context, lane models.Lane, olderThan time.Duration) (int, error)
}

type dispatchService struct {
	cfg      config.Config
	db       *sqlx.DB
	episodes repository.EpisodeRepository
	tasks    repository.ExternalTaskRepository
	compute  ComputeClient
	storage  ObjectStorage
	policy   RetryPolicy
	now      func() time.Time
}

func NewDispatchService(
	cfg config.Config,
	db *sqlx.DB,
	episodes repository.EpisodeRepository,
	tasks repository.ExternalTaskRepository,
	compute ComputeClient,
	storage ObjectStorage,
	policy RetryPolicy) DispatchService {
	return &dispatchService{
		cfg:      cfg,
		db:       db,
		episodes: episodes,
		tasks:    tasks,
		compute:  compute,
		storage:  storage,
		policy:   policy,
		now:      time.Now,
	}
}

func (s *dispatchService) Dispatch(ctx context.Context, lane models.Lane) (*models.ExternalTask, error) {
	episode, err := s.episodes.ClaimNext(ctx, lane, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrLaneBusy) {
			slog.Debug("lane busy", "lane", lane.Kind)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim episode: %w", err)
	}
	if episode == nil {
		return nil, nil
	}

	// A claim must be settled even when ctx is cancelled mid-dispatch, or the
	// lane stays gated until the stale reaper runs.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	body, data, err := s.buildRequest(ctx, lane, episode)
	if err != nil {
		s.release(settleCtx, lane, episode, err)
		return nil, err
	}

	taskID, err := s.compute.Submit(ctx, s.endpoint(lane), body)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			slog.Warn("compute service unavailable", "lane", lane.Kind, "episode_id", episode.ID, "error", err)
			s.postpone(settleCtx, lane, episode, err)
			return nil, err
		}
		slog.Warn("dispatch rejected", "lane", lane.Kind, "episode_id", episode.ID, "attempt", episode.DispatchAttempts, "error", err)
		s.release(settleCtx, lane, episode, err)
		return nil, err
	}

	task := &models.ExternalTask{
		ExternalTaskID: taskID,
		Type:           lane.Kind,
		ContentItemID:  &episode.ID,
		Data:           data,
		Status:         models.TaskStatusInitiated,
	}
	if err := s.record(settleCtx, lane, episode, task); err != nil {
		slog.Error("failed to record dispatched task", "lane", lane.Kind, "episode_id", episode.ID, "task_id", taskID, "error", err)
		s.release(settleCtx, lane, episode, err)
		return nil, err
	}

	slog.Info("episode dispatched", "lane", lane.Kind, "episode_id", episode.ID, "task_id", taskID)
	return task, nil
}

// record stores the correlation and stamps the episode in one transaction.
func (s *dispatchService) record(ctx context.Context, lane models.Lane, episode *models.Episode, task *models.ExternalTask) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	id, err := s.tasks.Create(ctx, tx, task)
	if err != nil {
		return fmt.Errorf("error creating task: %w", err)
	}
	task.ID = id

	n, err := s.episodes.MarkDispatched(ctx, tx, lane, episode.ID, s.now())
	if err != nil {
		return fmt.Errorf("error stamping episode: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("episode %d left %s before it was recorded", episode.ID, lane.InFlightStatus)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *dispatchService) release(ctx context.Context, lane models.Lane, episode *models.Episode, cause error) {
	rel := s.policy.Release(lane, episode.DispatchAttempts, cause.Error(), s.now())
	if _, err := s.episodes.Release(ctx, nil, lane, episode.ID, rel); err != nil {
		slog.Error("failed to release claim", "lane", lane.Kind, "episode_id", episode.ID, "error", err)
		return
	}
	if rel.Status == models.EpisodeStatusFailed {
		slog.Warn("episode dead-lettered", "lane", lane.Kind, "episode_id", episode.ID, "attempts", episode.DispatchAttempts)
	}
}

// postpone undoes a claim without charging the attempt: the compute service
// never looked at the job.
func (s *dispatchService) postpone(ctx context.Context, lane models.Lane, episode *models.Episode, cause error) {
	now := s.now()
	next := s.policy.RetryAt(episode.DispatchAttempts, now)
	if _, err := s.episodes.Postpone(ctx, lane, episode.ID, next, cause.Error(), now); err != nil {
		slog.Error("failed to postpone claim", "lane", lane.Kind, "episode_id", episode.ID, "error", err)
	}
}

func (s *dispatchService) endpoint(lane models.Lane) string {
	if lane.Kind == models.UploadLane.Kind {
		return s.cfg.Compute.UploadURL
	}
	return s.cfg.Compute.GenerationURL
}

func (s *dispatchService) callbackURL(lane models.Lane, episodeID int64, nonce string) (string, error) {
	path := s.cfg.GenerationCallbackPath
	if lane.Kind == models.UploadLane.Kind {
		path = s.cfg.UploadCallbackPath
	}
	callback := s.cfg.CallbackURL(path)
	if s.cfg.SecretKey == "" {
		return callback, nil
	}

	token, err := utils.GenerateCallbackToken(s.cfg.SecretKey, lane.Kind, episodeID, nonce, s.cfg.CallbackTokenTTL)
	if err != nil {
		return "", err
	}
	return callback + "?token=" + url.QueryEscape(token), nil
}

func (s *dispatchService) presign(ctx context.Context, key string) (string, error) {
	if s.storage == nil || key == "" {
		return "", nil
	}
	return s.storage.PresignGet(ctx, key, s.cfg.CallbackTokenTTL)
}

// buildRequest renders the compute request for the episode and the task data
// persisted with it.
func (s *dispatchService) buildRequest(ctx context.Context, lane models.Lane, episode *models.Episode) (any, json.RawMessage, error) {
	nonce, err := gonanoid.New()
	if err != nil {
		return nil, nil, err
	}
	callback, err := s.callbackURL(lane, episode.ID, nonce)
	if err != nil {
		return nil, nil, err
	}

	data := models.TaskData{ContentItemID: episode.ID, Nonce: nonce}
	var body any

	switch lane.Kind {
	case models.GenerationLane.Kind:
		req := transfer.GenerationRequest{
			CallbackURL:         callback,
			ContentItemID:       episode.ID,
			AudioBucketKey:      models.StringValue(episode.AudioBucketKey),
			BackgroundBucketKey: models.StringValue(episode.BackgroundBucketKey),
		}
		if req.AudioURL, err = s.presign(ctx, req.AudioBucketKey); err != nil {
			return nil, nil, err
		}
		if req.BackgroundURL, err = s.presign(ctx, req.BackgroundBucketKey); err != nil {
			return nil, nil, err
		}
		data.AudioBucketKey = req.AudioBucketKey
		data.BackgroundBucketKey = req.BackgroundBucketKey
		body = req

	case models.UploadLane.Kind:
		req := transfer.UploadRequest{
			CallbackURL:    callback,
			ContentItemID:  episode.ID,
			VideoBucketKey: models.StringValue(episode.VideoBucketKey),
			Title:          episode.Title,
			Description:    episode.Description,
		}
		if episode.ScheduledPublishAt != nil {
			req.ScheduledPublishAt = episode.ScheduledPublishAt.UTC().Format(time.RFC3339)
		}
		if req.VideoURL, err = s.presign(ctx, req.VideoBucketKey); err != nil {
			return nil, nil, err
		}
		data.VideoBucketKey = req.VideoBucketKey
		body = req

	default:
		return nil, nil, fmt.Errorf("unknown lane %q", lane.Kind)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, nil, err
	}
	return body, raw, nil
}

func (s *dispatchService) ReapStale(ctx context.Context, lane models.Lane, olderThan time.Duration) (int, error) {
	now := s.now()
	stale, err := s.episodes.ListStale(ctx, lane, now.Add(-olderThan))
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, episode := range stale {
		if err := s.reap(ctx, lane, episode, now); err != nil {
			slog.Error("failed to reap episode", "lane", lane.Kind, "episode_id", episode.ID, "error", err)
			continue
		}
		reaped++
	}
	return reaped, nil
}

func (s *dispatchService) reap(ctx context.Context, lane models.Lane, episode *models.Episode, now time.Time) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	reason := fmt.Sprintf("no callback after %s", now.Sub(episode.LastStatusChangeAt).Round(time.Second))
	n, err := s.episodes.Release(ctx, tx, lane, episode.ID, s.policy.Release(lane, episode.DispatchAttempts, reason, now))
	if err != nil {
		return err
	}
	if n == 0 {
		// A callback settled it in the meantime.
		return tx.Commit()
	}

	if _, err = s.tasks.CloseOpenForContentItem(ctx, tx, episode.ID, lane.Kind, models.TaskStatusError); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	slog.Warn("stale episode released", "lane", lane.Kind, "episode_id", episode.ID, "reason", reason)
	return nil
}
