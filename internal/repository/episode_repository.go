package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/maheshrc27/podcast-studio/internal/models"
)

const episodeColumns = `id, show_id, title, description, slug, status, scheduled_publish_at,
	youtube_status, website_status, x_status, audio_bucket_key, background_bucket_key,
	video_bucket_key, youtube_video_id, dispatch_attempts, next_attempt_at, last_error,
	last_status_change_at, created_at, updated_at`

// Release describes where a claimed episode goes when its work did not finish.
type Release struct {
	Status        string
	NextAttemptAt *time.Time
	LastError     string
	At            time.Time
}

type EpisodeRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, episode *models.Episode) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Episode, error)
	Exists(ctx context.Context, tx *sqlx.Tx, id int64) (bool, error)
	UpdateTitle(ctx context.Context, id int64, title, slug string) (int64, error)
	ClaimNext(ctx context.Context, lane models.Lane, now time.Time) (*models.Episode, error)
	MarkDispatched(ctx context.Context, tx *sqlx.Tx, lane models.Lane, id int64, now time.Time) (int64, error)
	Release(ctx context.Context, tx *sqlx.Tx, lane models.Lane, id int64, r Release) (int64, error)
	Postpone(ctx context.Context, lane models.Lane, id int64, nextAttemptAt time.Time, reason string, now time.Time) (int64, error)
	Requeue(ctx context.Context, id int64, now time.Time) (int64, error)
	CompleteGeneration(ctx context.Context, tx *sqlx.Tx, id int64, videoBucketKey string, now time.Time) (int64, error)
	CompleteUpload(ctx context.Context, tx *sqlx.Tx, id int64, youtubeVideoID, youtubeStatus string, now time.Time) (int64, error)
	ListStale(ctx context.Context, lane models.Lane, before time.Time) ([]*models.Episode, error)
	ListAwaitingPublication(ctx context.Context) ([]*models.Episode, error)
	UpdateYoutubeStatus(ctx context.Context, id int64, status string, now time.Time) error
}

type episodeRepository struct {
	db *sqlx.DB
}

func NewEpisodeRepository(db *sqlx.DB) EpisodeRepository {
	return &episodeRepository{db: db}
}

func (r *episodeRepository) Create(ctx context.Context, tx *sqlx.Tx, episode *models.Episode) (int64, error) {
	query := `
		INSERT INTO episodes (show_id, title, description, slug, status, scheduled_publish_at,
			audio_bucket_key, background_bucket_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	var id int64
	err := sqlx.GetContext(ctx, conn(r.db, tx), &id, query,
		episode.ShowID, episode.Title, episode.Description, episode.Slug, episode.Status,
		episode.ScheduledPublishAt, episode.AudioBucketKey, episode.BackgroundBucketKey)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *episodeRepository) GetByID(ctx context.Context, id int64) (*models.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE id = $1`

	var episode models.Episode
	err := r.db.GetContext(ctx, &episode, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &episode, nil
}

func (r *episodeRepository) Exists(ctx context.Context, tx *sqlx.Tx, id int64) (bool, error) {
	var result int
	err := sqlx.GetContext(ctx, conn(r.db, tx), &result, "SELECT 1 FROM episodes WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return result == 1, nil
}

func (r *episodeRepository) UpdateTitle(ctx context.Context, id int64, title, slug string) (int64, error) {
	query := `UPDATE episodes SET title = $1, slug = $2, updated_at = $3 WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, title, slug, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

// ClaimNext moves the highest-priority eligible episode of the lane into the
// in-flight status. The advisory lock serializes concurrent claimers, and the
// status precondition on the UPDATE keeps the transition a compare-and-swap.
// It returns ErrLaneBusy when the lane already has an in-flight episode and
// (nil, nil) when nothing is eligible.
func (r *episodeRepository) ClaimNext(ctx context.Context, lane models.Lane, now time.Time) (*models.Episode, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", lane.LockID); err != nil {
		return nil, fmt.Errorf("failed to acquire lane lock: %w", err)
	}

	var inFlight int
	err = tx.GetContext(ctx, &inFlight, "SELECT 1 FROM episodes WHERE status = $1 LIMIT 1", lane.InFlightStatus)
	if err == nil {
		return nil, ErrLaneBusy
	}
	if !errors.Is(err, sql.ErrNoRows) {
		slog.Info(err.Error())
		return nil, err
	}

	candidate := `
		SELECT ` + episodeColumns + `
		FROM episodes
		WHERE status = $1 AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
		ORDER BY scheduled_publish_at IS NULL, scheduled_publish_at ASC, created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`
	var episode models.Episode
	if err := tx.GetContext(ctx, &episode, candidate, lane.PendingStatus, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	claim := `
		UPDATE episodes
		SET status = $1,
			dispatch_attempts = dispatch_attempts + 1,
			last_status_change_at = $2,
			updated_at = $2
		WHERE id = $3 AND status = $4
	`
	res, err := tx.ExecContext(ctx, claim, lane.InFlightStatus, now, episode.ID, lane.PendingStatus)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrLaneBusy
		}
		slog.Info(err.Error())
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return nil, ErrLaneBusy
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	episode.Status = lane.InFlightStatus
	episode.DispatchAttempts++
	episode.LastStatusChangeAt = now
	episode.UpdatedAt = now
	return &episode, nil
}

func (r *episodeRepository) MarkDispatched(ctx context.Context, tx *sqlx.Tx, lane models.Lane, id int64, now time.Time) (int64, error) {
	query := `
		UPDATE episodes
		SET last_error = NULL,
			updated_at = $1
		WHERE id = $2 AND status = $3
	`
	res, err := conn(r.db, tx).ExecContext(ctx, query, now, id, lane.InFlightStatus)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

// Release moves an in-flight episode of the lane to r.Status. It only
// applies while the episode is still in flight.
func (r *episodeRepository) Release(ctx context.Context, tx *sqlx.Tx, lane models.Lane, id int64, rel Release) (int64, error) {
	query := `
		UPDATE episodes
		SET status = $1,
			next_attempt_at = $2,
			last_error = $3,
			last_status_change_at = $4,
			updated_at = $4
		WHERE id = $5 AND status = $6
	`
	res, err := conn(r.db, tx).ExecContext(ctx, query, rel.Status, rel.NextAttemptAt, nullIfEmpty(rel.LastError), rel.At, id, lane.InFlightStatus)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

// Postpone returns an in-flight episode to the lane's pending status and
// gives back the attempt its claim counted.
func (r *episodeRepository) Postpone(ctx context.Context, lane models.Lane, id int64, nextAttemptAt time.Time, reason string, now time.Time) (int64, error) {
	query := `
		UPDATE episodes
		SET status = $1,
			next_attempt_at = $2,
			last_error = $3,
			dispatch_attempts = GREATEST(dispatch_attempts - 1, 0),
			last_status_change_at = $4,
			updated_at = $4
		WHERE id = $5 AND status = $6
	`
	res, err := r.db.ExecContext(ctx, query, lane.PendingStatus, nextAttemptAt, nullIfEmpty(reason), now, id, lane.InFlightStatus)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

// Requeue moves a dead-lettered episode back to the pending status of the lane
// it failed in, with a fresh attempt budget.
func (r *episodeRepository) Requeue(ctx context.Context, id int64, now time.Time) (int64, error) {
	query := `
		UPDATE episodes
		SET status = CASE WHEN video_bucket_key IS NULL THEN $1 ELSE $2 END,
			dispatch_attempts = 0,
			next_attempt_at = NULL,
			last_error = NULL,
			last_status_change_at = $3,
			updated_at = $3
		WHERE id = $4 AND status = $5
	`
	res, err := r.db.ExecContext(ctx, query, models.GenerationLane.PendingStatus, models.UploadLane.PendingStatus, now, id, models.EpisodeStatusFailed)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

func (r *episodeRepository) CompleteGeneration(ctx context.Context, tx *sqlx.Tx, id int64, videoBucketKey string, now time.Time) (int64, error) {
	query := `
		UPDATE episodes
		SET video_bucket_key = $1,
			status = $2,
			dispatch_attempts = 0,
			next_attempt_at = NULL,
			last_error = NULL,
			last_status_change_at = $3,
			updated_at = $3
		WHERE id = $4 AND status = $5
	`
	res, err := conn(r.db, tx).ExecContext(ctx, query, videoBucketKey, models.GenerationLane.DoneStatus, now, id, models.GenerationLane.InFlightStatus)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

func (r *episodeRepository) CompleteUpload(ctx context.Context, tx *sqlx.Tx, id int64, youtubeVideoID, youtubeStatus string, now time.Time) (int64, error) {
	query := `
		UPDATE episodes
		SET youtube_video_id = $1,
			youtube_status = $2,
			status = $3,
			dispatch_attempts = 0,
			next_attempt_at = NULL,
			last_error = NULL,
			last_status_change_at = $4,
			updated_at = $4
		WHERE id = $5 AND status = $6
	`
	res, err := conn(r.db, tx).ExecContext(ctx, query, youtubeVideoID, youtubeStatus, models.UploadLane.DoneStatus, now, id, models.UploadLane.InFlightStatus)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

func (r *episodeRepository) ListStale(ctx context.Context, lane models.Lane, before time.Time) ([]*models.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE status = $1 AND last_status_change_at < $2 ORDER BY id`

	var episodes []*models.Episode
	if err := r.db.SelectContext(ctx, &episodes, query, lane.InFlightStatus, before); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return episodes, nil
}

func (r *episodeRepository) ListAwaitingPublication(ctx context.Context) ([]*models.Episode, error) {
	query := `
		SELECT ` + episodeColumns + `
		FROM episodes
		WHERE youtube_video_id IS NOT NULL AND youtube_status IN ($1, $2)
		ORDER BY id
	`

	var episodes []*models.Episode
	if err := r.db.SelectContext(ctx, &episodes, query, models.PublishStatusPrivate, models.PublishStatusScheduled); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return episodes, nil
}

func (r *episodeRepository) UpdateYoutubeStatus(ctx context.Context, id int64, status string, now time.Time) error {
	query := `
		UPDATE episodes
		SET youtube_status = $1,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, now, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
