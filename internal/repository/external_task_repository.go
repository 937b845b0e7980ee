package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/maheshrc27/podcast-studio/internal/models"
)

type ExternalTaskRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, task *models.ExternalTask) (int64, error)
	FindByExternalID(ctx context.Context, externalTaskID, taskType string) (*models.ExternalTask, error)
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, externalTaskID, status string) (int64, error)
	CloseOpenForContentItem(ctx context.Context, tx *sqlx.Tx, contentItemID int64, taskType, status string) (int64, error)
}

type externalTaskRepository struct {
	db *sqlx.DB
}

func NewExternalTaskRepository(db *sqlx.DB) ExternalTaskRepository {
	return &externalTaskRepository{db: db}
}

// Create records a freshly dispatched task in the initiated status.
func (r *externalTaskRepository) Create(ctx context.Context, tx *sqlx.Tx, task *models.ExternalTask) (int64, error) {
	query := `
		INSERT INTO external_tasks (external_task_id, type, content_item_id, data, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	data := []byte(task.Data)
	if len(data) == 0 {
		data = []byte("{}")
	}

	var id int64
	err := sqlx.GetContext(ctx, conn(r.db, tx), &id, query,
		task.ExternalTaskID, task.Type, task.ContentItemID, data, models.TaskStatusInitiated)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return 0, ErrDuplicateTaskID
		}
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

// FindByExternalID returns (nil, nil) when no task matches. An empty taskType
// matches any type.
func (r *externalTaskRepository) FindByExternalID(ctx context.Context, externalTaskID, taskType string) (*models.ExternalTask, error) {
	query := `
		SELECT id, external_task_id, type, content_item_id, data, status, created_at, updated_at
		FROM external_tasks
		WHERE external_task_id = $1 AND ($2::text = '' OR type = $2)
	`

	var task models.ExternalTask
	err := r.db.GetContext(ctx, &task, query, externalTaskID, taskType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &task, nil
}

// UpdateStatus settles an open task. Zero rows means the task is unknown or
// another delivery already settled it.
func (r *externalTaskRepository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, externalTaskID, status string) (int64, error) {
	query := `
		UPDATE external_tasks
		SET status = $1,
			updated_at = $2
		WHERE external_task_id = $3 AND status NOT IN ($4, $5)
	`
	res, err := conn(r.db, tx).ExecContext(ctx, query, status, time.Now(), externalTaskID, models.TaskStatusCompleted, models.TaskStatusError)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

func (r *externalTaskRepository) CloseOpenForContentItem(ctx context.Context, tx *sqlx.Tx, contentItemID int64, taskType, status string) (int64, error) {
	query := `
		UPDATE external_tasks
		SET status = $1,
			updated_at = $2
		WHERE content_item_id = $3 AND type = $4 AND status IN ($5, $6, $7)
	`
	res, err := conn(r.db, tx).ExecContext(ctx, query, status, time.Now(), contentItemID, taskType,
		models.TaskStatusInitiated, models.TaskStatusPending, models.TaskStatusProcessing)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}
