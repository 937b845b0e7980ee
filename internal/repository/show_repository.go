package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/maheshrc27/podcast-studio/internal/models"
)

type ShowRepository interface {
	Create(ctx context.Context, show *models.Show) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Show, error)
}

type showRepository struct {
	db *sqlx.DB
}

func NewShowRepository(db *sqlx.DB) ShowRepository {
	return &showRepository{db: db}
}

func (r *showRepository) Create(ctx context.Context, show *models.Show) (int64, error) {
	query := `INSERT INTO shows (title, slug) VALUES ($1, $2) RETURNING id`

	var id int64
	if err := r.db.GetContext(ctx, &id, query, show.Title, show.Slug); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *showRepository) GetByID(ctx context.Context, id int64) (*models.Show, error) {
	query := `SELECT id, title, slug, created_at, updated_at FROM shows WHERE id = $1`

	var show models.Show
	err := r.db.GetContext(ctx, &show, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &show, nil
}
