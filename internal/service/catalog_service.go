package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/podcast-studio/internal/models"
	"github.com/maheshrc27/podcast-studio/internal/repository"
	"github.com/maheshrc27/podcast-studio/internal/transfer"
	"github.com/maheshrc27/podcast-studio/pkg/slug"
)

// slugAttempts bounds how often a write is retried after losing a slug race.
const slugAttempts = 3

// SlugAllocator picks a free slug within a scope.
type SlugAllocator interface {
	EnsureUnique(ctx context.Context, candidate, table, column string, scope []slug.Condition, excludeID int64) (string, error)
}

type CatalogService interface {
	CreateShow(ctx context.Context, sc *transfer.ShowCreation) (*models.Show, error)
	CreateEpisode(ctx context.Context, showID int64, ec *transfer.EpisodeCreation) (*models.Episode, error)
	RenameEpisode(ctx context.Context, episodeID int64, title string) (*models.Episode, error)
	GetEpisode(ctx context.Context, episodeID int64) (*models.Episode, error)
	RequeueEpisode(ctx context.Context, episodeID int64) (*models.Episode, error)
}

type catalogService struct {
	shows    repository.ShowRepository
	episodes repository.EpisodeRepository
	slugs    SlugAllocator
}

func NewCatalogService(shows repository.ShowRepository, episodes repository.EpisodeRepository, slugs SlugAllocator) CatalogService {
	return &catalogService{
		shows:    shows,
		episodes: episodes,
		slugs:    slugs,
	}
}

func (s *catalogService) CreateShow(ctx context.Context, sc *transfer.ShowCreation) (*models.Show, error) {
	title := strings.TrimSpace(sc.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	show := &models.Show{Title: title}
	err := withSlugRetry(func() error {
		value, err := s.slugs.EnsureUnique(ctx, slug.FromTitle(title, "show"), "shows", "slug", nil, 0)
		if err != nil {
			return err
		}
		show.Slug = value
		show.ID, err = s.shows.Create(ctx, show)
		return err
	})
	if err != nil {
		return nil, err
	}
	return show, nil
}

func (s *catalogService) CreateEpisode(ctx context.Context, showID int64, ec *transfer.EpisodeCreation) (*models.Episode, error) {
	title := strings.TrimSpace(ec.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	episode := &models.Episode{
		ShowID:      showID,
		Title:       title,
		Description: ec.Description,
		Status:      models.EpisodeStatusPending,
	}
	if ec.ScheduledPublishAt != "" {
		at, err := time.Parse(time.RFC3339, ec.ScheduledPublishAt)
		if err != nil {
			return nil, fmt.Errorf("%w: scheduled_publish_at must be RFC 3339", ErrValidation)
		}
		episode.ScheduledPublishAt = &at
	}
	if ec.AudioBucketKey != "" {
		episode.AudioBucketKey = &ec.AudioBucketKey
	}
	if ec.BackgroundBucketKey != "" {
		episode.BackgroundBucketKey = &ec.BackgroundBucketKey
	}

	show, err := s.shows.GetByID(ctx, showID)
	if err != nil {
		return nil, err
	}
	if show == nil {
		return nil, fmt.Errorf("%w: show %d", ErrNotFound, showID)
	}

	scope := []slug.Condition{{Column: "show_id", Value: showID}}
	err = withSlugRetry(func() error {
		value, err := s.slugs.EnsureUnique(ctx, slug.FromTitle(title, "episode"), "episodes", "slug", scope, 0)
		if err != nil {
			return err
		}
		episode.Slug = value
		episode.ID, err = s.episodes.Create(ctx, nil, episode)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("episode created", "episode_id", episode.ID, "show_id", showID, "slug", episode.Slug)
	return episode, nil
}

func (s *catalogService) RenameEpisode(ctx context.Context, episodeID int64, title string) (*models.Episode, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	episode, err := s.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}

	scope := []slug.Condition{{Column: "show_id", Value: episode.ShowID}}
	err = withSlugRetry(func() error {
		value, err := s.slugs.EnsureUnique(ctx, slug.FromTitle(title, "episode"), "episodes", "slug", scope, episodeID)
		if err != nil {
			return err
		}
		n, err := s.episodes.UpdateTitle(ctx, episodeID, title, value)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: episode %d", ErrNotFound, episodeID)
		}
		episode.Title = title
		episode.Slug = value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return episode, nil
}

func (s *catalogService) GetEpisode(ctx context.Context, episodeID int64) (*models.Episode, error) {
	episode, err := s.episodes.GetByID(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if episode == nil {
		return nil, fmt.Errorf("%w: episode %d", ErrNotFound, episodeID)
	}
	return episode, nil
}

// RequeueEpisode gives a dead-lettered episode a fresh attempt budget in the
// lane it failed in.
func (s *catalogService) RequeueEpisode(ctx context.Context, episodeID int64) (*models.Episode, error) {
	n, err := s.episodes.Requeue(ctx, episodeID, time.Now())
	if err != nil {
		return nil, err
	}

	episode, err := s.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: episode %d is %s, only failed episodes can be requeued", ErrValidation, episodeID, episode.Status)
	}

	slog.Info("episode requeued", "episode_id", episodeID, "status", episode.Status)
	return episode, nil
}

// withSlugRetry reruns write while it loses the race for a slug to a
// concurrent writer.
func withSlugRetry(write func() error) error {
	var err error
	for i := 0; i < slugAttempts; i++ {
		if err = write(); err == nil || !slug.IsUniqueViolation(err) {
			return err
		}
		slog.Info("slug taken concurrently, retrying", "attempt", i+1)
	}
	return err
}
