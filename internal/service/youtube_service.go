package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	config "github.com/maheshrc27/podcast-studio/configs"
	"github.com/maheshrc27/podcast-studio/internal/models"
	"github.com/maheshrc27/podcast-studio/internal/repository"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YoutubeBatchSize is the most ids videos.list accepts per call.
const YoutubeBatchSize = 50

// YoutubeService follows uploaded episodes until YouTube reports their final
// visibility.
type YoutubeService interface {
	SyncPublication(ctx context.Context, episodes []*models.Episode) (int, error)
}

type youtubeService struct {
	yt       *youtube.Service
	episodes repository.EpisodeRepository
	now      func() time.Time
}

// NewYoutubeService authenticates with the channel's refresh token. opts
// replace the default OAuth client when given.
func NewYoutubeService(ctx context.Context, cfg config.Youtube, episodes repository.EpisodeRepository, opts ...option.ClientOption) (YoutubeService, error) {
	if len(opts) == 0 {
		if !cfg.Enabled() {
			return nil, errors.New("YouTube OAuth2 configuration is incomplete")
		}
		conf := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{youtube.YoutubeReadonlyScope},
			Endpoint:     google.Endpoint,
		}
		tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
		opts = []option.ClientOption{option.WithTokenSource(tokenSource)}
	}

	yt, err := youtube.NewService(ctx, opts...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &youtubeService{yt: yt, episodes: episodes, now: time.Now}, nil
}

// SyncPublication refreshes youtube_status for up to YoutubeBatchSize
// episodes and returns how many changed.
func (s *youtubeService) SyncPublication(ctx context.Context, episodes []*models.Episode) (int, error) {
	if len(episodes) == 0 {
		return 0, nil
	}
	if len(episodes) > YoutubeBatchSize {
		episodes = episodes[:YoutubeBatchSize]
	}

	ids := make([]string, 0, len(episodes))
	for _, e := range episodes {
		ids = append(ids, models.StringValue(e.YoutubeVideoID))
	}

	resp, err := s.yt.Videos.List([]string{"status"}).Id(ids...).Context(ctx).Do()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	found := make(map[string]*youtube.VideoStatus, len(resp.Items))
	for _, item := range resp.Items {
		found[item.Id] = item.Status
	}

	changed := 0
	for _, e := range episodes {
		status := youtubeStatus(found, models.StringValue(e.YoutubeVideoID))
		if status == e.YoutubeStatus {
			continue
		}
		if err := s.episodes.UpdateYoutubeStatus(ctx, e.ID, status, s.now()); err != nil {
			return changed, err
		}
		slog.Info("youtube status changed", "episode_id", e.ID, "from", e.YoutubeStatus, "to", status)
		changed++
	}
	return changed, nil
}

func youtubeStatus(found map[string]*youtube.VideoStatus, videoID string) string {
	status, ok := found[videoID]
	if !ok {
		return models.PublishStatusDeleted
	}
	if status == nil {
		return models.PublishStatusPrivate
	}
	switch status.PrivacyStatus {
	case "public":
		return models.PublishStatusPublic
	case "private":
		if status.PublishAt != "" {
			return models.PublishStatusScheduled
		}
		return models.PublishStatusPrivate
	default:
		// unlisted videos are reachable by link only.
		return models.PublishStatusPrivate
	}
}
