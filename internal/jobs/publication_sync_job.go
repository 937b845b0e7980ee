package job

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maheshrc27/podcast-studio/internal/models"
	"github.com/maheshrc27/podcast-studio/internal/repository"
	"github.com/maheshrc27/podcast-studio/internal/service"
)

type PublicationSyncJob struct {
	er repository.EpisodeRepository
	yt service.YoutubeService
}

func NewPublicationSyncJob(er repository.EpisodeRepository, yt service.YoutubeService) *PublicationSyncJob {
	return &PublicationSyncJob{
		er: er,
		yt: yt,
	}
}

func (c *PublicationSyncJob) SyncStatuses() {
	ctx := context.Background()

	episodes, err := c.er.ListAwaitingPublication(ctx)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 4
	semaphore := make(chan struct{}, concurrencyLimit)

	for start := 0; start < len(episodes); start += service.YoutubeBatchSize {
		end := min(start+service.YoutubeBatchSize, len(episodes))

		wg.Add(1)
		semaphore <- struct{}{}

		go func(batch []*models.Episode) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if _, err := c.yt.SyncPublication(ctx, batch); err != nil {
				slog.Info("Unable to sync YouTube publication status", "error", err)
			}
		}(episodes[start:end])
	}

	wg.Wait()
}
