package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/podcast-studio/internal/models"
	"github.com/maheshrc27/podcast-studio/internal/service"
)

// StaleReaperJob releases episodes whose callback never arrived.
type StaleReaperJob struct {
	ds         service.DispatchService
	staleAfter time.Duration
}

func NewStaleReaperJob(ds service.DispatchService, staleAfter time.Duration) *StaleReaperJob {
	return &StaleReaperJob{ds: ds, staleAfter: staleAfter}
}

func (j *StaleReaperJob) Run() {
	if j.staleAfter <= 0 {
		return
	}
	ctx := context.Background()

	for _, lane := range models.Lanes {
		n, err := j.ds.ReapStale(ctx, lane, j.staleAfter)
		if err != nil {
			slog.Error("stale reaper failed", "lane", lane.Kind, "error", err)
			continue
		}
		if n > 0 {
			slog.Info("stale episodes released", "lane", lane.Kind, "count", n)
		}
	}
}
