package service

import (
	"math"
	"time"

	config "github.com/maheshrc27/podcast-studio/configs"
	"github.com/maheshrc27/podcast-studio/internal/models"
	"github.com/maheshrc27/podcast-studio/internal/repository"
)

// Backoff doubles the delay each attempt: min(Base * 2^(attempt-1), Max).
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
		if d > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// RetryPolicy decides where an episode goes after its delegated work failed.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     Backoff
}

func NewRetryPolicy(cfg config.Retry) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax},
	}
}

// RetryAt is when an episode postponed after attempts claims is eligible again.
func (p RetryPolicy) RetryAt(attempts int, now time.Time) time.Time {
	return now.Add(p.Backoff.Delay(attempts))
}

// Release returns the episode to the lane's pending status with a backoff
// gate, or dead-letters it once attempts reaches MaxAttempts.
func (p RetryPolicy) Release(lane models.Lane, attempts int, reason string, now time.Time) repository.Release {
	if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
		return repository.Release{
			Status:    models.EpisodeStatusFailed,
			LastError: reason,
			At:        now,
		}
	}
	next := now.Add(p.Backoff.Delay(attempts))
	return repository.Release{
		Status:        lane.PendingStatus,
		NextAttemptAt: &next,
		LastError:     reason,
		At:            now,
	}
}
