package models

import "time"

// Episode is the publishable content item driven through the production lanes.
type Episode struct {
	ID                  int64      `db:"id" json:"id"`
	ShowID              int64      `db:"show_id" json:"show_id"`
	Title               string     `db:"title" json:"title"`
	Description         string     `db:"description" json:"description"`
	Slug                string     `db:"slug" json:"slug"`
	Status              string     `db:"status" json:"status"`
	ScheduledPublishAt  *time.Time `db:"scheduled_publish_at" json:"scheduled_publish_at"`
	YoutubeStatus       string     `db:"youtube_status" json:"youtube_status"`
	WebsiteStatus       string     `db:"website_status" json:"website_status"`
	XStatus             string     `db:"x_status" json:"x_status"`
	AudioBucketKey      *string    `db:"audio_bucket_key" json:"audio_bucket_key"`
	BackgroundBucketKey *string    `db:"background_bucket_key" json:"background_bucket_key"`
	VideoBucketKey      *string    `db:"video_bucket_key" json:"video_bucket_key"`
	YoutubeVideoID      *string    `db:"youtube_video_id" json:"youtube_video_id"`
	DispatchAttempts    int        `db:"dispatch_attempts" json:"dispatch_attempts"`
	NextAttemptAt       *time.Time `db:"next_attempt_at" json:"next_attempt_at"`
	LastError           *string    `db:"last_error" json:"last_error"`
	LastStatusChangeAt  time.Time  `db:"last_status_change_at" json:"last_status_change_at"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	EpisodeStatusPending    = "pending"
	EpisodeStatusGenerating = "generating"
	EpisodeStatusGenerated  = "generated"
	EpisodeStatusUploading  = "uploading"
	EpisodeStatusUploaded   = "uploaded"
	EpisodeStatusFailed     = "failed"
)

// Per-platform publication status.
const (
	PublishStatusNone      = "none"
	PublishStatusScheduled = "scheduled"
	PublishStatusPublic    = "public"
	PublishStatusPrivate   = "private"
	PublishStatusDeleted   = "deleted"
)

// StringValue dereferences an optional column.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
