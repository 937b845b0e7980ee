package test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/maheshrc27/podcast-studio/internal/models"
)

// NewMockDB returns a sqlx handle backed by sqlmock that is closed when the
// test ends.
func NewMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { mockDb.Close() })
	return sqlx.NewDb(mockDb, "postgres"), mock
}

var episodeColumns = []string{
	"id", "show_id", "title", "description", "slug", "status", "scheduled_publish_at",
	"youtube_status", "website_status", "x_status", "audio_bucket_key", "background_bucket_key",
	"video_bucket_key", "youtube_video_id", "dispatch_attempts", "next_attempt_at", "last_error",
	"last_status_change_at", "created_at", "updated_at",
}

// EpisodeRows renders episodes the way the episodes table returns them.
func EpisodeRows(episodes ...*models.Episode) *sqlmock.Rows {
	rows := sqlmock.NewRows(episodeColumns)
	for _, e := range episodes {
		rows.AddRow(e.ID, e.ShowID, e.Title, e.Description, e.Slug, e.Status, e.ScheduledPublishAt,
			e.YoutubeStatus, e.WebsiteStatus, e.XStatus, e.AudioBucketKey, e.BackgroundBucketKey,
			e.VideoBucketKey, e.YoutubeVideoID, e.DispatchAttempts, e.NextAttemptAt, e.LastError,
			e.LastStatusChangeAt, e.CreatedAt, e.UpdatedAt)
	}
	return rows
}

// TaskRows renders external tasks the way the external_tasks table returns them.
func TaskRows(tasks ...*models.ExternalTask) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "external_task_id", "type", "content_item_id", "data", "status", "created_at", "updated_at"})
	for _, t := range tasks {
		rows.AddRow(t.ID, t.ExternalTaskID, t.Type, t.ContentItemID, []byte(t.Data), t.Status, t.CreatedAt, t.UpdatedAt)
	}
	return rows
}

func Ptr[T any](v T) *T { return &v }
