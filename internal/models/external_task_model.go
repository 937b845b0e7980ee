package models

import (
	"encoding/json"
	"time"
)

// ExternalTask correlates a remote job identifier with the episode it serves.
type ExternalTask struct {
	ID             int64           `db:"id" json:"id"`
	ExternalTaskID string          `db:"external_task_id" json:"external_task_id"`
	Type           string          `db:"type" json:"type"`
	ContentItemID  *int64          `db:"content_item_id" json:"content_item_id"`
	Data           json.RawMessage `db:"data" json:"data"`
	Status         string          `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

const (
	TaskStatusInitiated  = "initiated"
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusError      = "error"
)

// IsTerminal reports whether no further callback may change the task.
func (t *ExternalTask) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusError
}

const (
	TaskTypeVideoGeneration = "video_generation_request"
	TaskTypeYoutubeUpload   = "youtube_upload_request"
)

// TaskData is the payload persisted with every external task. ContentItemID is
// mandatory; the remaining fields echo what was sent to the compute service.
type TaskData struct {
	ContentItemID       int64  `json:"contentItemId"`
	AudioBucketKey      string `json:"audioBucketKey,omitempty"`
	BackgroundBucketKey string `json:"backgroundBucketKey,omitempty"`
	VideoBucketKey      string `json:"videoBucketKey,omitempty"`
	Nonce               string `json:"nonce,omitempty"`
}
