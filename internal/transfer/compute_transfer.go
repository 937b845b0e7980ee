package transfer

// GenerationRequest asks the compute service to render an episode video.
type GenerationRequest struct {
	CallbackURL         string `json:"callbackUrl"`
	ContentItemID       int64  `json:"contentItemId"`
	AudioBucketKey      string `json:"audio_bucket_key"`
	BackgroundBucketKey string `json:"background_bucket_key"`
	AudioURL            string `json:"audio_url,omitempty"`
	BackgroundURL       string `json:"background_url,omitempty"`
}

// UploadRequest asks the compute service to publish a rendered video to YouTube.
type UploadRequest struct {
	CallbackURL        string `json:"callbackUrl"`
	ContentItemID      int64  `json:"contentItemId"`
	VideoBucketKey     string `json:"video_bucket_key"`
	VideoURL           string `json:"video_url,omitempty"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	ScheduledPublishAt string `json:"scheduled_publish_at,omitempty"`
}

type ComputeResponse struct {
	TaskID string `json:"taskId"`
}
