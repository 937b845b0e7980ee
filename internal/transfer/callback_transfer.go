package transfer

// CallbackPayload is the body the compute service posts when a job settles.
type CallbackPayload struct {
	TaskID         string `json:"taskId"`
	Status         string `json:"status"`
	VideoBucketKey string `json:"video_bucket_key"`
	YoutubeVideoID string `json:"youtube_video_id"`
	Error          string `json:"error"`
}
