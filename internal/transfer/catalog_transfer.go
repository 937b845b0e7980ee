package transfer

type ShowCreation struct {
	Title string `json:"title"`
}

type EpisodeCreation struct {
	Title               string `json:"title"`
	Description         string `json:"description"`
	ScheduledPublishAt  string `json:"scheduled_publish_at"`
	AudioBucketKey      string `json:"audio_bucket_key"`
	BackgroundBucketKey string `json:"background_bucket_key"`
}

type EpisodeRename struct {
	Title string `json:"title"`
}
