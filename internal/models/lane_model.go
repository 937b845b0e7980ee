package models

// Lane describes one kind of delegated work and the episode statuses it moves
// between: PendingStatus -> InFlightStatus -> DoneStatus, or back to
// PendingStatus when the job fails.
type Lane struct {
	Kind           string
	PendingStatus  string
	InFlightStatus string
	DoneStatus     string
	// LockID keys the advisory lock taken while claiming work for the lane.
	LockID int64
}

var (
	GenerationLane = Lane{
		Kind:           TaskTypeVideoGeneration,
		PendingStatus:  EpisodeStatusPending,
		InFlightStatus: EpisodeStatusGenerating,
		DoneStatus:     EpisodeStatusGenerated,
		LockID:         7100001,
	}
	UploadLane = Lane{
		Kind:           TaskTypeYoutubeUpload,
		PendingStatus:  EpisodeStatusGenerated,
		InFlightStatus: EpisodeStatusUploading,
		DoneStatus:     EpisodeStatusUploaded,
		LockID:         7100002,
	}
)

// Lanes lists every lane in dispatch order.
var Lanes = []Lane{GenerationLane, UploadLane}

// LaneByKind resolves a task type to its lane.
func LaneByKind(kind string) (Lane, bool) {
	for _, l := range Lanes {
		if l.Kind == kind {
			return l, true
		}
	}
	return Lane{}, false
}
