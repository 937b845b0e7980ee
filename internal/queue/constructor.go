package queue

import (
	"github.com/maheshrc27/podcast-studio/internal/service"
)

type Queue struct {
	ds service.DispatchService
}

func NewQueue(ds service.DispatchService) *Queue {
	return &Queue{ds: ds}
}

const (
	TaskTypeDispatch = "dispatch:lane"
	// DispatchQueue is served with concurrency 1 so ticks for a lane never overlap.
	DispatchQueue = "dispatch"
)

type DispatchPayload struct {
	Kind string `json:"kind"`
}
