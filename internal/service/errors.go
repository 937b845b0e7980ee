package service

import "errors"

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrUpstream     = errors.New("compute service rejected the request")
	// ErrUnavailable marks upstream failures that say nothing about the job
	// itself: transport errors, throttling and 5xx responses.
	ErrUnavailable  = errors.New("compute service unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)
