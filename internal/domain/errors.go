package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrHandlerFailed   = errors.New("handler failed")
	ErrInvalidInput    = errors.New("invalid input")
)
