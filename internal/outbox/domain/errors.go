package domain

import "errors"

var (
	// ErrTaskNotFound is returned when a task id does not exist (or was already claimed).
	ErrTaskNotFound = errors.New("task not found")
	// ErrUnknownTaskKind is returned for kinds outside the closed enum.
	ErrUnknownTaskKind = errors.New("unknown task kind")
)
