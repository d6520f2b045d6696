package models

import "errors"

// Sentinel errors for the intent boundary. Handlers classify with errors.Is
// and convert to a {success: false, error} ack; none of these is fatal.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPollNotFound    = errors.New("poll not found")
	ErrStudentNotFound = errors.New("student not found in session")
	ErrNotCoordinator  = errors.New("only the session coordinator can do that")
	ErrPollConflict    = errors.New("previous poll is still active")
	ErrPollClosed      = errors.New("poll is no longer active")
	ErrAlreadyAnswered = errors.New("already answered this poll")
	ErrValidation      = errors.New("invalid poll definition")
)
