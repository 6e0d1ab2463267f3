package session

import (
	"errors"
	"fmt"

	"fono/coach"
)

var (
	ErrInvalidState  = errors.New("operation not valid in current state")
	ErrNoPending     = errors.New("no pending recording")
	ErrPendingExists = errors.New("a recording is already pending")
	ErrRecording     = errors.New("recording in progress")
	ErrNotRecording  = errors.New("not recording")
	ErrBusy          = errors.New("another operation is in progress")

	// ErrSessionDiscarded is returned when the session an operation belonged
	// to was replaced or abandoned before the operation finished.
	ErrSessionDiscarded = errors.New("session discarded")

	ErrUnknownDifficulty = coach.ErrUnknownDifficulty
)

func invalidState(op string, s State) error {
	return fmt.Errorf("%s in %s: %w", op, s, ErrInvalidState)
}
