package session

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive rejects Start while a session is connecting or connected.
	ErrAlreadyActive = errors.New("conversation session already active")

	// ErrSessionSuperseded is returned by Start when Stop ran before the
	// session finished opening. The late stream, if any, has been closed.
	ErrSessionSuperseded = errors.New("conversation session stopped before it was established")
)

// StreamError is a transport failure: the stream could not be opened, failed
// while active, or failed to close.
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op == "" {
		return fmt.Sprintf("conversation stream error: %v", e.Err)
	}
	return fmt.Sprintf("conversation stream %s failed: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
