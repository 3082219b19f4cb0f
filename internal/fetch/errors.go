package fetch

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a fetch failure.
type Kind string

const (
	// Transient failures may succeed on retry.
	Transient Kind = "transient"
	// Permanent failures will not.
	Permanent Kind = "permanent"
)

// Error is a classified fetch failure.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Reason     string
	// RetryAfter is the server's requested back-off on 429, if it sent one.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s fetch failure for %s: %s", e.Kind, e.URL, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure may succeed on retry.
func (e *Error) Transient() bool {
	return e.Kind == Transient
}

// IsTransient reports whether err is a transient *Error.
func IsTransient(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Transient()
}
