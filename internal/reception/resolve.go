// Package reception confirms physical receipt of in-transit expeditions.
//
// A tracking token (from a scanned code or typed by hand) is resolved against
// the current operations snapshot, the matching expedition is submitted once,
// and the snapshot is refreshed from the server afterwards. Each confirmation
// runs as an Attempt: a small state machine that ignores every trigger after
// the first one.
package reception

import (
	"errors"
	"fmt"

	"github.com/xolex/xolex/internal/models"
	"github.com/xolex/xolex/internal/operations"
)

// User-facing messages.
const (
	MsgSuccess          = "Reception successful!"
	MsgReceptionFailed  = "reception failed"
	MsgNetworkError     = "Network error"
	MsgNotAuthenticated = "User not authenticated"
)

var (
	// ErrNotAuthenticated means there is no stored credential to submit with.
	ErrNotAuthenticated = errors.New("user not authenticated")
	// ErrDuplicateTrigger is returned for a trigger that arrives after the
	// attempt (or surface) already has one. Callers drop it silently.
	ErrDuplicateTrigger = errors.New("reception already triggered")
	// ErrSurfaceClosed means the result arrived after its surface was closed.
	ErrSurfaceClosed = errors.New("surface closed")
)

// NoMatchError means the token names no in-transit expedition in the snapshot.
// It is an expected outcome (unknown, expired or foreign code).
type NoMatchError struct {
	Token  string
	Source Source
}

func (e *NoMatchError) Error() string {
	if e.Source == SourceScan {
		return "No matching expedition found for this QR code."
	}
	return "No matching expedition found for this tracking ID."
}

// SubmissionError is a reception the server did not accept, or that never
// reached it. Message is shown to the user as is.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	return e.Message
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Resolve returns the first operation in snap that is an in-transit
// expedition whose name equals token exactly. Snapshot order breaks ties
// should the server ever return more than one.
func Resolve(token string, snap operations.Snapshot) (models.Operation, error) {
	for i := range snap {
		if snap[i].ReceivableAs(token) {
			return snap[i], nil
		}
	}
	return models.Operation{}, &NoMatchError{Token: token}
}

// UserMessage returns the text to show for an attempt failure.
func UserMessage(err error) string {
	var nm *NoMatchError
	var se *SubmissionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &nm):
		return nm.Error()
	case errors.As(err, &se):
		return se.Message
	case errors.Is(err, ErrNotAuthenticated):
		return MsgNotAuthenticated
	default:
		return fmt.Sprintf("%s: %v", MsgReceptionFailed, err)
	}
}
