package swipe

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput marks a caller-supplied value rejected before any network call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConnectionFailed marks a transport failure talking to a service.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrRejected marks a non-success (or unusable) response from a service.
	ErrRejected = errors.New("rejected by service")
	// ErrProfileUnavailable marks a failed mandatory profile fetch. The cursor holds.
	ErrProfileUnavailable = errors.New("profile unavailable")

	ErrNotReviewing     = errors.New("swipe: no candidate under review")
	ErrDecisionInFlight = errors.New("swipe: a decision is already in flight")
	ErrNothingToRetry   = errors.New("swipe: current profile is not in a failed state")
)

// RejectedError carries the status and server message of a non-success response.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e == nil {
		return ErrRejected.Error()
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return fmt.Sprintf("%s (status %d): %s", ErrRejected, e.Status, msg)
	}
	return fmt.Sprintf("%s (status %d)", ErrRejected, e.Status)
}

// Is lets errors.Is(err, ErrRejected) match any RejectedError.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// ValidateUserID enforces the positive-integer constraint on user ids.
func ValidateUserID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: user id must be a positive integer, got %d", ErrInvalidInput, id)
	}
	return nil
}

// Message turns an error into the line a presentation layer shows the reviewer.
func Message(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrProfileUnavailable):
		return "Could not load this profile. Press retry to try again."
	case errors.Is(err, ErrInvalidInput):
		return "Invalid user id"
	case errors.Is(err, ErrDecisionInFlight):
		return "Still sending your last decision"
	case errors.Is(err, ErrNotReviewing):
		return "There is no profile to decide on"
	case errors.Is(err, ErrConnectionFailed):
		return "Could not reach the service"
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) && strings.TrimSpace(rejected.Message) != "" {
		return rejected.Message
	}
	if errors.Is(err, ErrRejected) {
		return "The service rejected the request"
	}
	return err.Error()
}
