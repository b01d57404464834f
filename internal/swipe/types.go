// Package swipe holds the review-session core: the queue of users who liked
// the reviewing user, the cursor walking it, and the accept/reject decisions
// applied to each candidate.
package swipe

import (
	"fmt"
	"strings"
)

// Status enumerates the lifecycle of a review session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusLoading    Status = "loading"
	StatusReviewing  Status = "reviewing"
	StatusCompleted  Status = "completed"
	StatusLoadFailed Status = "load_failed"
)

// FriendlyName returns a short label for status lines.
func (s Status) FriendlyName() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusLoading:
		return "Loading"
	case StatusReviewing:
		return "Reviewing"
	case StatusCompleted:
		return "Completed"
	case StatusLoadFailed:
		return "Load failed"
	default:
		return string(s)
	}
}

// Terminal reports whether a new Start is required to leave the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusLoadFailed
}

// Candidate is one "like received" entry: the like record and the user who sent it.
type Candidate struct {
	LikeRecordID int64 `json:"id"`
	OriginUserID int64 `json:"usuarioOrigenId"`
}

// Queue is the ordered list of candidates, in the order the social service returned it.
type Queue []Candidate

func (q Queue) clone() Queue {
	if q == nil {
		return Queue{}
	}
	out := make(Queue, len(q))
	copy(out, q)
	return out
}

// Photo references one image in a candidate's gallery.
type Photo struct {
	URL string `json:"url"`
}

// Profile is the identity and bio record returned by the users service.
type Profile struct {
	ID       int64
	FullName string
	Bio      string
	City     string
	Email    string
}

// EnrichedProfile is the display data for the candidate under review.
// Optional fields are empty when the users service did not supply them.
type EnrichedProfile struct {
	UserID      int64   `json:"userId"`
	DisplayName string  `json:"displayName"`
	Bio         string  `json:"bio,omitempty"`
	City        string  `json:"city,omitempty"`
	Email       string  `json:"email,omitempty"`
	Photos      []Photo `json:"photos"`
}

// Action is a reviewer decision on the current candidate.
type Action string

const (
	ActionAccept Action = "like"
	ActionReject Action = "dislike"
)

// ParseAction maps presentation-layer spellings onto an Action.
func ParseAction(value string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "like", "accept", "yes":
		return ActionAccept, nil
	case "dislike", "reject", "pass", "no":
		return ActionReject, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, value)
	}
}

// AcceptResult reports whether an accepted like closed a mutual pair.
type AcceptResult struct {
	IsMatch bool `json:"esMatch"`
}

// Decision records the most recent applied decision for display.
type Decision struct {
	Action    Action    `json:"action"`
	Candidate Candidate `json:"candidate"`
	IsMatch   bool      `json:"isMatch"`
}

// SessionState is the single owned state of one review session.
type SessionState struct {
	ReviewingUserID int64
	Queue           Queue
	Cursor          int
	Status          Status
}

// Current returns the candidate at the cursor, if any.
func (s SessionState) Current() (Candidate, bool) {
	if s.Status != StatusReviewing || s.Cursor < 0 || s.Cursor >= len(s.Queue) {
		return Candidate{}, false
	}
	return s.Queue[s.Cursor], true
}

// ViewModel is what presentation layers render.
type ViewModel struct {
	// Revision grows with every change the controller applies. A view with a
	// lower revision than one already shown is stale.
	Revision        uint64           `json:"revision"`
	Status          Status           `json:"status"`
	ReviewingUserID int64            `json:"reviewingUserId,omitempty"`
	Cursor          int              `json:"cursor"`
	Total           int              `json:"total"`
	Candidate       *Candidate       `json:"candidate,omitempty"`
	Profile         *EnrichedProfile `json:"candidateProfile,omitempty"`
	Enriching       bool             `json:"enriching"`
	Deciding        bool             `json:"deciding"`
	LastDecision    *Decision        `json:"lastDecision,omitempty"`
	Err             error            `json:"-"`
	Errors          []string         `json:"errors,omitempty"`
}

// Remaining returns how many candidates are still ahead of the cursor, including the current one.
func (v ViewModel) Remaining() int {
	if v.Total <= v.Cursor {
		return 0
	}
	return v.Total - v.Cursor
}
