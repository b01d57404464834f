package swipe

import (
	"context"
	"fmt"
)

// Step is the network half of a transition. It runs off the caller's loop and
// its Event is folded back in with Controller.Apply.
type Step func(ctx context.Context) Event

// Event is the result of a Step.
type Event interface {
	generation() uint64
}

type queueLoadedEvent struct {
	gen    uint64
	userID int64
	queue  Queue
	err    error
}

type profileEnrichedEvent struct {
	gen     uint64
	cursor  int
	ticket  uint64
	profile EnrichedProfile
	err     error
}

type acceptSubmittedEvent struct {
	gen       uint64
	cursor    int
	candidate Candidate
	result    AcceptResult
	err       error
}

func (e queueLoadedEvent) generation() uint64     { return e.gen }
func (e profileEnrichedEvent) generation() uint64 { return e.gen }
func (e acceptSubmittedEvent) generation() uint64 { return e.gen }

// Controller owns one review session. It is not safe for concurrent use:
// callers mutate it from a single loop (the TUI Update, or Driver).
//
// Every step is tagged with the session generation and, for enrichment, the
// cursor and a ticket. Apply drops events whose tags no longer match, so the
// last requested enrichment wins and a new Start invalidates everything in
// flight.
type Controller struct {
	source   CandidateSource
	enricher ProfileEnricher
	actions  ActionProcessor
	logger   Logger

	state     SessionState
	gen       uint64
	rev       uint64
	ticket    uint64
	profile   *EnrichedProfile
	enriching bool
	deciding  bool
	last      *Decision

	loadErr     error
	profileErr  error
	decisionErr error
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController wires the three collaborators into an idle controller.
func NewController(source CandidateSource, enricher ProfileEnricher, actions ActionProcessor, opts ...Option) *Controller {
	c := &Controller{
		source:   source,
		enricher: enricher,
		actions:  actions,
		logger:   nopLogger{},
		state:    SessionState{Status: StatusIdle},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// State returns a copy of the session state.
func (c *Controller) State() SessionState {
	s := c.state
	s.Queue = c.state.Queue.clone()
	return s
}

// Start begins a new session for reviewingUserID. An invalid id fails with
// ErrInvalidInput and leaves the current state untouched. Otherwise any
// session in progress is abandoned and the returned step loads the queue.
func (c *Controller) Start(reviewingUserID int64) (Step, error) {
	if err := ValidateUserID(reviewingUserID); err != nil {
		return nil, err
	}
	c.invalidate()
	c.rev++
	c.state = SessionState{ReviewingUserID: reviewingUserID, Status: StatusLoading}
	c.logger.Printf("swipe: session %d started for user %d", c.gen, reviewingUserID)

	gen := c.gen
	source := c.source
	return func(ctx context.Context) Event {
		if source == nil {
			return queueLoadedEvent{gen: gen, userID: reviewingUserID, err: fmt.Errorf("swipe: load queue: %w: no candidate source configured", ErrConnectionFailed)}
		}
		queue, err := source.LoadQueue(ctx, reviewingUserID)
		return queueLoadedEvent{gen: gen, userID: reviewingUserID, queue: queue, err: err}
	}, nil
}

// Reset tears the session down to Idle and discards anything in flight.
func (c *Controller) Reset() {
	c.invalidate()
	c.rev++
	c.state = SessionState{Status: StatusIdle}
}

// Decide applies action to the current candidate. Reject advances at once
// and never touches the network. Accept returns the submission step; the
// cursor only moves when a successful result is applied.
func (c *Controller) Decide(action Action) (Step, error) {
	candidate, ok := c.state.Current()
	if !ok {
		return nil, ErrNotReviewing
	}
	if c.deciding {
		return nil, ErrDecisionInFlight
	}
	switch action {
	case ActionReject:
		c.rev++
		c.decisionErr = nil
		c.last = &Decision{Action: ActionReject, Candidate: candidate}
		c.logger.Printf("swipe: rejected candidate %d at %d", candidate.OriginUserID, c.state.Cursor)
		return c.advance(), nil
	case ActionAccept:
		c.rev++
		c.decisionErr = nil
		c.deciding = true
		gen := c.gen
		cursor := c.state.Cursor
		reviewer := c.state.ReviewingUserID
		actions := c.actions
		return func(ctx context.Context) Event {
			ev := acceptSubmittedEvent{gen: gen, cursor: cursor, candidate: candidate}
			if actions == nil {
				ev.err = fmt.Errorf("swipe: submit accept: %w: no action processor configured", ErrConnectionFailed)
				return ev
			}
			ev.result, ev.err = actions.SubmitAccept(ctx, reviewer, candidate.OriginUserID)
			return ev
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}
}

// Retry re-issues enrichment for the current candidate after a profile
// failure. Nothing retries on its own.
func (c *Controller) Retry() (Step, error) {
	if _, ok := c.state.Current(); !ok {
		return nil, ErrNotReviewing
	}
	if c.enriching || c.profile != nil {
		return nil, ErrNothingToRetry
	}
	c.rev++
	c.profileErr = nil
	return c.enrichCurrent(), nil
}

// Apply folds a step result into the session and returns any follow-up step.
func (c *Controller) Apply(ev Event) Step {
	if ev == nil {
		return nil
	}
	if ev.generation() != c.gen {
		c.logger.Printf("swipe: dropped result from abandoned session %d", ev.generation())
		return nil
	}
	c.rev++
	switch e := ev.(type) {
	case queueLoadedEvent:
		return c.applyQueue(e)
	case profileEnrichedEvent:
		c.applyProfile(e)
		return nil
	case acceptSubmittedEvent:
		return c.applyAccept(e)
	}
	return nil
}

func (c *Controller) applyQueue(e queueLoadedEvent) Step {
	if c.state.Status != StatusLoading {
		return nil
	}
	if e.err != nil {
		c.state.Status = StatusLoadFailed
		c.loadErr = e.err
		c.logger.Printf("swipe: loading likes for user %d failed: %v", e.userID, e.err)
		return nil
	}
	c.state.Queue = e.queue.clone()
	c.state.Cursor = 0
	if len(c.state.Queue) == 0 {
		c.state.Status = StatusCompleted
		c.logger.Printf("swipe: user %d has no likes to review", e.userID)
		return nil
	}
	c.state.Status = StatusReviewing
	c.logger.Printf("swipe: loaded %d candidate(s) for user %d", len(c.state.Queue), e.userID)
	return c.enrichCurrent()
}

func (c *Controller) applyProfile(e profileEnrichedEvent) {
	if c.state.Status != StatusReviewing || e.cursor != c.state.Cursor || e.ticket != c.ticket {
		c.logger.Printf("swipe: dropped stale profile for position %d", e.cursor)
		return
	}
	c.enriching = false
	if e.err != nil {
		c.profile = nil
		c.profileErr = e.err
		c.logger.Printf("swipe: profile at position %d unavailable: %v", e.cursor, e.err)
		return
	}
	profile := e.profile
	c.profile = &profile
	c.profileErr = nil
}

func (c *Controller) applyAccept(e acceptSubmittedEvent) Step {
	if !c.deciding || e.cursor != c.state.Cursor {
		return nil
	}
	c.deciding = false
	if e.err != nil {
		c.decisionErr = e.err
		c.logger.Printf("swipe: accept for candidate %d failed: %v", e.candidate.OriginUserID, e.err)
		return nil
	}
	c.decisionErr = nil
	c.last = &Decision{Action: ActionAccept, Candidate: e.candidate, IsMatch: e.result.IsMatch}
	c.logger.Printf("swipe: accepted candidate %d at %d (match=%t)", e.candidate.OriginUserID, e.cursor, e.result.IsMatch)
	return c.advance()
}

func (c *Controller) advance() Step {
	c.state.Cursor++
	c.profile = nil
	c.profileErr = nil
	c.enriching = false
	c.ticket++
	if c.state.Cursor >= len(c.state.Queue) {
		c.state.Cursor = len(c.state.Queue)
		c.state.Status = StatusCompleted
		c.logger.Printf("swipe: session %d completed", c.gen)
		return nil
	}
	return c.enrichCurrent()
}

func (c *Controller) enrichCurrent() Step {
	candidate, ok := c.state.Current()
	if !ok {
		return nil
	}
	c.ticket++
	c.enriching = true
	c.profile = nil
	gen := c.gen
	cursor := c.state.Cursor
	ticket := c.ticket
	enricher := c.enricher
	return func(ctx context.Context) Event {
		ev := profileEnrichedEvent{gen: gen, cursor: cursor, ticket: ticket}
		if enricher == nil {
			ev.err = fmt.Errorf("%w: no enricher configured", ErrProfileUnavailable)
			return ev
		}
		ev.profile, ev.err = enricher.Enrich(ctx, candidate.OriginUserID)
		return ev
	}
}

func (c *Controller) invalidate() {
	c.gen++
	c.ticket++
	c.profile = nil
	c.enriching = false
	c.deciding = false
	c.last = nil
	c.loadErr = nil
	c.profileErr = nil
	c.decisionErr = nil
}

// View renders the session into a presentation-friendly snapshot.
func (c *Controller) View() ViewModel {
	view := ViewModel{
		Revision:        c.rev,
		Status:          c.state.Status,
		ReviewingUserID: c.state.ReviewingUserID,
		Cursor:          c.state.Cursor,
		Total:           len(c.state.Queue),
		Enriching:       c.enriching,
		Deciding:        c.deciding,
	}
	if candidate, ok := c.state.Current(); ok {
		view.Candidate = &candidate
	}
	if c.profile != nil {
		profile := *c.profile
		profile.Photos = append([]Photo{}, c.profile.Photos...)
		view.Profile = &profile
	}
	if c.last != nil {
		last := *c.last
		view.LastDecision = &last
	}
	for _, err := range []error{c.decisionErr, c.profileErr, c.loadErr} {
		if err == nil {
			continue
		}
		if view.Err == nil {
			view.Err = err
		}
		view.Errors = append(view.Errors, Message(err))
	}
	return view
}
