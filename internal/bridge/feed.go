package bridge

import (
	"sync"

	"github.com/kingrea/standin/internal/swipe"
)

const defaultSubscriberCapacity = 16

// Snapshot is one published view, numbered in publish order.
type Snapshot struct {
	Seq       int64           `json:"seq"`
	SessionID string          `json:"sessionId,omitempty"`
	View      swipe.ViewModel `json:"view"`
}

// FeedOption customizes Feed construction.
type FeedOption func(*Feed)

// FeedWithLogger injects a logger for drop messages.
func FeedWithLogger(logger Logger) FeedOption {
	return func(f *Feed) {
		f.logger = logger
	}
}

// FeedWithSubscriberCapacity overrides the buffered channel size per subscriber.
func FeedWithSubscriberCapacity(capacity int) FeedOption {
	return func(f *Feed) {
		if capacity > 0 {
			f.channelSize = capacity
		}
	}
}

// Feed fans view snapshots out to event-stream subscribers. A new subscriber
// first receives the latest snapshot so it never starts blank.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	latest      *Snapshot
	seq         int64
	sessionID   string
	channelSize int
	logger      Logger
}

// Subscription represents an active feed subscription.
type Subscription struct {
	Updates <-chan Snapshot
	cancel  func()
}

// Close terminates the subscription.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewFeed constructs a feed.
func NewFeed(opts ...FeedOption) *Feed {
	f := &Feed{
		subscribers: map[*subscriber]struct{}{},
		channelSize: defaultSubscriberCapacity,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// SetSession tags subsequent snapshots with id.
func (f *Feed) SetSession(id string) {
	f.mu.Lock()
	f.sessionID = id
	f.mu.Unlock()
}

// Publish records view as the latest snapshot and delivers it. It has the
// signature swipe.WithObserver expects. Observers run outside the driver
// lock, so views can arrive out of order; one older than the latest
// revision is dropped. Revision zero is unversioned and always accepted.
func (f *Feed) Publish(view swipe.ViewModel) {
	f.mu.Lock()
	if f.latest != nil && view.Revision != 0 && view.Revision <= f.latest.View.Revision {
		f.mu.Unlock()
		if f.logger != nil {
			f.logger.Printf("bridge: dropped stale view revision %d", view.Revision)
		}
		return
	}
	f.seq++
	snap := Snapshot{Seq: f.seq, SessionID: f.sessionID, View: view}
	f.latest = &snap
	subs := make([]*subscriber, 0, len(f.subscribers))
	for sub := range f.subscribers {
		subs = append(subs, sub)
	}
	f.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(snap)
	}
}

// Latest returns the most recent snapshot, if any.
func (f *Feed) Latest() (Snapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.latest == nil {
		return Snapshot{}, false
	}
	return *f.latest, true
}

// Subscribe registers a new subscriber.
func (f *Feed) Subscribe() Subscription {
	sub := newSubscriber(f.channelSize, f.logger)
	f.mu.Lock()
	f.subscribers[sub] = struct{}{}
	latest := f.latest
	f.mu.Unlock()
	if latest != nil {
		sub.deliver(*latest)
	}
	return Subscription{
		Updates: sub.channel(),
		cancel: func() {
			f.removeSubscriber(sub)
		},
	}
}

// Subscribers reports how many subscriptions are open.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

func (f *Feed) removeSubscriber(sub *subscriber) {
	f.mu.Lock()
	delete(f.subscribers, sub)
	f.mu.Unlock()
	sub.close()
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Snapshot
	logger Logger
	closed bool
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{
		ch:     make(chan Snapshot, capacity),
		logger: logger,
	}
}

func (s *subscriber) channel() <-chan Snapshot {
	return s.ch
}

// deliver never blocks. On overflow the oldest buffered snapshot is dropped
// unless it is terminal and the incoming one is not.
func (s *subscriber) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
		return
	default:
	}
	oldest := <-s.ch
	if shouldDropOldest(oldest, snap) {
		s.logDrop(oldest)
		s.ch <- snap
		return
	}
	s.ch <- oldest
	s.logDrop(snap)
}

func (s *subscriber) logDrop(snap Snapshot) {
	if s.logger == nil {
		return
	}
	s.logger.Printf("bridge: dropped snapshot %d (%s)", snap.Seq, snap.View.Status)
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func shouldDropOldest(oldest, incoming Snapshot) bool {
	return !oldest.View.Status.Terminal() || incoming.View.Status.Terminal()
}
