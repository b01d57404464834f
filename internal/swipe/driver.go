package swipe

import (
	"context"
	"sync"
)

// Driver runs a Controller for callers that have no message loop of their
// own. Steps execute on goroutines; their events are applied one at a time
// under the driver's lock, which stands in for the single-threaded loop.
type Driver struct {
	mu       sync.Mutex
	ctl      *Controller
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	observer func(ViewModel)
}

// DriverOption customizes a Driver.
type DriverOption func(*Driver)

// WithObserver registers fn to receive the view after every applied event.
// fn runs outside the driver lock, so two views can reach it out of order;
// compare ViewModel.Revision to tell which is newer.
func WithObserver(fn func(ViewModel)) DriverOption {
	return func(d *Driver) {
		d.observer = fn
	}
}

// NewDriver wraps ctl. The driver's steps run under a context derived from parent.
func NewDriver(parent context.Context, ctl *Controller, opts ...DriverOption) *Driver {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	d := &Driver{ctl: ctl, ctx: ctx, cancel: cancel}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Start begins a session. Validation errors return synchronously.
func (d *Driver) Start(reviewingUserID int64) (ViewModel, error) {
	return d.dispatch(func() (Step, error) { return d.ctl.Start(reviewingUserID) })
}

// Decide applies action to the current candidate.
func (d *Driver) Decide(action Action) (ViewModel, error) {
	return d.dispatch(func() (Step, error) { return d.ctl.Decide(action) })
}

// Retry re-issues enrichment for the current candidate.
func (d *Driver) Retry() (ViewModel, error) {
	return d.dispatch(d.ctl.Retry)
}

// Reset returns the session to Idle.
func (d *Driver) Reset() ViewModel {
	d.mu.Lock()
	d.ctl.Reset()
	view := d.ctl.View()
	d.mu.Unlock()
	d.notify(view)
	return view
}

// View returns the current view model.
func (d *Driver) View() ViewModel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctl.View()
}

// Wait blocks until every step started so far, and its follow-ups, has been applied.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// Close cancels in-flight steps and waits for them to drain.
func (d *Driver) Close() {
	d.cancel()
	d.wg.Wait()
}

func (d *Driver) dispatch(fn func() (Step, error)) (ViewModel, error) {
	d.mu.Lock()
	step, err := fn()
	view := d.ctl.View()
	d.mu.Unlock()
	if err != nil {
		return view, err
	}
	d.notify(view)
	d.run(step)
	return view, nil
}

func (d *Driver) run(step Step) {
	if step == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ev := step(d.ctx)
		d.mu.Lock()
		next := d.ctl.Apply(ev)
		view := d.ctl.View()
		d.mu.Unlock()
		d.notify(view)
		d.run(next)
	}()
}

func (d *Driver) notify(view ViewModel) {
	if d.observer != nil {
		d.observer(view)
	}
}
