package session

import "sync/atomic"

// Control carries the cooperative pause/cancel flags for one run.
// It is passed into the orchestrator by the caller rather than living in
// package-level state, so two runs can never cross-contaminate each other.
type Control struct {
	paused   atomic.Bool
	canceled atomic.Bool
}

// NewControl returns a Control with both flags clear.
func NewControl() *Control {
	return &Control{}
}

// Pause requests that the run stop before the next item. The running
// delivery cascade is never interrupted mid-item.
func (c *Control) Pause() { c.paused.Store(true) }

// Resume clears a pending pause.
func (c *Control) Resume() { c.paused.Store(false) }

// Cancel requests the run stop. Idempotent; also clears pause so a paused
// loop wakes up and observes the cancellation.
func (c *Control) Cancel() {
	c.canceled.Store(true)
	c.paused.Store(false)
}

// Paused reports whether a pause is requested.
func (c *Control) Paused() bool { return c.paused.Load() }

// Canceled reports whether the run has been canceled.
func (c *Control) Canceled() bool { return c.canceled.Load() }
