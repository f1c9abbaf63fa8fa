// Package session issues cancellation scopes for scan and download runs.
//
// A session is the unit of cancellation: exactly one session is current at
// any time, and starting a new one supersedes the old. Long-running loops
// re-check IsCurrent at every suspension point and abort with ErrCanceled
// when they have been superseded, without side effects.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCanceled is returned by cooperative checks when the session is no
// longer current. It is an expected condition, not logged as an error.
var ErrCanceled = errors.New("session canceled")

// ID identifies one session. IDs are monotonically distinct: a later
// session always compares unequal to any earlier one.
type ID string

// Kind distinguishes what a session was started for.
type Kind string

const (
	KindScan     Kind = "scan"
	KindDownload Kind = "download"
)

// Session is one cancellation scope. Owned by the registry that created it;
// callers hold it only to read its id and status.
type Session struct {
	ID        ID
	Kind      Kind
	StartedAt time.Time

	mu      sync.Mutex
	status  Status
	cleanup func()
	once    sync.Once
}

// Status returns the session's current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus applies a status transition. Invalid transitions are rejected.
func (s *Session) SetStatus(target Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == target {
		return nil
	}
	if !s.status.CanTransitionTo(target) {
		return fmt.Errorf("invalid transition: %s -> %s", s.status, target)
	}
	s.status = target
	return nil
}

// OnCancel registers a cleanup hook run exactly once when the session is
// canceled or superseded. Used to tear down visible state (overlays,
// progress indicators) no matter how the run ends.
func (s *Session) OnCancel(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanup = fn
}

func (s *Session) runCleanup() {
	s.once.Do(func() {
		s.mu.Lock()
		fn := s.cleanup
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

// Registry tracks the single current session.
type Registry struct {
	mu      sync.Mutex
	counter int64
	current *Session
}

// NewRegistry creates an empty registry with no current session.
func NewRegistry() *Registry {
	return &Registry{}
}

// Begin starts a new session, superseding and cleaning up any previous one.
func (r *Registry) Begin(kind Kind) *Session {
	r.mu.Lock()
	prev := r.current
	r.counter++
	now := time.Now()
	s := &Session{
		ID:        ID(fmt.Sprintf("%d-%d", now.UnixMilli(), r.counter)),
		Kind:      kind,
		StartedAt: now,
		status:    StatusIdle,
	}
	r.current = s
	r.mu.Unlock()

	if prev != nil {
		prev.runCleanup()
	}
	return s
}

// IsCurrent reports whether id still identifies the active session.
// A stale session is inert: any operation observing false must abort
// without side effects.
func (r *Registry) IsCurrent(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && r.current.ID == id
}

// Check returns ErrCanceled if id is no longer the active session.
// Call it immediately before and after every suspension point.
func (r *Registry) Check(id ID) error {
	if !r.IsCurrent(id) {
		return ErrCanceled
	}
	return nil
}

// Cancel marks the identified session canceled and runs its cleanup hook.
// Idempotent: canceling a stale or already-terminal session is a no-op.
func (r *Registry) Cancel(id ID) {
	r.mu.Lock()
	s := r.current
	if s == nil || s.ID != id {
		r.mu.Unlock()
		return
	}
	r.current = nil
	r.mu.Unlock()

	s.mu.Lock()
	if !s.status.IsTerminal() {
		s.status = StatusCanceled
	}
	s.mu.Unlock()
	s.runCleanup()
}

// Current returns the active session's id, or the zero ID when none is active.
func (r *Registry) Current() ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ""
	}
	return r.current.ID
}
