package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
	"github.com/JADDOU3/NexusQuest-sub002/internal/ports"
)

// DefaultIdleTimeout is how long a session may sit without activity before
// the reaper cancels it.
const DefaultIdleTimeout = 10 * time.Minute

// Session is one live streamed run: the handle interactive operations
// (input, cancel) are routed through.
type Session struct {
	ID      string
	Program ports.RunningProgram

	mu           sync.Mutex
	lastActivity time.Time
}

// Touch records activity so the idle reaper leaves the session alone.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// outputReporter is implemented by programs that track when they last
// produced output. For those, emission counts as activity alongside stdin,
// so a session still printing or computing is never reclaimed as idle.
type outputReporter interface {
	LastEvent() time.Time
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	last := s.lastActivity
	s.mu.Unlock()

	if reporter, ok := s.Program.(outputReporter); ok {
		if ev := reporter.LastEvent(); ev.After(last) {
			last = ev
		}
	}
	return last
}

// Registry tracks live sessions by ID.
type Registry struct {
	sessions    *xsync.MapOf[string, *Session]
	idleTimeout time.Duration
	log         *slog.Logger
}

// NewRegistry builds an empty registry. A non-positive idle timeout falls
// back to DefaultIdleTimeout.
func NewRegistry(idleTimeout time.Duration, log *slog.Logger) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		sessions:    xsync.NewMapOf[string, *Session](),
		idleTimeout: idleTimeout,
		log:         log,
	}
}

// Add registers a running program under the given session ID.
func (r *Registry) Add(id string, program ports.RunningProgram) (*Session, error) {
	session := &Session{
		ID:           id,
		Program:      program,
		lastActivity: time.Now(),
	}
	if _, loaded := r.sessions.LoadOrStore(id, session); loaded {
		return nil, &execution.DuplicateSessionError{SessionID: id}
	}
	return session, nil
}

// Get looks up a live session.
func (r *Registry) Get(id string) (*Session, error) {
	session, ok := r.sessions.Load(id)
	if !ok {
		return nil, &execution.SessionNotFoundError{SessionID: id}
	}
	return session, nil
}

// Remove drops a session from the registry. Removing an unknown ID is a
// no-op so completion and cancellation can race safely.
func (r *Registry) Remove(id string) {
	r.sessions.Delete(id)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Reap kills and removes every session idle longer than the registry's
// timeout, returning how many were reaped.
func (r *Registry) Reap() int {
	cutoff := time.Now().Add(-r.idleTimeout)

	var reaped int
	r.sessions.Range(func(id string, session *Session) bool {
		if session.idleSince().After(cutoff) {
			return true
		}
		r.sessions.Delete(id)
		if err := session.Program.Kill(); err != nil {
			r.log.Warn("failed to kill idle session", "session_id", id, "error", err)
		}
		r.log.Info("reaped idle session", "session_id", id)
		reaped++
		return true
	})
	return reaped
}

// RunReaper reaps idle sessions on the given interval until ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap()
		}
	}
}
