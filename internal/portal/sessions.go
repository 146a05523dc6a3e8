package portal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrTooManySessions = errors.New("too many active sessions")

// Sessions maps browser session ids to their Controller. Entries idle for
// longer than ttl are dropped by Sweep; a session mid-verification is kept.
// At most max sessions exist at once (max <= 0 means no limit).
type Sessions struct {
	ttl     time.Duration
	max     int
	factory func() *Controller
	now     func() time.Time

	mu    sync.Mutex
	items map[string]*session
}

type session struct {
	ctrl     *Controller
	lastSeen time.Time
}

func NewSessions(ttl time.Duration, max int, factory func() *Controller) *Sessions {
	return &Sessions{
		ttl:     ttl,
		max:     max,
		factory: factory,
		now:     time.Now,
		items:   make(map[string]*session),
	}
}

// Get returns the controller for id. Unknown or empty ids get a fresh
// session under a new id, which is returned so the caller can set the cookie.
// When the registry is full, idle sessions are swept first and
// ErrTooManySessions is returned if there is still no room.
func (s *Sessions) Get(id string) (*Controller, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.items[id]; ok && id != "" {
		it.lastSeen = s.now()
		return it.ctrl, id, nil
	}

	if s.max > 0 && len(s.items) >= s.max {
		s.sweepLocked()
		if len(s.items) >= s.max {
			return nil, "", ErrTooManySessions
		}
	}

	id = uuid.NewString()
	it := &session{ctrl: s.factory(), lastSeen: s.now()}
	s.items[id] = it
	return it.ctrl, id, nil
}

// Lookup is Get without creation.
func (s *Sessions) Lookup(id string) (*Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, false
	}
	it.lastSeen = s.now()
	return it.ctrl, true
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Sweep removes idle sessions and returns how many were dropped.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

func (s *Sessions) sweepLocked() int {
	cutoff := s.now().Add(-s.ttl)
	n := 0
	for id, it := range s.items {
		if it.lastSeen.After(cutoff) {
			continue
		}
		if it.ctrl.Snapshot().Loading {
			continue
		}
		delete(s.items, id)
		n++
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
