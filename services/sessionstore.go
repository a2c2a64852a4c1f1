package services

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/lborres/pulsetrack/core"
)

// SessionStore owns the current session of one execution context. It is
// the only writer of that session; everyone else reads it or subscribes to
// its changes.
//
// Change callbacks run sequentially on the goroutine that called Set or
// Clear. They must not block and must not write to the store.
type SessionStore struct {
	mu      sync.RWMutex
	current *core.Session

	dispatch sync.Mutex

	subsMu sync.Mutex
	subs   map[uint64]*sessionSubscriber
	nextID uint64
}

type sessionSubscriber struct {
	fn     func(*core.Session)
	active atomic.Bool
}

func NewSessionStore(initial *core.Session) *SessionStore {
	s := &SessionStore{subs: make(map[uint64]*sessionSubscriber)}
	if initial.Present() {
		cp := *initial
		s.current = &cp
	}
	return s
}

// Current returns a copy of the current session, or nil.
func (s *SessionStore) Current() *core.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// SubjectID returns the current subject id, or "".
func (s *SessionStore) SubjectID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.SubjectID
}

// Set installs session as current. A session without a subject id clears
// the store.
func (s *SessionStore) Set(session *core.Session) {
	var next *core.Session
	if session.Present() {
		cp := *session
		next = &cp
	}

	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	s.notify(next)
}

func (s *SessionStore) Clear() {
	s.Set(nil)
}

// Subscribe registers fn for every subsequent change. The returned
// Disposer removes it; fn is not called after the Disposer returns unless
// a dispatch was already running it.
func (s *SessionStore) Subscribe(fn func(*core.Session)) core.Disposer {
	sub := &sessionSubscriber{fn: fn}
	sub.active.Store(true)

	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *SessionStore) Subscribers() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.subs)
}

func (s *SessionStore) notify(session *core.Session) {
	s.subsMu.Lock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	subs := make([]*sessionSubscriber, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.subsMu.Unlock()

	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		var arg *core.Session
		if session != nil {
			cp := *session
			arg = &cp
		}
		sub.fn(arg)
	}
}
