package session

import (
	"sync"
	"time"
)

type sessionEntry struct {
	sess      *Session
	expiresAt time.Time
}

// Store is a TTL-bounded in-memory session cache keyed by WhatsApp number.
// Sessions cross the store boundary by value: Get hands out a copy and
// Put copies back in, so no caller ever aliases the stored session.
// Entries expire passively: an expired entry is dropped on the next
// access, and the user silently restarts from the initial state.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]sessionEntry

	now func() time.Time
}

// NewStore constructs a Store with the given entry lifetime.
// A zero ttl disables expiry.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		entries: make(map[string]sessionEntry),
		now:     time.Now,
	}
}

// Get returns a detached copy of the live session for a user, or a
// fresh initial session if none exists. Callers mutate the copy freely;
// nothing is visible to other goroutines until Put writes it back.
// An unknown sender costs nothing: the fresh session is not stored.
func (s *Store) Get(user string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[user]; ok {
		if s.ttl == 0 || s.now().Before(e.expiresAt) {
			c := *e.sess
			return &c
		}
		delete(s.entries, user)
	}
	return &Session{State: StateInitial, Data: Registration{WhatsAppNumber: user}}
}

// Put stores a copy of the session for a user with a fresh TTL
// deadline. Each conversation step calls Put, so the deadline tracks
// user activity. The store never retains the caller's pointer.
func (s *Store) Put(user string, sess *Session) {
	if sess == nil {
		return
	}
	c := *sess
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[user] = sessionEntry{sess: &c, expiresAt: s.now().Add(s.ttl)}
}

// SetState transitions the stored session for a user, creating it if
// needed. Used by reconciliation paths that finalize a conversation.
func (s *Store) SetState(user string, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[user]
	if !ok || (s.ttl != 0 && !s.now().Before(e.expiresAt)) {
		e = sessionEntry{sess: &Session{State: st, Data: Registration{WhatsAppNumber: user}}}
	} else {
		e.sess.State = st
	}
	e.expiresAt = s.now().Add(s.ttl)
	s.entries[user] = e
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return len(s.entries)
	}
	now := s.now()
	n := 0
	for user, e := range s.entries {
		if now.Before(e.expiresAt) {
			n++
		} else {
			delete(s.entries, user)
		}
	}
	return n
}
