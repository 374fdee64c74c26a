package session

import (
	"sync"
)

// Store is the single source of truth for "who is logged in". All session
// mutation funnels through its methods; user and token always transition
// together, so readers never observe a token without a user or vice versa.
type Store struct {
	lock    sync.RWMutex
	current *Session
	changed chan struct{}
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		changed: make(chan struct{}),
	}
}

// Current returns a copy of the active session, if any.
func (s *Store) Current() (Session, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Active reports whether a session exists.
func (s *Store) Active() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.current != nil
}

// Token returns the current access token, or "" when no session exists.
func (s *Store) Token() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.AccessToken
}

// Set installs a new session, replacing any existing one.
func (s *Store) Set(user User, accessToken string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.current = &Session{User: user, AccessToken: accessToken}
	s.notify()
}

// Clear removes the session. Safe to call when no session exists.
func (s *Store) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.current == nil {
		return
	}
	s.current = nil
	s.notify()
}

// UpdateToken replaces the access token of the active session. Returns false
// when no session exists; a token is never installed without a user.
func (s *Store) UpdateToken(accessToken string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.current == nil {
		return false
	}
	s.current.AccessToken = accessToken
	s.notify()
	return true
}

// UpdateProfile replaces the user profile of the active session, keeping the
// token. Used after a profile refresh when shops or role may have changed.
func (s *Store) UpdateProfile(user User) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.current == nil {
		return false
	}
	s.current.User = user
	s.notify()
	return true
}

// Changed returns a channel that is closed on the next session mutation.
// Callers re-arm by calling Changed again after the channel fires.
func (s *Store) Changed() <-chan struct{} {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.changed
}

// notify must be called with the write lock held.
func (s *Store) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}
