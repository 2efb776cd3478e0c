package intake

import (
	"sync"
	"time"

	"intervox/internal/provision"
)

type Step int

const (
	StepTopic Step = iota
	StepGoal
	StepInstructions
	StepDuration
)

// Session is one operator's in-flight answer set: created at /start,
// consumed by provisioning, purged on completion, cancellation, or TTL.
type Session struct {
	Step      Step
	Request   provision.Request
	UpdatedAt time.Time
}

// SessionStore scopes intake state per chat with TTL eviction, so an
// abandoned intake cannot pin memory and no state is ambient.
type SessionStore struct {
	TTL time.Duration
	Now func() time.Time

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionStore{
		TTL:      ttl,
		sessions: make(map[int64]*Session),
	}
}

func (s *SessionStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start replaces any existing session for the chat.
func (s *SessionStore) Start(chatID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := &Session{Step: StepTopic, UpdatedAt: s.now()}
	s.sessions[chatID] = session
	return session
}

// Get returns the live session for the chat; expired sessions are purged on
// access.
func (s *SessionStore) Get(chatID int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[chatID]
	if !ok {
		return nil, false
	}
	if s.now().Sub(session.UpdatedAt) > s.TTL {
		delete(s.sessions, chatID)
		return nil, false
	}
	session.UpdatedAt = s.now()
	return session, true
}

func (s *SessionStore) Delete(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
}

// PurgeExpired drops every stale session and reports how many went.
func (s *SessionStore) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	cutoff := s.now().Add(-s.TTL)
	for chatID, session := range s.sessions {
		if session.UpdatedAt.Before(cutoff) {
			delete(s.sessions, chatID)
			purged++
		}
	}
	return purged
}
