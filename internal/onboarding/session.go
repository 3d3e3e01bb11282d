package onboarding

import (
	"sync"
	"time"
)

// Phase is the onboarding step a user is currently in.
type Phase int

const (
	PhaseAwaitingContact Phase = iota
	PhaseContactReceived
	PhaseInvited
	PhaseMenuShown
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingContact:
		return "awaiting_contact"
	case PhaseContactReceived:
		return "contact_received"
	case PhaseInvited:
		return "invited"
	case PhaseMenuShown:
		return "menu_shown"
	}
	return "unknown"
}

// Session tracks one user's progress through onboarding. Held in process
// memory only; a restart drops in-flight sessions and the user restarts
// by talking to the bot again.
type Session struct {
	UserID    int64
	ChatID    int64
	Phase     Phase
	CreatedAt time.Time
}

// Sessions is the in-memory session store, keyed by user id. Created at
// onboarding start, destroyed once the menu is shown.
type Sessions struct {
	mu sync.Mutex
	m  map[int64]*Session
}

func NewSessions() *Sessions {
	return &Sessions{m: map[int64]*Session{}}
}

// Begin creates a fresh session in PhaseAwaitingContact, replacing any
// prior one for the same user.
func (s *Sessions) Begin(userID, chatID int64) *Session {
	sess := &Session{UserID: userID, ChatID: chatID, Phase: PhaseAwaitingContact, CreatedAt: time.Now()}
	s.mu.Lock()
	s.m[userID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns a copy of the user's session.
func (s *Sessions) Get(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[userID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Advance moves the session forward, never backward. Returns the updated
// copy; ok is false when no session exists.
func (s *Sessions) Advance(userID int64, to Phase) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[userID]
	if !ok {
		return Session{}, false
	}
	if to > sess.Phase {
		sess.Phase = to
	}
	return *sess, true
}

// End destroys the session.
func (s *Sessions) End(userID int64) {
	s.mu.Lock()
	delete(s.m, userID)
	s.mu.Unlock()
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
