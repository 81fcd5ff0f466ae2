package store

import (
	"sync"
	"time"

	"docvault/internal/util"
)

type memorySession struct {
	userID    int64
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in-process with a fixed TTL.
type MemorySessionStore struct {
	mu   sync.Mutex
	sess map[string]memorySession
	ttl  time.Duration
	now  func() time.Time
}

// NewMemorySessionStore builds an in-process session store.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemorySessionStore{
		sess: make(map[string]memorySession),
		ttl:  ttl,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the expiry clock. Intended for tests.
func (s *MemorySessionStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// NewSession issues an opaque token bound to the user id.
func (s *MemorySessionStore) NewSession(userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := util.NewID()
	s.sess[token] = memorySession{userID: userID, expiresAt: s.now().Add(s.ttl)}
	return token, nil
}

// GetUserIDByToken resolves a token; expired sessions are dropped.
func (s *MemorySessionStore) GetUserIDByToken(token string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sess[token]
	if !ok {
		return 0, false, nil
	}
	if s.now().After(sess.expiresAt) {
		delete(s.sess, token)
		return 0, false, nil
	}
	return sess.userID, true, nil
}

// DeleteSession removes the token; unknown tokens are a no-op.
func (s *MemorySessionStore) DeleteSession(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sess, token)
	return nil
}
