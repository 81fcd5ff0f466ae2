package store

import (
	"errors"
	"strconv"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// JWTSessionStore issues HS256 JWTs carrying the user id as subject.
// Logged-out tokens are tracked in a revocation set until they expire, so
// DeleteSession still satisfies the SessionStore contract.
type JWTSessionStore struct {
	secret []byte
	ttl    time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time // token -> expiry
}

// NewJWTSessionStore builds a JWT session store with the shared secret.
func NewJWTSessionStore(secret string, ttl time.Duration) *JWTSessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTSessionStore{
		secret:  []byte(secret),
		ttl:     ttl,
		revoked: make(map[string]time.Time),
	}
}

// NewSession creates a signed JWT for the user id.
func (s *JWTSessionStore) NewSession(userID int64) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	return token.SignedString(s.secret)
}

// GetUserIDByToken validates the JWT and returns the subject user id.
func (s *JWTSessionStore) GetUserIDByToken(token string) (int64, bool, error) {
	if s.isRevoked(token) {
		return 0, false, nil
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, false, nil
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, false, nil
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return userID, true, nil
}

// DeleteSession marks the token revoked until its natural expiry.
func (s *JWTSessionStore) DeleteSession(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	s.revoked[token] = time.Now().UTC().Add(s.ttl)
	return nil
}

func (s *JWTSessionStore) isRevoked(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	_, ok := s.revoked[token]
	return ok
}

func (s *JWTSessionStore) pruneLocked() {
	now := time.Now().UTC()
	for token, expiry := range s.revoked {
		if now.After(expiry) {
			delete(s.revoked, token)
		}
	}
}
