package captain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// SessionToken is a bearer token handed out by /login and checked on
// the /me endpoints.
type SessionToken struct {
	Token     string    `json:"token"`
	UID       string    `json:"uid"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenManager issues and validates session tokens. Tokens live in
// memory only; a captain restart signs everyone out.
type TokenManager struct {
	tokens map[string]*SessionToken
	mu     sync.RWMutex
}

// NewTokenManager creates an empty token manager.
func NewTokenManager() *TokenManager {
	return &TokenManager{
		tokens: make(map[string]*SessionToken),
	}
}

// Issue creates a token for the given uid, valid for the given duration.
func (tm *TokenManager) Issue(uid string, duration time.Duration) (*SessionToken, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return nil, fmt.Errorf("failed to generate random token: %w", err)
	}

	st := &SessionToken{
		Token:     hex.EncodeToString(bytes),
		UID:       uid,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(duration),
	}

	tm.mu.Lock()
	tm.tokens[st.Token] = st
	tm.mu.Unlock()

	return st, nil
}

// Validate checks a token and returns the uid it was issued to.
func (tm *TokenManager) Validate(token string) (string, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	st, exists := tm.tokens[token]
	if !exists {
		return "", fmt.Errorf("invalid token: %w", ErrUnauthorized)
	}
	if time.Now().After(st.ExpiresAt) {
		return "", fmt.Errorf("token expired: %w", ErrUnauthorized)
	}
	return st.UID, nil
}

// Revoke removes a token.
func (tm *TokenManager) Revoke(token string) {
	tm.mu.Lock()
	delete(tm.tokens, token)
	tm.mu.Unlock()
}

// CleanupExpired removes expired tokens.
func (tm *TokenManager) CleanupExpired() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := time.Now()
	for token, st := range tm.tokens {
		if now.After(st.ExpiresAt) {
			delete(tm.tokens, token)
		}
	}
}
