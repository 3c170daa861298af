package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthSession is the transient state of one in-flight authorization attempt.
// It exists only between "authorization initiated" and "authorization
// completed or timed out" and is never persisted.
type AuthSession struct {
	ID          string
	State       string // anti-forgery token carried through the redirect
	RedirectURL string
	Deadline    time.Time
}

// NewAuthSession creates a session with fresh random identifiers and the
// given deadline.
func NewAuthSession(redirectURL string, deadline time.Time) *AuthSession {
	return &AuthSession{
		ID:          uuid.New().String(),
		State:       uuid.New().String(),
		RedirectURL: redirectURL,
		Deadline:    deadline,
	}
}

// Expired reports whether the session deadline has passed.
func (s *AuthSession) Expired(now time.Time) bool {
	return now.After(s.Deadline)
}
