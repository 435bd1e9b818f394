package models

import "time"

// Session is one outstanding refresh credential. Only the hash of the refresh
// secret is stored; ExpiresAt is fixed at creation.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	UserAgent string
	IPAddress string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

type SessionMetadata struct {
	UserAgent string
	IPAddress string
}

func NewSession(id, userID, tokenHash string, meta SessionMetadata, ttl time.Duration, now time.Time) Session {
	return Session{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

func (s Session) Revoked() bool {
	return s.RevokedAt != nil
}

func (s Session) Active(now time.Time) bool {
	return !s.Revoked() && now.Before(s.ExpiresAt)
}

// Remaining is the session life left at now, never negative.
func (s Session) Remaining(now time.Time) time.Duration {
	left := s.ExpiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
