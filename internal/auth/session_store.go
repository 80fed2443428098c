// This file implements server-side session tracking so that logout is an
// immediate revocation rather than a wait for natural JWT expiry (§4.8).
//
// Each issued token's jti is recorded in Redis as session:{jti} with a
// TTL matching the token's expiry. The Auth Gate's verification path
// checks this record in addition to the JWT signature; deleting it (on
// logout, or by pattern for "log out everywhere") makes an otherwise
// still-valid token immediately unusable.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/modplane/server/internal/cache"
)

// SessionStore tracks live sessions in the session cache (A5).
type SessionStore struct {
	cache *cache.Cache
}

func NewSessionStore(c *cache.Cache) *SessionStore {
	return &SessionStore{cache: c}
}

type sessionRecord struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

func sessionKey(jti string) string {
	return fmt.Sprintf("session:%s", jti)
}

// Track records a newly issued token's session until it expires.
func (s *SessionStore) Track(ctx context.Context, jti, userID, username string, ttl time.Duration) error {
	return s.cache.Set(ctx, sessionKey(jti), sessionRecord{UserID: userID, Username: username}, ttl)
}

// Active reports whether a session is still tracked. A disabled cache
// always reports active, so the JWT's own expiry remains the sole check
// when Redis is unavailable.
func (s *SessionStore) Active(ctx context.Context, jti string) bool {
	if !s.cache.Enabled() {
		return true
	}
	var rec sessionRecord
	found, err := s.cache.Get(ctx, sessionKey(jti), &rec)
	return err == nil && found
}

// Revoke deletes a single session (logout).
func (s *SessionStore) Revoke(ctx context.Context, jti string) error {
	return s.cache.Delete(ctx, sessionKey(jti))
}

// RevokeAll clears every tracked session, forcing every user to
// re-authenticate. Used on operator-initiated global logout.
func (s *SessionStore) RevokeAll(ctx context.Context) error {
	return s.cache.DeletePattern(ctx, "session:*")
}
