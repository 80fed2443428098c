// This file implements JWT issuance and verification for the Auth Gate.
//
// Tokens are HS256-signed and carry {username, ip}, expiring 12 hours
// after issuance (§6.1). The core never stores tokens itself beyond the
// user's lasttoken column (§6.4) and the Redis-backed session tracker
// (session_store.go), which is what makes logout an immediate
// revocation rather than a wait for natural expiry.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTTL = 12 * time.Hour

// Claims is the JWT payload the core issues and verifies.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IP       string `json:"ip"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies JWTs with a single shared secret.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Issue signs a new token for userID/username bound to the request's
// source IP, expiring in 12h.
func (t *TokenIssuer) Issue(userID, username, ip string) (string, time.Time, error) {
	expiresAt := time.Now().Add(tokenTTL)
	claims := Claims{
		UserID:   userID,
		Username: username,
		IP:       ip,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify validates signature and expiry and returns the decoded claims.
// It rejects tokens signed with anything other than HMAC to prevent
// algorithm-substitution attacks.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("auth: invalid token")
	}
	return claims, nil
}
