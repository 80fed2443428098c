// Package models defines the persisted and wire types backing the fixed
// /auth, /users surface (§6.1, §6.4) and the identity envelope the Auth
// Gate attaches to authenticated requests (§4.8).
package models

import "time"

// User is a row of the users table (§6.4).
//
// PasswordHash, PasswordSalt, and LastIP are storage-only: no handler may
// ever serialize them into a response (§8, "no server-emitted payload
// ever contains passwordHash, passwordSalt, or lastIp").
type User struct {
	ID           string     `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"passwordhash"`
	PasswordSalt string     `json:"-" db:"passwordsalt"`
	LastIP       string     `json:"-" db:"lastip"`
	LastToken    string     `json:"-" db:"lasttoken"`
	LastLogin    *time.Time `json:"lastLogin,omitempty" db:"lastlogin"`
	CreatedAt    time.Time  `json:"createdAt" db:"createdat"`
}

// Permission is a row of the userPermissions table.
type Permission struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"userid"`
	Name      string    `json:"permission" db:"permission"`
	MinRole   int       `json:"minrole" db:"minrole"`
	CreatedAt time.Time `json:"createdAt" db:"createdat"`
}

// OAuthIdentity is a row of the oauthIdentities table, linking a local
// user to an external provider account.
type OAuthIdentity struct {
	ID         string `json:"id" db:"id"`
	UserID     string `json:"userId" db:"userid"`
	Provider   string `json:"provider" db:"provider"`
	ProviderID string `json:"providerId" db:"providerid"`
}

// Ban is a row of the bans table.
type Ban struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"userId" db:"userid"`
	Reason    string     `json:"reason" db:"reason"`
	BannedBy  *string    `json:"bannedBy,omitempty" db:"bannedby"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" db:"expiresat"`
	Permaban  bool       `json:"permaban" db:"permaban"`
	BannedAt  time.Time  `json:"bannedAt" db:"bannedat"`
}

// Identity is the sanitized record the Auth Gate derives from a valid
// token and attaches to a request or WS payload (§3, "Identity"). It is
// the only user-shaped value any module or client ever sees.
type Identity struct {
	UserID      string   `json:"userId"`
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
}

// LoginRequest is the /auth/login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the /auth/register request body.
type RegisterRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	RePassword string `json:"repassword"`
}
