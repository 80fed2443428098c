package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/modplane/server/internal/models"
)

// CreateUser inserts a new local-auth user row. The password hash/salt
// are computed by the caller (internal/auth uses PBKDF2-HMAC-SHA512 per
// §4.8); this layer never hashes passwords itself.
func (d *Database) CreateUser(ctx context.Context, username, email, passwordHash, passwordSalt string) (*models.User, error) {
	u := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		PasswordSalt: passwordSalt,
		CreatedAt:    time.Now(),
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, passwordhash, passwordsalt, createdat) VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.PasswordSalt, u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindUserByUsername returns nil, nil when no such user exists.
func (d *Database) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return d.scanUser(ctx, `SELECT id, username, email, passwordhash, passwordsalt, lastip, lasttoken, lastlogin, createdat FROM users WHERE username = $1`, username)
}

// FindUserByEmail returns nil, nil when no such user exists.
func (d *Database) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return d.scanUser(ctx, `SELECT id, username, email, passwordhash, passwordsalt, lastip, lasttoken, lastlogin, createdat FROM users WHERE email = $1`, email)
}

// FindUserByID returns nil, nil when no such user exists.
func (d *Database) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return d.scanUser(ctx, `SELECT id, username, email, passwordhash, passwordsalt, lastip, lasttoken, lastlogin, createdat FROM users WHERE id = $1`, id)
}

func (d *Database) scanUser(ctx context.Context, query string, arg string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx, query, arg)
	var u models.User
	var lastIP, lastToken sql.NullString
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.PasswordSalt, &lastIP, &lastToken, &lastLogin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.LastIP = lastIP.String
	u.LastToken = lastToken.String
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return &u, nil
}

// RecordLogin stamps lastip, lasttoken and lastlogin after a successful
// authentication.
func (d *Database) RecordLogin(ctx context.Context, userID, ip, token string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE users SET lastip = $1, lasttoken = $2, lastlogin = $3 WHERE id = $4`,
		ip, token, time.Now(), userID)
	return err
}
