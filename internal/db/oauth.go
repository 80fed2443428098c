package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/modplane/server/internal/models"
)

// UpsertOAuthIdentity links a provider account to a local user, creating
// the link row on first sign-in and leaving it unchanged on subsequent
// ones.
func (d *Database) UpsertOAuthIdentity(ctx context.Context, userID, provider, providerID string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO oauthidentities (id, userid, provider, providerid) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (provider, providerid) DO NOTHING`,
		uuid.New().String(), userID, provider, providerID)
	return err
}

// FindByOAuthIdentity returns the linked user, or nil, nil if no user has
// linked this provider account yet.
func (d *Database) FindByOAuthIdentity(ctx context.Context, provider, providerID string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT u.id, u.username, u.email, u.passwordhash, u.passwordsalt, u.lastip, u.lasttoken, u.lastlogin, u.createdat
		 FROM oauthidentities oi JOIN users u ON u.id = oi.userid
		 WHERE oi.provider = $1 AND oi.providerid = $2`, provider, providerID)

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
