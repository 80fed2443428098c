package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/modplane/server/internal/models"
)

// CreateBan records a ban. expiresAt is nil for a non-expiring ban unless
// permaban is also set, in which case expiresAt is ignored entirely.
func (d *Database) CreateBan(ctx context.Context, userID, reason string, bannedBy *string, expiresAt *time.Time, permaban bool) (*models.Ban, error) {
	b := &models.Ban{
		ID:        uuid.New().String(),
		UserID:    userID,
		Reason:    reason,
		BannedBy:  bannedBy,
		ExpiresAt: expiresAt,
		Permaban:  permaban,
		BannedAt:  time.Now(),
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO bans (id, userid, reason, bannedby, expiresat, permaban, bannedat) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.ID, b.UserID, b.Reason, b.BannedBy, b.ExpiresAt, b.Permaban, b.BannedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ActiveBanForUser returns the user's currently-in-effect ban, if any.
func (d *Database) ActiveBanForUser(ctx context.Context, userID string) (*models.Ban, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, userid, reason, bannedby, expiresat, permaban, bannedat FROM bans
		 WHERE userid = $1 AND (permaban = true OR expiresat IS NULL OR expiresat > now())
		 ORDER BY bannedat DESC LIMIT 1`, userID)

	var b models.Ban
	var bannedBy sql.NullString
	var expiresAt sql.NullTime
	err := row.Scan(&b.ID, &b.UserID, &b.Reason, &bannedBy, &expiresAt, &b.Permaban, &b.BannedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if bannedBy.Valid {
		b.BannedBy = &bannedBy.String
	}
	if expiresAt.Valid {
		b.ExpiresAt = &expiresAt.Time
	}
	return &b, nil
}
