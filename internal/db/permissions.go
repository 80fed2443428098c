package db

import (
	"context"

	"github.com/google/uuid"
)

// GrantPermission is idempotent on (userID, permission): a repeated grant
// leaves exactly one row (§8, round-trip property).
func (d *Database) GrantPermission(ctx context.Context, userID, permission string, minRole int) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO userpermissions (id, userid, permission, minrole) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (userid, permission) DO UPDATE SET minrole = EXCLUDED.minrole`,
		uuid.New().String(), userID, permission, minRole)
	return err
}

// RevokePermission removes a single grant; revoking a permission the user
// never had is a no-op.
func (d *Database) RevokePermission(ctx context.Context, userID, permission string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM userpermissions WHERE userid = $1 AND permission = $2`, userID, permission)
	return err
}

// ListPermissions returns the permission names granted to a user.
func (d *Database) ListPermissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT permission FROM userpermissions WHERE userid = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
