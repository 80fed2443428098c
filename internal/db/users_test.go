package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser_Success(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	database := &Database{db: sqlDB}
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "alice", "alice@example.com", "hash", "salt", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user, err := database.CreateUser(ctx, "alice", "alice@example.com", "hash", "salt")

	assert.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUserByUsername_NotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	database := &Database{db: sqlDB}

	mock.ExpectQuery("SELECT id, username, email").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "passwordhash", "passwordsalt", "lastip", "lasttoken", "lastlogin", "createdat"}))

	user, err := database.FindUserByUsername(context.Background(), "ghost")

	assert.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantPermission_Idempotent(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	database := &Database{db: sqlDB}

	mock.ExpectExec("INSERT INTO userpermissions").
		WithArgs(sqlmock.AnyArg(), "user-1", "admin.access", 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO userpermissions").
		WithArgs(sqlmock.AnyArg(), "user-1", "admin.access", 0).
		WillReturnResult(sqlmock.NewResult(1, 0))

	require.NoError(t, database.GrantPermission(context.Background(), "user-1", "admin.access", 0))
	require.NoError(t, database.GrantPermission(context.Background(), "user-1", "admin.access", 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}
