// Package db provides PostgreSQL-backed persistence for the module plane
// core's fixed relational store (§6.2, §6.4): users, permissions, OAuth
// identities, and bans. Everything else the core does — routing,
// correlation, IPC — is in-memory and has no table here.
package db

import (
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/modplane/server/internal/logger"
)

// Config describes how to reach the relational store. Either DSN (a full
// connection string, e.g. from PG_URL) or the discrete fields are set;
// DSN wins when both are present.
type Config struct {
	DSN string

	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Database wraps a pooled *sql.DB with the lifecycle and schema
// management the core needs at boot.
type Database struct {
	db *sql.DB
}

func (c Config) dsn() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	if net.ParseIP(c.Host) == nil && !isValidHostname(c.Host) {
		return "", fmt.Errorf("db: invalid host %q", c.Host)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return "", fmt.Errorf("db: invalid port %q", c.Port)
	}
	switch c.SSLMode {
	case "disable", "require", "verify-ca", "verify-full", "":
	default:
		return "", fmt.Errorf("db: invalid sslmode %q", c.SSLMode)
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, orDefault(c.SSLMode, "disable")), nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func isValidHostname(h string) bool {
	if h == "" || len(h) > 253 {
		return false
	}
	for _, r := range h {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// NewDatabase opens a connection pool and verifies connectivity with Ping.
func NewDatabase(cfg Config) (*Database, error) {
	dsn, err := cfg.dsn()
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	if cfg.SSLMode == "disable" {
		logger.Database().Warn().Msg("connecting to postgres with sslmode=disable; use require or better in production")
	}

	return &Database{db: sqlDB}, nil
}

// DB returns the underlying connection pool for ad hoc queries.
func (d *Database) DB() *sql.DB { return d.db }

// Close releases the connection pool.
func (d *Database) Close() error { return d.db.Close() }

// Migrate creates the schema of §6.4 if it does not already exist. It is
// safe to run on every boot.
func (d *Database) Migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username VARCHAR(20) UNIQUE NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			passwordhash VARCHAR(128) NOT NULL,
			passwordsalt VARCHAR(128) NOT NULL,
			lastip VARCHAR(64),
			lasttoken TEXT,
			lastlogin TIMESTAMPTZ,
			createdat TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS userpermissions (
			id UUID PRIMARY KEY,
			userid UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			permission VARCHAR(128) NOT NULL,
			minrole INTEGER NOT NULL DEFAULT 0,
			createdat TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE(userid, permission)
		)`,
		`CREATE TABLE IF NOT EXISTS oauthidentities (
			id UUID PRIMARY KEY,
			userid UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			provider VARCHAR(32) NOT NULL,
			providerid VARCHAR(255) NOT NULL,
			UNIQUE(provider, providerid)
		)`,
		`CREATE TABLE IF NOT EXISTS bans (
			id UUID PRIMARY KEY,
			userid UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			reason TEXT NOT NULL,
			bannedby UUID,
			expiresat TIMESTAMPTZ,
			permaban BOOLEAN NOT NULL DEFAULT false,
			bannedat TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_userpermissions_userid ON userpermissions(userid)`,
		`CREATE INDEX IF NOT EXISTS idx_bans_userid ON bans(userid)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("db: migrate: %w", err)
		}
	}
	return nil
}
