package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults and applies the schema.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return &DB{Client: db}, err
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		reg_no TEXT,
		batch_id UUID,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS batches (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		start_date DATE NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS containers (
		id UUID PRIMARY KEY,
		intern_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		module_code TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (intern_id, module_code)
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id UUID PRIMARY KEY,
		container_id UUID NOT NULL REFERENCES containers(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		attempt_date DATE NOT NULL,
		faculty_id UUID NOT NULL,
		faculty_name TEXT NOT NULL DEFAULT '',
		patient_name TEXT NOT NULL DEFAULT '',
		answers JSONB NOT NULL,
		total_score INTEGER NOT NULL DEFAULT 0,
		max_score INTEGER NOT NULL DEFAULT 0,
		grade TEXT NOT NULL DEFAULT '',
		result TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		ack_by UUID,
		ack_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (container_id, seq)
	);

	CREATE TABLE IF NOT EXISTS competency (
		intern_id UUID NOT NULL,
		module_code TEXT NOT NULL,
		consecutive INTEGER NOT NULL DEFAULT 0,
		competent BOOLEAN NOT NULL DEFAULT FALSE,
		achieved_at TIMESTAMPTZ,
		PRIMARY KEY (intern_id, module_code)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id UUID PRIMARY KEY,
		actor_id UUID NOT NULL,
		action TEXT NOT NULL,
		target TEXT NOT NULL,
		meta JSONB NOT NULL DEFAULT '{}',
		at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_container ON attempts (container_id, seq);
	CREATE INDEX IF NOT EXISTS idx_users_batch ON users (batch_id);
	CREATE INDEX IF NOT EXISTS idx_audit_at ON audit_log (at);
	`
	_, err := db.Exec(schema)
	return err
}
