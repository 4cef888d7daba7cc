package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is an immutable record of an administrative or evaluation action.
type Entry struct {
	ID      string         `json:"id"`
	ActorID string         `json:"actor_id"`
	Action  string         `json:"action"`
	Target  string         `json:"target"`
	Meta    map[string]any `json:"meta,omitempty"`
	At      time.Time      `json:"at"`
}

// Log persists audit entries in Postgres. Entries are append-only.
type Log struct {
	db *sql.DB
}

// NewLog creates a log backed by the given database.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Append writes an entry outside any transaction.
func (l *Log) Append(ctx context.Context, e Entry) error {
	return insert(ctx, l.db, e)
}

// AppendTx writes an entry inside the caller's transaction so it commits or
// rolls back together with the mutation it describes.
func AppendTx(ctx context.Context, tx *sql.Tx, e Entry) error {
	return insert(ctx, tx, e)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, db execer, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, target, meta, at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.ActorID, e.Action, e.Target, meta, e.At)
	return err
}

// List returns recent entries, newest first.
func (l *Log) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, actor_id, action, target, meta, at
		FROM audit_log ORDER BY at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Target, &meta, &e.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Meta)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
