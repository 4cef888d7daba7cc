package directory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"residency/internal/audit"
)

// Repository persists the directory in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const userColumns = `id, name, email, role, COALESCE(reg_no, ''), batch_id, active, password_hash, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.RegNo, &u.BatchID, &u.Active, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user; a taken email maps to ErrEmailTaken.
func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role, reg_no, batch_id, active, password_hash, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
	`, u.ID, u.Name, u.Email, u.Role, u.RegNo, u.BatchID, u.Active, u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

// GetUser returns a user by id, nil when absent. Ids that are not
// UUID-shaped cannot match a row, so they short-circuit before Postgres
// rejects the cast.
func (r *Repository) GetUser(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByEmail returns a user by email, nil when absent.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// UpdateUser overwrites mutable fields.
func (r *Repository) UpdateUser(ctx context.Context, u *User) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET name = $2, email = $3, reg_no = NULLIF($4, ''), batch_id = $5,
			active = $6, password_hash = $7
		WHERE id = $1
	`, u.ID, u.Name, u.Email, u.RegNo, u.BatchID, u.Active, u.PasswordHash)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

// DeleteUser hard-deletes a user.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

// CountActiveByRole counts enabled accounts holding a role.
func (r *Repository) CountActiveByRole(ctx context.Context, role string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = $1 AND active`, role).Scan(&n)
	return n, err
}

// ListByRole returns users holding a role, ordered by name.
func (r *Repository) ListByRole(ctx context.Context, role string) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY name`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CreateBatchWithInterns creates a batch, its four interns and the audit
// entry in a single transaction. A taken email rolls everything back.
func (r *Repository) CreateBatchWithInterns(ctx context.Context, b *Batch, interns []*User, aud *audit.Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (id, name, start_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, b.ID, b.Name, b.StartDate, b.Status, b.CreatedAt)
	if err != nil {
		return err
	}
	for _, u := range interns {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, name, email, role, reg_no, batch_id, active, password_hash, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
		`, u.ID, u.Name, u.Email, u.Role, u.RegNo, u.BatchID, u.Active, u.PasswordHash, u.CreatedAt)
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		if err != nil {
			return err
		}
	}
	if aud != nil {
		if err := audit.AppendTx(ctx, tx, *aud); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListBatches returns all batches with embedded intern summaries, newest first.
func (r *Repository) ListBatches(ctx context.Context) ([]Batch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, start_date, status, created_at FROM batches ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.Name, &b.StartDate, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range batches {
		interns, err := r.batchInterns(ctx, batches[i].ID)
		if err != nil {
			return nil, err
		}
		batches[i].Interns = interns
	}
	return batches, nil
}

// GetBatch returns one batch with its interns, nil when absent.
func (r *Repository) GetBatch(ctx context.Context, id string) (*Batch, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	var b Batch
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, start_date, status, created_at FROM batches WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.StartDate, &b.Status, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Interns, err = r.batchInterns(ctx, b.ID)
	return &b, err
}

func (r *Repository) batchInterns(ctx context.Context, batchID string) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE batch_id = $1 ORDER BY name
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetBatchStatus updates the archive flag.
func (r *Repository) SetBatchStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE batches SET status = $2 WHERE id = $1`, id, status)
	return err
}

// DeleteBatch removes a batch and its member interns in one transaction.
func (r *Repository) DeleteBatch(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE batch_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}
