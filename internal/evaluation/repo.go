package evaluation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"residency/internal/audit"
)

// Repository persists evaluation containers, attempts and streaks in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// InternExists reports whether an active intern with the given id exists.
func (r *Repository) InternExists(ctx context.Context, internID string) (bool, error) {
	if _, err := uuid.Parse(internID); err != nil {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND role = 'INTERN' AND active)
	`, internID).Scan(&exists)
	return exists, err
}

const attemptColumns = `id, seq, attempt_date, faculty_id, faculty_name, patient_name,
	answers, total_score, max_score, grade, result, status, ack_by, ack_at, created_at, updated_at`

func scanAttempt(row interface{ Scan(...any) error }) (Attempt, error) {
	var a Attempt
	var answers []byte
	err := row.Scan(&a.ID, &a.Seq, &a.Date, &a.FacultyID, &a.FacultyName, &a.PatientName,
		&answers, &a.TotalScore, &a.MaxScore, &a.Grade, &a.Result, &a.Status,
		&a.AckBy, &a.AckAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Attempt{}, err
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

// GetContainer loads a container and its attempts ordered by sequence.
// Returns nil when the intern has no container for the module yet. Path ids
// that are not UUID-shaped cannot match a row and short-circuit before
// Postgres rejects the cast.
func (r *Repository) GetContainer(ctx context.Context, internID, moduleCode string) (*Container, error) {
	if _, err := uuid.Parse(internID); err != nil {
		return nil, nil
	}
	var c Container
	err := r.db.QueryRowContext(ctx, `
		SELECT id, intern_id, module_code FROM containers
		WHERE intern_id = $1 AND module_code = $2
	`, internID, moduleCode).Scan(&c.ID, &c.InternID, &c.ModuleCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+attemptColumns+` FROM attempts WHERE container_id = $1 ORDER BY seq
	`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		c.Attempts = append(c.Attempts, a)
	}
	return &c, rows.Err()
}

// PatientSeen checks the duplicate-patient guard, case-insensitively, across
// all of the intern's surgery attempts.
func (r *Repository) PatientSeen(ctx context.Context, internID, patient string) (bool, error) {
	var seen bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attempts a
			JOIN containers c ON c.id = a.container_id
			WHERE c.intern_id = $1 AND LOWER(a.patient_name) = LOWER($2) AND a.patient_name <> ''
		)
	`, internID, patient).Scan(&seen)
	return seen, err
}

// AppendAttempt inserts an attempt with the next dense sequence number.
// The sequence is computed and inserted in one statement guarded by the
// UNIQUE(container_id, seq) constraint; concurrent submitters that collide
// retry with a fresh number, so 1..N stays contiguous.
func (r *Repository) AppendAttempt(ctx context.Context, internID, moduleCode string, a *Attempt, aux TxAux) error {
	const maxRetries = 3
	var err error
	for i := 0; i < maxRetries; i++ {
		err = r.appendOnce(ctx, internID, moduleCode, a, aux)
		if err == nil || !isUniqueViolation(err) {
			break
		}
	}
	return err
}

func (r *Repository) appendOnce(ctx context.Context, internID, moduleCode string, a *Attempt, aux TxAux) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	containerID, err := ensureContainer(ctx, tx, internID, moduleCode)
	if err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return err
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO attempts (id, container_id, seq, attempt_date, faculty_id, faculty_name,
			patient_name, answers, total_score, max_score, grade, result, status, created_at, updated_at)
		VALUES ($1, $2,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM attempts WHERE container_id = $2),
			$3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING seq
	`, a.ID, containerID, a.Date, a.FacultyID, a.FacultyName, a.PatientName, answers,
		a.TotalScore, a.MaxScore, a.Grade, string(a.Result), string(a.Status), a.CreatedAt, a.UpdatedAt).Scan(&a.Seq)
	if err != nil {
		return err
	}
	if err := applyAuxTx(ctx, tx, aux); err != nil {
		return err
	}
	return tx.Commit()
}

func applyAuxTx(ctx context.Context, tx *sql.Tx, aux TxAux) error {
	if aux.Streak != nil {
		if err := applyStreakTx(ctx, tx, *aux.Streak); err != nil {
			return err
		}
	}
	if aux.Audit != nil {
		if err := audit.AppendTx(ctx, tx, *aux.Audit); err != nil {
			return err
		}
	}
	return nil
}

func ensureContainer(ctx context.Context, tx *sql.Tx, internID, moduleCode string) (string, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO containers (id, intern_id, module_code)
		VALUES ($1, $2, $3)
		ON CONFLICT (intern_id, module_code) DO NOTHING
	`, uuid.NewString(), internID, moduleCode)
	if err != nil {
		return "", err
	}
	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM containers WHERE intern_id = $1 AND module_code = $2
	`, internID, moduleCode).Scan(&id)
	return id, err
}

func applyStreakTx(ctx context.Context, tx *sql.Tx, op StreakOp) error {
	st := Streak{InternID: op.InternID, ModuleCode: op.ModuleCode}
	err := tx.QueryRowContext(ctx, `
		SELECT consecutive, competent, achieved_at FROM competency
		WHERE intern_id = $1 AND module_code = $2
		FOR UPDATE
	`, op.InternID, op.ModuleCode).Scan(&st.Consecutive, &st.Competent, &st.AchievedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	applyStreak(&st, op, time.Now().UTC())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO competency (intern_id, module_code, consecutive, competent, achieved_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (intern_id, module_code) DO UPDATE SET
			consecutive = EXCLUDED.consecutive,
			competent = EXCLUDED.competent,
			achieved_at = EXCLUDED.achieved_at
	`, st.InternID, st.ModuleCode, st.Consecutive, st.Competent, st.AchievedAt)
	return err
}

// MutateAttempt locks an attempt row, applies the caller's mutation, and
// writes the updated row plus any streak/audit side effects in one
// transaction.
func (r *Repository) MutateAttempt(ctx context.Context, internID, moduleCode string, seq int, mutate func(*Attempt) (TxAux, error)) (*Attempt, error) {
	if _, err := uuid.Parse(internID); err != nil {
		return nil, ErrAttemptNotFound
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var containerID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM containers WHERE intern_id = $1 AND module_code = $2
	`, internID, moduleCode).Scan(&containerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, `
		SELECT `+attemptColumns+` FROM attempts
		WHERE container_id = $1 AND seq = $2
		FOR UPDATE
	`, containerID, seq)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}

	aux, err := mutate(&a)
	if err != nil {
		return nil, err
	}

	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE attempts SET
			attempt_date = $3, faculty_id = $4, faculty_name = $5, patient_name = $6,
			answers = $7, total_score = $8, max_score = $9, grade = $10, result = $11,
			status = $12, ack_by = $13, ack_at = $14, updated_at = $15
		WHERE container_id = $1 AND seq = $2
	`, containerID, seq, a.Date, a.FacultyID, a.FacultyName, a.PatientName, answers,
		a.TotalScore, a.MaxScore, a.Grade, string(a.Result), string(a.Status), a.AckBy, a.AckAt, a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := applyAuxTx(ctx, tx, aux); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetStreak returns the competency record, or nil when none exists yet.
func (r *Repository) GetStreak(ctx context.Context, internID, moduleCode string) (*Streak, error) {
	if _, err := uuid.Parse(internID); err != nil {
		return nil, nil
	}
	st := Streak{InternID: internID, ModuleCode: moduleCode}
	err := r.db.QueryRowContext(ctx, `
		SELECT consecutive, competent, achieved_at FROM competency
		WHERE intern_id = $1 AND module_code = $2
	`, internID, moduleCode).Scan(&st.Consecutive, &st.Competent, &st.AchievedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// AttemptNotice is what the notification worker needs to email an intern
// about a pending acknowledgement.
type AttemptNotice struct {
	InternName  string
	InternEmail string
	ModuleCode  string
	Seq         int
	Status      Status
}

// GetAttemptNotice resolves notification context for an attempt id. Queue
// bodies are untrusted; malformed ids resolve to not-found.
func (r *Repository) GetAttemptNotice(ctx context.Context, attemptID string) (*AttemptNotice, error) {
	if _, err := uuid.Parse(attemptID); err != nil {
		return nil, ErrAttemptNotFound
	}
	var n AttemptNotice
	err := r.db.QueryRowContext(ctx, `
		SELECT u.name, u.email, c.module_code, a.seq, a.status
		FROM attempts a
		JOIN containers c ON c.id = a.container_id
		JOIN users u ON u.id = c.intern_id
		WHERE a.id = $1
	`, attemptID).Scan(&n.InternName, &n.InternEmail, &n.ModuleCode, &n.Seq, &n.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}
