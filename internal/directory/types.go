package directory

import (
	"errors"
	"time"
)

// Roles in the directory. Every route group declares an allow-list of these.
const (
	RoleHOD     = "HOD"
	RoleFaculty = "FACULTY"
	RoleIntern  = "INTERN"
)

// BatchSize is fixed: every batch is created with exactly this many interns.
const BatchSize = 4

// Batch statuses.
const (
	BatchActive   = "ACTIVE"
	BatchArchived = "ARCHIVED"
)

// User is an identity record: HOD, faculty or intern.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	RegNo        string    `json:"reg_no,omitempty"`
	BatchID      *string   `json:"batch_id,omitempty"`
	Active       bool      `json:"active"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Batch is a named cohort of exactly four interns.
type Batch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Interns   []User    `json:"interns,omitempty"`
}

var (
	ErrNotFound       = errors.New("user not found")
	ErrBatchNotFound  = errors.New("batch not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrBadCredentials = errors.New("invalid email or password")
	ErrLastHOD        = errors.New("cannot remove the only HOD")
)

// ValidationError rejects malformed admin input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
