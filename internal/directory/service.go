package directory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"residency/internal/audit"
)

// Store is the persistence surface for the directory. The Postgres
// implementation lives in repo.go; tests use an in-memory fake.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error
	CountActiveByRole(ctx context.Context, role string) (int, error)
	ListByRole(ctx context.Context, role string) ([]User, error)
	CreateBatchWithInterns(ctx context.Context, b *Batch, interns []*User, aud *audit.Entry) error
	ListBatches(ctx context.Context) ([]Batch, error)
	GetBatch(ctx context.Context, id string) (*Batch, error)
	SetBatchStatus(ctx context.Context, id, status string) error
	DeleteBatch(ctx context.Context, id string) error
}

// Auditor records administrative actions.
type Auditor interface {
	Append(ctx context.Context, e audit.Entry) error
}

// Service implements directory onboarding and administration.
type Service struct {
	store Store
	aud   Auditor
	now   func() time.Time
}

// NewService creates a directory service.
func NewService(store Store, aud Auditor) *Service {
	return &Service{store: store, aud: aud, now: func() time.Time { return time.Now().UTC() }}
}

// Authenticate checks credentials and returns the user on success.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return u, nil
}

// GetUser returns a user by id, ErrNotFound when absent.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// IsActive reports whether a user account exists and is enabled. Used by the
// auth middleware.
func (s *Service) IsActive(ctx context.Context, id string) (bool, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return false, err
	}
	return u != nil && u.Active, nil
}

// FacultyInput carries faculty create/update fields.
type FacultyInput struct {
	Name     string
	Email    string
	Password string
}

// CreateFaculty onboards a faculty member.
func (s *Service) CreateFaculty(ctx context.Context, actorID string, in FacultyInput) (*User, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" {
		return nil, &ValidationError{Msg: "name and email required"}
	}
	if len(in.Password) < 6 {
		return nil, &ValidationError{Msg: "password too short"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Role:         RoleFaculty,
		Active:       true,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, "faculty.create", u.ID, nil)
	return u, nil
}

// UpdateFaculty edits name/email and optionally rotates the password.
func (s *Service) UpdateFaculty(ctx context.Context, actorID, id string, in FacultyInput) (*User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != RoleFaculty {
		return nil, ErrNotFound
	}
	if in.Name != "" {
		u.Name = strings.TrimSpace(in.Name)
	}
	if in.Email != "" {
		u.Email = strings.ToLower(strings.TrimSpace(in.Email))
	}
	if in.Password != "" {
		if len(in.Password) < 6 {
			return nil, &ValidationError{Msg: "password too short"}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = string(hash)
	}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, "faculty.update", u.ID, nil)
	return u, nil
}

// SetUserActive soft-disables or re-enables an account.
func (s *Service) SetUserActive(ctx context.Context, actorID, id string, active bool) error {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if u.Role == RoleHOD && !active {
		n, err := s.store.CountActiveByRole(ctx, RoleHOD)
		if err != nil {
			return err
		}
		if n <= 1 {
			return ErrLastHOD
		}
	}
	u.Active = active
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return err
	}
	s.audit(ctx, actorID, "user.set_active", id, map[string]any{"active": active})
	return nil
}

// DeleteUser hard-deletes an account. The sole HOD cannot be removed.
func (s *Service) DeleteUser(ctx context.Context, actorID, id string) error {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if u.Role == RoleHOD {
		n, err := s.store.CountActiveByRole(ctx, RoleHOD)
		if err != nil {
			return err
		}
		if n <= 1 {
			return ErrLastHOD
		}
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, actorID, "user.purge", id, map[string]any{"role": u.Role})
	return nil
}

// ListFaculty returns all faculty members.
func (s *Service) ListFaculty(ctx context.Context) ([]User, error) {
	return s.store.ListByRole(ctx, RoleFaculty)
}

// ListInterns returns all interns.
func (s *Service) ListInterns(ctx context.Context) ([]User, error) {
	return s.store.ListByRole(ctx, RoleIntern)
}

// InternSpec is one of the four intern entries in a batch creation request.
type InternSpec struct {
	Name     string
	Email    string
	RegNo    string
	Password string
}

// BatchInput carries batch creation fields.
type BatchInput struct {
	Name      string
	StartDate string // YYYY-MM-DD
	Interns   []InternSpec
}

// CreateBatch creates a batch and its four interns in one transaction.
// Any failure, including a taken email, persists nothing.
func (s *Service) CreateBatch(ctx context.Context, actorID string, in BatchInput) (*Batch, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, &ValidationError{Msg: "batch name required"}
	}
	start, err := time.Parse("2006-01-02", in.StartDate)
	if err != nil {
		return nil, &ValidationError{Msg: "malformed start date"}
	}
	today := s.now().Truncate(24 * time.Hour)
	if start.Before(today) {
		return nil, &ValidationError{Msg: "start date must be today or later"}
	}
	if len(in.Interns) != BatchSize {
		return nil, &ValidationError{Msg: "exactly 4 interns required"}
	}

	emails := make(map[string]bool, BatchSize)
	batchID := uuid.NewString()
	interns := make([]*User, 0, BatchSize)
	for _, spec := range in.Interns {
		email := strings.ToLower(strings.TrimSpace(spec.Email))
		if strings.TrimSpace(spec.Name) == "" || email == "" {
			return nil, &ValidationError{Msg: "intern name and email required"}
		}
		if emails[email] {
			return nil, &ValidationError{Msg: "duplicate intern email: " + email}
		}
		emails[email] = true
		if len(spec.Password) < 6 {
			return nil, &ValidationError{Msg: "intern password too short"}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(spec.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		bid := batchID
		interns = append(interns, &User{
			ID:           uuid.NewString(),
			Name:         strings.TrimSpace(spec.Name),
			Email:        email,
			Role:         RoleIntern,
			RegNo:        strings.TrimSpace(spec.RegNo),
			BatchID:      &bid,
			Active:       true,
			PasswordHash: string(hash),
			CreatedAt:    s.now(),
		})
	}

	b := &Batch{
		ID:        batchID,
		Name:      strings.TrimSpace(in.Name),
		StartDate: start,
		Status:    BatchActive,
		CreatedAt: s.now(),
	}
	aud := &audit.Entry{
		ActorID: actorID,
		Action:  "batch.create",
		Target:  batchID,
		Meta:    map[string]any{"name": b.Name, "interns": BatchSize},
	}
	if err := s.store.CreateBatchWithInterns(ctx, b, interns, aud); err != nil {
		return nil, err
	}
	for _, u := range interns {
		b.Interns = append(b.Interns, *u)
	}
	return b, nil
}

// ListBatches returns all batches with embedded intern summaries.
func (s *Service) ListBatches(ctx context.Context) ([]Batch, error) {
	return s.store.ListBatches(ctx)
}

// GetBatch returns one batch with its interns.
func (s *Service) GetBatch(ctx context.Context, id string) (*Batch, error) {
	b, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBatchNotFound
	}
	return b, nil
}

// ArchiveBatch flags a batch archived without touching its members.
func (s *Service) ArchiveBatch(ctx context.Context, actorID, id string) error {
	if _, err := s.GetBatch(ctx, id); err != nil {
		return err
	}
	if err := s.store.SetBatchStatus(ctx, id, BatchArchived); err != nil {
		return err
	}
	s.audit(ctx, actorID, "batch.archive", id, nil)
	return nil
}

// DeleteBatch permanently removes a batch and its member interns.
func (s *Service) DeleteBatch(ctx context.Context, actorID, id string) error {
	if _, err := s.GetBatch(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteBatch(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, actorID, "batch.delete", id, nil)
	return nil
}

func (s *Service) audit(ctx context.Context, actorID, action, target string, meta map[string]any) {
	if s.aud == nil {
		return
	}
	_ = s.aud.Append(ctx, audit.Entry{ActorID: actorID, Action: action, Target: target, Meta: meta})
}
