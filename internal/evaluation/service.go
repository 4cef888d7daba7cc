package evaluation

import (
	"context"
	"strings"
	"time"

	"residency/internal/audit"
)

// StreakOp mutates the competency streak inside the same transaction as the
// attempt write. Advance increments the counter, otherwise it resets.
type StreakOp struct {
	InternID   string
	ModuleCode string
	Advance    bool
}

// TxAux carries side effects that must commit or roll back with the attempt
// mutation they belong to.
type TxAux struct {
	Streak *StreakOp
	Audit  *audit.Entry
}

// Store is the persistence surface the lifecycle engine needs. The Postgres
// implementation lives in repo.go; tests use an in-memory fake.
type Store interface {
	InternExists(ctx context.Context, internID string) (bool, error)
	GetContainer(ctx context.Context, internID, moduleCode string) (*Container, error)
	PatientSeen(ctx context.Context, internID, patient string) (bool, error)
	AppendAttempt(ctx context.Context, internID, moduleCode string, a *Attempt, aux TxAux) error
	MutateAttempt(ctx context.Context, internID, moduleCode string, seq int, mutate func(*Attempt) (TxAux, error)) (*Attempt, error)
	GetStreak(ctx context.Context, internID, moduleCode string) (*Streak, error)
}

// Service implements the attempt lifecycle and acknowledgement workflow.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a lifecycle engine backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// SubmitInput is a validated-at-the-boundary attempt submission.
type SubmitInput struct {
	InternID    string
	ModuleCode  string
	FacultyID   string
	FacultyName string
	Date        string // YYYY-MM-DD
	PatientName string
	Answers     []Answer
}

// Submit validates a submission, derives its score, grade and status, and
// appends it to the intern's container with an atomically assigned sequence
// number. OPD failures reset the competency streak in the same transaction.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Attempt, error) {
	m, ok := ModuleByCode(in.ModuleCode)
	if !ok {
		return nil, ErrModuleUnknown
	}
	exists, err := s.store.InternExists(ctx, in.InternID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrInternNotFound
	}
	date, err := time.Parse("2006-01-02", in.Date)
	if err != nil {
		return nil, &ValidationError{Msg: "malformed date"}
	}
	if err := m.Validate(in.Answers); err != nil {
		return nil, err
	}
	if m.NeedsPatient {
		if strings.TrimSpace(in.PatientName) == "" {
			return nil, &ValidationError{Msg: "patient name required"}
		}
		seen, err := s.store.PatientSeen(ctx, in.InternID, in.PatientName)
		if err != nil {
			return nil, err
		}
		if seen {
			return nil, &ValidationError{Msg: "duplicate patient", Item: in.PatientName}
		}
	}

	total, max, grade, result, status := m.Derive(in.Answers)
	now := s.now()
	a := &Attempt{
		Date:        date,
		FacultyID:   in.FacultyID,
		FacultyName: in.FacultyName,
		PatientName: strings.TrimSpace(in.PatientName),
		Answers:     in.Answers,
		TotalScore:  total,
		MaxScore:    max,
		Grade:       grade,
		Result:      result,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	aux := TxAux{
		Audit: &audit.Entry{
			ActorID: in.FacultyID,
			Action:  "attempt.submit",
			Target:  in.ModuleCode + "/" + in.InternID,
			Meta:    map[string]any{"status": string(status), "grade": grade, "result": string(result)},
		},
	}
	if m.TracksStreak && result == ResultFail {
		aux.Streak = &StreakOp{InternID: in.InternID, ModuleCode: in.ModuleCode}
	}
	if err := s.store.AppendAttempt(ctx, in.InternID, in.ModuleCode, a, aux); err != nil {
		return nil, err
	}
	return a, nil
}

// EditInput overwrites an existing attempt's answers by sequence number.
type EditInput struct {
	InternID    string
	ModuleCode  string
	Seq         int
	FacultyID   string
	FacultyName string
	Answers     []Answer
}

// Edit re-validates and re-derives an attempt. The intern has to acknowledge
// again: status leaves ACKNOWLEDGED and ack metadata is cleared.
func (s *Service) Edit(ctx context.Context, in EditInput) (*Attempt, error) {
	m, ok := ModuleByCode(in.ModuleCode)
	if !ok {
		return nil, ErrModuleUnknown
	}
	if err := m.Validate(in.Answers); err != nil {
		return nil, err
	}
	total, max, grade, result, status := m.Derive(in.Answers)

	return s.store.MutateAttempt(ctx, in.InternID, in.ModuleCode, in.Seq, func(a *Attempt) (TxAux, error) {
		a.Answers = in.Answers
		a.TotalScore = total
		a.MaxScore = max
		a.Grade = grade
		a.Result = result
		a.Status = status
		a.AckBy = nil
		a.AckAt = nil
		a.FacultyID = in.FacultyID
		a.FacultyName = in.FacultyName
		a.UpdatedAt = s.now()

		aux := TxAux{
			Audit: &audit.Entry{
				ActorID: in.FacultyID,
				Action:  "attempt.edit",
				Target:  in.ModuleCode + "/" + in.InternID,
				Meta:    map[string]any{"seq": in.Seq, "status": string(status)},
			},
		}
		if m.TracksStreak && result == ResultFail {
			aux.Streak = &StreakOp{InternID: in.InternID, ModuleCode: in.ModuleCode}
		}
		return aux, nil
	})
}

// Acknowledge transitions a PENDING_ACK attempt to ACKNOWLEDGED. Only the
// intern the container belongs to may call it. For OPD modules the competency
// streak advances on PASS and resets on FAIL, in the same transaction.
func (s *Service) Acknowledge(ctx context.Context, callerID, internID, moduleCode string, seq int) (*Attempt, error) {
	m, ok := ModuleByCode(moduleCode)
	if !ok {
		return nil, ErrModuleUnknown
	}
	if callerID != internID {
		return nil, ErrNotOwner
	}

	return s.store.MutateAttempt(ctx, internID, moduleCode, seq, func(a *Attempt) (TxAux, error) {
		if a.Status != StatusPendingAck {
			return TxAux{}, &ConflictError{Current: a.Status}
		}
		now := s.now()
		a.Status = StatusAcknowledged
		a.AckBy = &callerID
		a.AckAt = &now
		a.UpdatedAt = now

		aux := TxAux{
			Audit: &audit.Entry{
				ActorID: callerID,
				Action:  "attempt.acknowledge",
				Target:  moduleCode + "/" + internID,
				Meta:    map[string]any{"seq": seq},
			},
		}
		if m.TracksStreak {
			aux.Streak = &StreakOp{
				InternID:   internID,
				ModuleCode: moduleCode,
				Advance:    a.Result == ResultPass,
			}
		}
		return aux, nil
	})
}

// GetContainer returns the container for one (intern, module). When
// internView is set, TEMPORARY attempts are filtered out: they are visible
// to faculty and admin only.
func (s *Service) GetContainer(ctx context.Context, internID, moduleCode string, internView bool) (*Container, error) {
	if _, ok := ModuleByCode(moduleCode); !ok {
		return nil, ErrModuleUnknown
	}
	c, err := s.store.GetContainer(ctx, internID, moduleCode)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = &Container{InternID: internID, ModuleCode: moduleCode, Attempts: []Attempt{}}
	}
	if internView {
		visible := make([]Attempt, 0, len(c.Attempts))
		for _, a := range c.Attempts {
			if a.Status != StatusTemporary {
				visible = append(visible, a)
			}
		}
		c.Attempts = visible
	}
	return c, nil
}

// GetStreak returns the competency record for one (intern, OPD module).
func (s *Service) GetStreak(ctx context.Context, internID, moduleCode string) (*Streak, error) {
	m, ok := ModuleByCode(moduleCode)
	if !ok || !m.TracksStreak {
		return nil, ErrModuleUnknown
	}
	st, err := s.store.GetStreak(ctx, internID, moduleCode)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &Streak{InternID: internID, ModuleCode: moduleCode}
	}
	return st, nil
}

// applyStreak is the single place the streak transition lives; both the
// Postgres repo and the test fake run it.
func applyStreak(st *Streak, op StreakOp, now time.Time) {
	if !op.Advance {
		st.Consecutive = 0
		st.Competent = false
		return
	}
	st.Consecutive++
	if st.Consecutive >= 3 {
		st.Competent = true
		if st.AchievedAt == nil {
			t := now
			st.AchievedAt = &t
		}
	}
}
