package evaluation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeStore is an in-memory Store used by the lifecycle tests. It assigns
// dense sequence numbers and applies streak ops the same way the Postgres
// repo does.
type fakeStore struct {
	interns    map[string]bool
	containers map[string]*Container // keyed by internID + "|" + moduleCode
	streaks    map[string]*Streak
	audits     int
}

func newFakeStore(interns ...string) *fakeStore {
	s := &fakeStore{
		interns:    map[string]bool{},
		containers: map[string]*Container{},
		streaks:    map[string]*Streak{},
	}
	for _, id := range interns {
		s.interns[id] = true
	}
	return s
}

func key(internID, moduleCode string) string { return internID + "|" + moduleCode }

func (s *fakeStore) InternExists(_ context.Context, internID string) (bool, error) {
	return s.interns[internID], nil
}

func (s *fakeStore) GetContainer(_ context.Context, internID, moduleCode string) (*Container, error) {
	c, ok := s.containers[key(internID, moduleCode)]
	if !ok {
		return nil, nil
	}
	cp := *c
	cp.Attempts = append([]Attempt(nil), c.Attempts...)
	return &cp, nil
}

func (s *fakeStore) PatientSeen(_ context.Context, internID, patient string) (bool, error) {
	for k, c := range s.containers {
		if !strings.HasPrefix(k, internID+"|") {
			continue
		}
		for _, a := range c.Attempts {
			if a.PatientName != "" && strings.EqualFold(a.PatientName, patient) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *fakeStore) AppendAttempt(_ context.Context, internID, moduleCode string, a *Attempt, aux TxAux) error {
	k := key(internID, moduleCode)
	c, ok := s.containers[k]
	if !ok {
		c = &Container{ID: k, InternID: internID, ModuleCode: moduleCode}
		s.containers[k] = c
	}
	a.Seq = len(c.Attempts) + 1
	a.ID = k + "#" + string(rune('0'+a.Seq))
	c.Attempts = append(c.Attempts, *a)
	s.applyAux(aux)
	return nil
}

func (s *fakeStore) MutateAttempt(_ context.Context, internID, moduleCode string, seq int, mutate func(*Attempt) (TxAux, error)) (*Attempt, error) {
	c, ok := s.containers[key(internID, moduleCode)]
	if !ok || seq < 1 || seq > len(c.Attempts) {
		return nil, ErrAttemptNotFound
	}
	a := c.Attempts[seq-1]
	aux, err := mutate(&a)
	if err != nil {
		return nil, err
	}
	c.Attempts[seq-1] = a
	s.applyAux(aux)
	return &a, nil
}

func (s *fakeStore) GetStreak(_ context.Context, internID, moduleCode string) (*Streak, error) {
	st, ok := s.streaks[key(internID, moduleCode)]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *fakeStore) applyAux(aux TxAux) {
	if aux.Streak != nil {
		k := key(aux.Streak.InternID, aux.Streak.ModuleCode)
		st, ok := s.streaks[k]
		if !ok {
			st = &Streak{InternID: aux.Streak.InternID, ModuleCode: aux.Streak.ModuleCode}
			s.streaks[k] = st
		}
		applyStreak(st, *aux.Streak, time.Now().UTC())
	}
	if aux.Audit != nil {
		s.audits++
	}
}

const internID = "intern-1"

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore(internID)
	return NewService(store), store
}

func surgerySubmission(score int, remark, patient string) SubmitInput {
	m, _ := ModuleByCode("surgery")
	answers := scoredAnswers(m.Items, score)
	if remark != "" {
		for i := range answers {
			answers[i].Remark = remark
		}
	}
	return SubmitInput{
		InternID:    internID,
		ModuleCode:  "surgery",
		FacultyID:   "faculty-1",
		FacultyName: "Dr. Rao",
		Date:        "2026-08-20",
		PatientName: patient,
		Answers:     answers,
	}
}

func opdSubmission(code, val string) SubmitInput {
	m, _ := ModuleByCode("opd:" + code)
	return SubmitInput{
		InternID:    internID,
		ModuleCode:  "opd:" + code,
		FacultyID:   "faculty-1",
		FacultyName: "Dr. Rao",
		Date:        "2026-08-20",
		Answers:     yesNoAnswers(m.Items, val),
	}
}

func TestSubmitSurgery(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	a, err := svc.Submit(ctx, surgerySubmission(5, "", "Mrs. Sharma"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if a.Seq != 1 {
		t.Errorf("first attempt should be seq 1, got %d", a.Seq)
	}
	if a.TotalScore != 95 || a.MaxScore != 95 {
		t.Errorf("expected 95/95, got %d/%d", a.TotalScore, a.MaxScore)
	}
	if a.Status != StatusPendingAck {
		t.Errorf("expected PENDING_ACK, got %q", a.Status)
	}
	if store.audits != 1 {
		t.Errorf("expected an audit entry, got %d", store.audits)
	}
}

func TestSubmitErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    SubmitInput
		check func(error) bool
	}{
		{
			"unknown intern",
			func() SubmitInput { in := surgerySubmission(5, "", "A"); in.InternID = "nobody"; return in }(),
			func(err error) bool { return errors.Is(err, ErrInternNotFound) },
		},
		{
			"unknown module",
			func() SubmitInput { in := surgerySubmission(5, "", "A"); in.ModuleCode = "astrology"; return in }(),
			func(err error) bool { return errors.Is(err, ErrModuleUnknown) },
		},
		{
			"malformed date",
			func() SubmitInput { in := surgerySubmission(5, "", "A"); in.Date = "20/08/2026"; return in }(),
			func(err error) bool { var ve *ValidationError; return errors.As(err, &ve) },
		},
		{
			"low score without remark",
			surgerySubmission(2, "", "A"),
			func(err error) bool {
				var ve *ValidationError
				return errors.As(err, &ve) && ve.Item != ""
			},
		},
		{
			"missing patient",
			surgerySubmission(5, "", "  "),
			func(err error) bool { var ve *ValidationError; return errors.As(err, &ve) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Submit(ctx, tt.in); !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDuplicatePatientGuard(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, surgerySubmission(5, "", "Mrs. Sharma")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := svc.Submit(ctx, surgerySubmission(5, "", "MRS. SHARMA"))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected duplicate patient rejection, got %v", err)
	}
	if !strings.Contains(err.Error(), "duplicate patient") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestSequenceNumbersAreDense(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	patients := []string{"A", "B", "C", "D", "E"}
	for i, p := range patients {
		a, err := svc.Submit(ctx, surgerySubmission(5, "", p))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if a.Seq != i+1 {
			t.Errorf("attempt %d got seq %d", i+1, a.Seq)
		}
	}
	c, err := svc.GetContainer(ctx, internID, "surgery", false)
	if err != nil {
		t.Fatalf("get container: %v", err)
	}
	for i, a := range c.Attempts {
		if a.Seq != i+1 {
			t.Errorf("container position %d holds seq %d", i, a.Seq)
		}
	}
}

func TestOPDFailIsTemporaryAndHidden(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	in := opdSubmission("refraction", "Y")
	in.Answers[2].YesNo = "N"
	a, err := svc.Submit(ctx, in)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if a.Result != ResultFail || a.Status != StatusTemporary {
		t.Fatalf("expected FAIL/TEMPORARY, got %q/%q", a.Result, a.Status)
	}

	// Faculty view sees it, intern view does not.
	c, _ := svc.GetContainer(ctx, internID, "opd:refraction", false)
	if len(c.Attempts) != 1 {
		t.Errorf("faculty view should see 1 attempt, saw %d", len(c.Attempts))
	}
	c, _ = svc.GetContainer(ctx, internID, "opd:refraction", true)
	if len(c.Attempts) != 0 {
		t.Errorf("intern view should hide TEMPORARY, saw %d", len(c.Attempts))
	}

	// Failure resets the streak at submission time.
	st, _ := svc.GetStreak(ctx, internID, "opd:refraction")
	if st.Consecutive != 0 || st.Competent {
		t.Errorf("streak should be reset, got %+v", st)
	}
}

func TestAcknowledgeGuards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, opdSubmission("slitlamp", "Y")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Another intern cannot acknowledge.
	if _, err := svc.Acknowledge(ctx, "intern-2", internID, "opd:slitlamp", 1); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}

	// The owner can, exactly once.
	a, err := svc.Acknowledge(ctx, internID, internID, "opd:slitlamp", 1)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if a.Status != StatusAcknowledged || a.AckBy == nil || a.AckAt == nil {
		t.Fatalf("acknowledge metadata missing: %+v", a)
	}

	// Second acknowledgement conflicts and names the current status.
	_, err = svc.Acknowledge(ctx, internID, internID, "opd:slitlamp", 1)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if conflict.Current != StatusAcknowledged {
		t.Errorf("conflict should carry current status, got %q", conflict.Current)
	}

	// Missing attempt.
	if _, err := svc.Acknowledge(ctx, internID, internID, "opd:slitlamp", 9); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestTemporaryAttemptCannotBeAcknowledged(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	in := opdSubmission("fundoscopy", "Y")
	in.Answers[0].YesNo = "N"
	if _, err := svc.Submit(ctx, in); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err := svc.Acknowledge(ctx, internID, internID, "opd:fundoscopy", 1)
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Current != StatusTemporary {
		t.Fatalf("expected TEMPORARY conflict, got %v", err)
	}

	// The failed transition must not have mutated the attempt.
	c := store.containers[key(internID, "opd:fundoscopy")]
	if c.Attempts[0].Status != StatusTemporary || c.Attempts[0].AckBy != nil {
		t.Errorf("attempt mutated by rejected acknowledgement: %+v", c.Attempts[0])
	}
}

func TestCompetencyStreak(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Three acknowledged passes reach competence.
	for i := 1; i <= 3; i++ {
		if _, err := svc.Submit(ctx, opdSubmission("tonometry", "Y")); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if _, err := svc.Acknowledge(ctx, internID, internID, "opd:tonometry", i); err != nil {
			t.Fatalf("acknowledge %d: %v", i, err)
		}
		st, _ := svc.GetStreak(ctx, internID, "opd:tonometry")
		if st.Consecutive != i {
			t.Fatalf("after %d acks expected streak %d, got %d", i, i, st.Consecutive)
		}
		if (i >= 3) != st.Competent {
			t.Fatalf("after %d acks competent=%v", i, st.Competent)
		}
	}

	st, _ := svc.GetStreak(ctx, internID, "opd:tonometry")
	if st.AchievedAt == nil {
		t.Fatal("achieved_at should be set on reaching competence")
	}
	achieved := *st.AchievedAt

	// A fourth pass keeps competent and does not overwrite achieved_at.
	if _, err := svc.Submit(ctx, opdSubmission("tonometry", "Y")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Acknowledge(ctx, internID, internID, "opd:tonometry", 4); err != nil {
		t.Fatal(err)
	}
	st, _ = svc.GetStreak(ctx, internID, "opd:tonometry")
	if st.Consecutive != 4 || !st.Competent {
		t.Errorf("expected 4/competent, got %+v", st)
	}
	if !st.AchievedAt.Equal(achieved) {
		t.Error("achieved_at must not be overwritten")
	}

	// A failure resets the counter and clears competent.
	in := opdSubmission("tonometry", "Y")
	in.Answers[1].YesNo = "N"
	if _, err := svc.Submit(ctx, in); err != nil {
		t.Fatal(err)
	}
	st, _ = svc.GetStreak(ctx, internID, "opd:tonometry")
	if st.Consecutive != 0 || st.Competent {
		t.Errorf("failure should reset streak, got %+v", st)
	}
}

func TestEditResetsAcknowledgement(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, surgerySubmission(5, "", "Mr. Iyer")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Acknowledge(ctx, internID, internID, "surgery", 1); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	m, _ := ModuleByCode("surgery")
	edited := scoredAnswers(m.Items, 3)
	a, err := svc.Edit(ctx, EditInput{
		InternID:    internID,
		ModuleCode:  "surgery",
		Seq:         1,
		FacultyID:   "faculty-2",
		FacultyName: "Dr. Menon",
		Answers:     edited,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if a.Status != StatusPendingAck {
		t.Errorf("edit should reset status to PENDING_ACK, got %q", a.Status)
	}
	if a.AckBy != nil || a.AckAt != nil {
		t.Error("edit should clear acknowledgement metadata")
	}
	if a.TotalScore != 57 {
		t.Errorf("edit should recompute total, got %d", a.TotalScore)
	}
	if a.Grade != "Average" {
		t.Errorf("edit should recompute grade, got %q", a.Grade)
	}
}

func TestEditEnforcesRemarkRule(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, surgerySubmission(5, "", "Mr. Das")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	m, _ := ModuleByCode("surgery")
	answers := scoredAnswers(m.Items, 4)
	answers[3].Score = intp(1) // no remark
	_, err := svc.Edit(ctx, EditInput{
		InternID: internID, ModuleCode: "surgery", Seq: 1,
		FacultyID: "faculty-1", FacultyName: "Dr. Rao", Answers: answers,
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error on edit, got %v", err)
	}
	if ve.Item != m.Items[3] {
		t.Errorf("expected offending item %q, got %q", m.Items[3], ve.Item)
	}
}
