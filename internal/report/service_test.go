package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"residency/internal/directory"
	"residency/internal/evaluation"
)

type fakeEvals struct {
	containers     map[string]*evaluation.Container // internID|moduleCode
	streaks        map[string]*evaluation.Streak
	containerReads int
}

func (f *fakeEvals) GetContainer(_ context.Context, internID, moduleCode string, _ bool) (*evaluation.Container, error) {
	f.containerReads++
	if c, ok := f.containers[internID+"|"+moduleCode]; ok {
		return c, nil
	}
	return &evaluation.Container{InternID: internID, ModuleCode: moduleCode, Attempts: []evaluation.Attempt{}}, nil
}

func (f *fakeEvals) GetStreak(_ context.Context, internID, moduleCode string) (*evaluation.Streak, error) {
	if st, ok := f.streaks[internID+"|"+moduleCode]; ok {
		return st, nil
	}
	return &evaluation.Streak{InternID: internID, ModuleCode: moduleCode}, nil
}

type fakeDir struct {
	users   map[string]*directory.User
	batches map[string]*directory.Batch
}

func (f *fakeDir) GetUser(_ context.Context, id string) (*directory.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, directory.ErrNotFound
}

func (f *fakeDir) GetBatch(_ context.Context, id string) (*directory.Batch, error) {
	if b, ok := f.batches[id]; ok {
		return b, nil
	}
	return nil, directory.ErrBatchNotFound
}

func TestPerformance(t *testing.T) {
	intern := &directory.User{ID: "i1", Name: "Dr. Asha", Email: "asha@hospital.test", Role: directory.RoleIntern}
	achieved := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	evals := &fakeEvals{
		containers: map[string]*evaluation.Container{
			"i1|surgery": {
				InternID: "i1", ModuleCode: "surgery",
				Attempts: []evaluation.Attempt{
					{Seq: 1, TotalScore: 90, MaxScore: 95, Grade: "Excellent", Status: evaluation.StatusAcknowledged},
					{Seq: 2, TotalScore: 60, MaxScore: 95, Grade: "Average", Status: evaluation.StatusPendingAck},
				},
			},
			"i1|opd:refraction": {
				InternID: "i1", ModuleCode: "opd:refraction",
				Attempts: []evaluation.Attempt{
					{Seq: 1, Result: evaluation.ResultPass, Status: evaluation.StatusAcknowledged},
				},
			},
		},
		streaks: map[string]*evaluation.Streak{
			"i1|opd:refraction": {
				InternID: "i1", ModuleCode: "opd:refraction",
				Consecutive: 3, Competent: true, AchievedAt: &achieved,
			},
		},
	}
	svc := NewService(evals, &fakeDir{users: map[string]*directory.User{"i1": intern}})

	p, err := svc.Performance(context.Background(), "i1")
	if err != nil {
		t.Fatalf("performance: %v", err)
	}
	if p.Intern.ID != "i1" {
		t.Errorf("wrong intern: %+v", p.Intern)
	}
	if want := len(evaluation.ModuleCodes()); len(p.Modules) != want {
		t.Fatalf("expected %d module histories, got %d", want, len(p.Modules))
	}

	byCode := map[string]ModuleHistory{}
	for _, h := range p.Modules {
		byCode[h.ModuleCode] = h
	}
	if len(byCode["surgery"].Attempts) != 2 {
		t.Errorf("surgery history: %+v", byCode["surgery"])
	}
	if byCode["surgery"].Streak != nil {
		t.Error("scored modules carry no streak")
	}
	ref := byCode["opd:refraction"]
	if ref.Streak == nil || !ref.Streak.Competent || ref.Streak.Consecutive != 3 {
		t.Errorf("streak not attached: %+v", ref.Streak)
	}
	if byCode["wetlab"].Attempts == nil || len(byCode["wetlab"].Attempts) != 0 {
		t.Errorf("untouched module should report an empty history: %+v", byCode["wetlab"])
	}
	// Every OPD module carries a streak record even when untouched.
	for _, code := range evaluation.OPDCodes() {
		if byCode["opd:"+code].Streak == nil {
			t.Errorf("opd:%s should carry a streak record", code)
		}
	}
}

func TestBatchWorkbook(t *testing.T) {
	intern := &directory.User{ID: "i1", Name: "Dr. Asha", RegNo: "PG-001", Role: directory.RoleIntern}
	batch := &directory.Batch{ID: "b1", Name: "August 2026", Interns: []directory.User{*intern}}

	evals := &fakeEvals{
		containers: map[string]*evaluation.Container{
			"i1|surgery": {
				InternID: "i1", ModuleCode: "surgery",
				Attempts: []evaluation.Attempt{
					{Seq: 1, Date: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), FacultyName: "Dr. Rao",
						TotalScore: 90, MaxScore: 95, Grade: "Excellent", Status: evaluation.StatusAcknowledged},
				},
			},
		},
	}
	svc := NewService(evals, &fakeDir{
		users:   map[string]*directory.User{"i1": intern},
		batches: map[string]*directory.Batch{"b1": batch},
	})

	f, err := svc.BatchWorkbook(context.Background(), "b1")
	if err != nil {
		t.Fatalf("workbook: %v", err)
	}
	defer f.Close()

	for _, sheet := range []string{"Surgery", "OPD", "Wet Lab", "Academic"} {
		if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
			t.Errorf("missing sheet %q", sheet)
		}
	}
	if idx, _ := f.GetSheetIndex("Sheet1"); idx >= 0 {
		t.Error("default sheet should be dropped")
	}

	name, err := f.GetCellValue("Surgery", "A2")
	if err != nil {
		t.Fatal(err)
	}
	if name != "Dr. Asha" {
		t.Errorf("Surgery!A2 = %q, want intern name", name)
	}
	grade, _ := f.GetCellValue("Surgery", "I2")
	if grade != "Excellent" {
		t.Errorf("Surgery!I2 = %q", grade)
	}

	// The module name column carries the display form, not the container code.
	module, _ := f.GetCellValue("Surgery", "C2")
	if module != "surgery" {
		t.Errorf("Surgery!C2 = %q", module)
	}

	// One history pass per intern, not one per family sheet.
	if want := len(evaluation.ModuleCodes()); evals.containerReads != want {
		t.Errorf("workbook read containers %d times, want %d (one pass per intern)", evals.containerReads, want)
	}

	if _, err := svc.BatchWorkbook(context.Background(), "missing"); !errors.Is(err, directory.ErrBatchNotFound) {
		t.Errorf("expected ErrBatchNotFound, got %v", err)
	}
}

func TestPerformanceRejectsNonInterns(t *testing.T) {
	faculty := &directory.User{ID: "f1", Role: directory.RoleFaculty}
	svc := NewService(&fakeEvals{}, &fakeDir{users: map[string]*directory.User{"f1": faculty}})

	if _, err := svc.Performance(context.Background(), "f1"); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a faculty id, got %v", err)
	}
	if _, err := svc.Performance(context.Background(), "ghost"); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown id, got %v", err)
	}
}
