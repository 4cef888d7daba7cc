package report

import (
	"context"
	"sort"

	"residency/internal/directory"
	"residency/internal/evaluation"
)

// Evaluations is the read surface over containers and streaks.
type Evaluations interface {
	GetContainer(ctx context.Context, internID, moduleCode string, internView bool) (*evaluation.Container, error)
	GetStreak(ctx context.Context, internID, moduleCode string) (*evaluation.Streak, error)
}

// Directory is the read surface over users and batches.
type Directory interface {
	GetUser(ctx context.Context, id string) (*directory.User, error)
	GetBatch(ctx context.Context, id string) (*directory.Batch, error)
}

// Service produces read-only projections across containers. Exports read
// without isolation; a report taken during concurrent writes is a
// best-effort snapshot.
type Service struct {
	evals Evaluations
	dir   Directory
}

// NewService creates a reporting service.
func NewService(evals Evaluations, dir Directory) *Service {
	return &Service{evals: evals, dir: dir}
}

// ModuleHistory is one module's attempts for one intern, with the streak
// record for OPD modules.
type ModuleHistory struct {
	ModuleCode string               `json:"module_code"`
	Attempts   []evaluation.Attempt `json:"attempts"`
	Streak     *evaluation.Streak   `json:"streak,omitempty"`
}

// Performance aggregates the full cross-module history of one intern.
type Performance struct {
	Intern  directory.User  `json:"intern"`
	Modules []ModuleHistory `json:"modules"`
}

// Performance builds the aggregated history for one intern.
func (s *Service) Performance(ctx context.Context, internID string) (*Performance, error) {
	u, err := s.dir.GetUser(ctx, internID)
	if err != nil {
		return nil, err
	}
	if u.Role != directory.RoleIntern {
		return nil, directory.ErrNotFound
	}

	codes := evaluation.ModuleCodes()
	sort.Strings(codes)

	p := &Performance{Intern: *u}
	for _, code := range codes {
		c, err := s.evals.GetContainer(ctx, internID, code, false)
		if err != nil {
			return nil, err
		}
		h := ModuleHistory{ModuleCode: code, Attempts: c.Attempts}
		if m, ok := evaluation.ModuleByCode(code); ok && m.TracksStreak {
			st, err := s.evals.GetStreak(ctx, internID, code)
			if err != nil {
				return nil, err
			}
			h.Streak = st
		}
		p.Modules = append(p.Modules, h)
	}
	return p, nil
}
