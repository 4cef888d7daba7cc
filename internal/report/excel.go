package report

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"residency/internal/evaluation"
)

var familySheets = []struct {
	family string
	sheet  string
}{
	{evaluation.FamilySurgery, "Surgery"},
	{evaluation.FamilyOPD, "OPD"},
	{evaluation.FamilyWetLab, "Wet Lab"},
	{evaluation.FamilyAcademic, "Academic"},
}

// BatchWorkbook renders every attempt of every intern in a batch into an
// Excel workbook, one sheet per module family. Each intern's history is
// loaded once and reused across the family sheets.
func (s *Service) BatchWorkbook(ctx context.Context, batchID string) (*excelize.File, error) {
	b, err := s.dir.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	perfs := make([]*Performance, 0, len(b.Interns))
	for _, intern := range b.Interns {
		p, err := s.Performance(ctx, intern.ID)
		if err != nil {
			return nil, err
		}
		perfs = append(perfs, p)
	}

	f := excelize.NewFile()
	header := []any{"Intern", "Reg No", "Module", "#", "Date", "Faculty", "Score", "Max", "Grade", "Result", "Status"}

	for _, fs := range familySheets {
		idx, err := f.NewSheet(fs.sheet)
		if err != nil {
			return nil, err
		}
		if fs.family == evaluation.FamilySurgery {
			f.SetActiveSheet(idx)
		}
		if err := f.SetSheetRow(fs.sheet, "A1", &header); err != nil {
			return nil, err
		}
		row := 2
		for _, p := range perfs {
			for _, h := range p.Modules {
				m, ok := evaluation.ModuleByCode(h.ModuleCode)
				if !ok || m.Family != fs.family {
					continue
				}
				for _, a := range h.Attempts {
					cells := []any{
						p.Intern.Name, p.Intern.RegNo, evaluation.DisplayName(h.ModuleCode), a.Seq,
						a.Date.Format("2006-01-02"), a.FacultyName,
						a.TotalScore, a.MaxScore, a.Grade, string(a.Result), string(a.Status),
					}
					if err := f.SetSheetRow(fs.sheet, fmt.Sprintf("A%d", row), &cells); err != nil {
						return nil, err
					}
					row++
				}
			}
		}
	}
	// Drop the default sheet excelize creates.
	_ = f.DeleteSheet("Sheet1")
	return f, nil
}
