package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"residency/internal/evaluation"
)

// InternPDF renders one intern's cross-module history as a PDF document.
func (s *Service) InternPDF(ctx context.Context, internID string) ([]byte, error) {
	p, err := s.Performance(ctx, internID)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Residency Assessment Report")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Intern: %s (%s)", p.Intern.Name, p.Intern.RegNo))
	pdf.Ln(10)

	for _, h := range p.Modules {
		if len(h.Attempts) == 0 && h.Streak == nil {
			continue
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, evaluation.DisplayName(h.ModuleCode))
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		for _, a := range h.Attempts {
			line := fmt.Sprintf("#%d  %s  %s", a.Seq, a.Date.Format("2006-01-02"), string(a.Status))
			if a.MaxScore > 0 {
				line += fmt.Sprintf("  %d/%d %s", a.TotalScore, a.MaxScore, a.Grade)
			}
			if a.Result != "" {
				line += "  " + string(a.Result)
			}
			pdf.Cell(0, 6, line)
			pdf.Ln(6)
		}
		if h.Streak != nil {
			line := fmt.Sprintf("Streak: %d consecutive", h.Streak.Consecutive)
			if h.Streak.Competent {
				line += "  COMPETENT"
			}
			pdf.Cell(0, 6, line)
			pdf.Ln(6)
		}
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
