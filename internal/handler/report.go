package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Performance returns the aggregated cross-module history for one intern.
func (h *Handler) Performance(c *gin.Context) {
	p, err := h.reports.Performance(c.Request.Context(), c.Param("internId"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, p)
}

// ExportBatch streams an Excel workbook covering every intern in a batch.
func (h *Handler) ExportBatch(c *gin.Context) {
	f, err := h.reports.BatchWorkbook(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="batch-report.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		fail(c, err)
	}
}

// ExportIntern streams a PDF summary for one intern.
func (h *Handler) ExportIntern(c *gin.Context) {
	data, err := h.reports.InternPDF(c.Request.Context(), c.Param("internId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="intern-report.pdf"`)
	c.Data(http.StatusOK, "application/pdf", data)
}
