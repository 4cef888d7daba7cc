package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"residency/internal/auth"
	"residency/internal/directory"
)

type internSpecRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	RegNo    string `json:"reg_no"`
	Password string `json:"password" binding:"required"`
}

type createBatchRequest struct {
	Name      string              `json:"name" binding:"required"`
	StartDate string              `json:"start_date" binding:"required"`
	Interns   []internSpecRequest `json:"interns" binding:"required"`
}

// CreateBatch creates a batch and its four interns atomically.
func (h *Handler) CreateBatch(c *gin.Context) {
	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failWith(c, http.StatusBadRequest, err.Error())
		return
	}
	in := directory.BatchInput{Name: req.Name, StartDate: req.StartDate}
	for _, sp := range req.Interns {
		in.Interns = append(in.Interns, directory.InternSpec(sp))
	}
	b, err := h.dir.CreateBatch(c.Request.Context(), auth.FromContext(c).Subject, in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, b)
}

// ListBatches returns all batches with embedded intern summaries.
func (h *Handler) ListBatches(c *gin.Context) {
	batches, err := h.dir.ListBatches(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, batches)
}

// ArchiveBatch flags a batch archived.
func (h *Handler) ArchiveBatch(c *gin.Context) {
	if err := h.dir.ArchiveBatch(c.Request.Context(), auth.FromContext(c).Subject, c.Param("batchId")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"archived": true})
}

// DeleteBatch removes a batch and its interns.
func (h *Handler) DeleteBatch(c *gin.Context) {
	if err := h.dir.DeleteBatch(c.Request.Context(), auth.FromContext(c).Subject, c.Param("batchId")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": true})
}

type facultyRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateFaculty onboards a faculty member.
func (h *Handler) CreateFaculty(c *gin.Context) {
	var req facultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failWith(c, http.StatusBadRequest, err.Error())
		return
	}
	u, err := h.dir.CreateFaculty(c.Request.Context(), auth.FromContext(c).Subject, directory.FacultyInput(req))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, u)
}

// UpdateFaculty edits a faculty record.
func (h *Handler) UpdateFaculty(c *gin.Context) {
	var req facultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failWith(c, http.StatusBadRequest, err.Error())
		return
	}
	u, err := h.dir.UpdateFaculty(c.Request.Context(), auth.FromContext(c).Subject, c.Param("id"), directory.FacultyInput(req))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, u)
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetUserActive soft-disables or re-enables an account. A disabled account
// fails login and is cut off by the bearer middleware mid-session.
func (h *Handler) SetUserActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failWith(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.dir.SetUserActive(c.Request.Context(), auth.FromContext(c).Subject, c.Param("id"), *req.Active); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"active": *req.Active})
}

// DeleteFaculty hard-deletes a user; the sole HOD is protected.
func (h *Handler) DeleteFaculty(c *gin.Context) {
	if err := h.dir.DeleteUser(c.Request.Context(), auth.FromContext(c).Subject, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": true})
}

// ListFaculty returns all faculty members.
func (h *Handler) ListFaculty(c *gin.Context) {
	users, err := h.dir.ListFaculty(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, users)
}

// ListInterns returns all interns.
func (h *Handler) ListInterns(c *gin.Context) {
	users, err := h.dir.ListInterns(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, users)
}

// ListAudit returns recent audit entries, newest first.
func (h *Handler) ListAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	entries, err := h.audits.List(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, entries)
}
