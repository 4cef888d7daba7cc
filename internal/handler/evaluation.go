package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"residency/internal/auth"
	"residency/internal/directory"
	"residency/internal/evaluation"
	"residency/internal/queue"
)

type answerRequest struct {
	Item   string `json:"item" binding:"required"`
	Score  *int   `json:"score"`
	YesNo  string `json:"yes_no"`
	Remark string `json:"remark"`
}

type submitRequest struct {
	Date        string          `json:"date" binding:"required"`
	PatientName string          `json:"patient_name"`
	Answers     []answerRequest `json:"answers" binding:"required"`
}

func toAnswers(reqs []answerRequest) []evaluation.Answer {
	answers := make([]evaluation.Answer, 0, len(reqs))
	for _, a := range reqs {
		answers = append(answers, evaluation.Answer(a))
	}
	return answers
}

// SubmitAttempt records a new attempt for the module resolved by code.
func (h *Handler) SubmitAttempt(code moduleCodeFn) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			failWith(c, http.StatusBadRequest, err.Error())
			return
		}
		claims := auth.FromContext(c)
		moduleCode := code(c)
		a, err := h.evals.Submit(c.Request.Context(), evaluation.SubmitInput{
			InternID:    c.Param("internId"),
			ModuleCode:  moduleCode,
			FacultyID:   claims.Subject,
			FacultyName: claims.Name,
			Date:        req.Date,
			PatientName: req.PatientName,
			Answers:     toAnswers(req.Answers),
		})
		if err != nil {
			fail(c, err)
			return
		}
		attemptsSubmitted.WithLabelValues(moduleCode, string(a.Status)).Inc()
		if a.Status == evaluation.StatusPendingAck {
			h.publishPending(c.Request.Context(), a.ID)
		}
		respond(c, http.StatusCreated, a)
	}
}

// EditAttempt overwrites an attempt's answers; the intern must re-acknowledge.
func (h *Handler) EditAttempt(code moduleCodeFn) gin.HandlerFunc {
	return func(c *gin.Context) {
		seq, err := strconv.Atoi(c.Param("n"))
		if err != nil {
			failWith(c, http.StatusBadRequest, "invalid attempt number")
			return
		}
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			failWith(c, http.StatusBadRequest, err.Error())
			return
		}
		claims := auth.FromContext(c)
		a, err := h.evals.Edit(c.Request.Context(), evaluation.EditInput{
			InternID:    c.Param("internId"),
			ModuleCode:  code(c),
			Seq:         seq,
			FacultyID:   claims.Subject,
			FacultyName: claims.Name,
			Answers:     toAnswers(req.Answers),
		})
		if err != nil {
			fail(c, err)
			return
		}
		if a.Status == evaluation.StatusPendingAck {
			h.publishPending(c.Request.Context(), a.ID)
		}
		respond(c, http.StatusOK, a)
	}
}

// GetContainer returns the attempt history for one (intern, module).
// Interns see only their own container, without TEMPORARY attempts.
func (h *Handler) GetContainer(code moduleCodeFn) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := auth.FromContext(c)
		internID := c.Param("internId")
		internView := claims.Role == directory.RoleIntern
		if internView && claims.Subject != internID {
			failWith(c, http.StatusForbidden, "cannot view another intern's record")
			return
		}
		container, err := h.evals.GetContainer(c.Request.Context(), internID, code(c), internView)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, container)
	}
}

// AcknowledgeAttempt transitions PENDING_ACK to ACKNOWLEDGED for the owning intern.
func (h *Handler) AcknowledgeAttempt(code moduleCodeFn) gin.HandlerFunc {
	return func(c *gin.Context) {
		seq, err := strconv.Atoi(c.Param("n"))
		if err != nil {
			failWith(c, http.StatusBadRequest, "invalid attempt number")
			return
		}
		claims := auth.FromContext(c)
		moduleCode := code(c)
		a, err := h.evals.Acknowledge(c.Request.Context(), claims.Subject, c.Param("internId"), moduleCode, seq)
		if err != nil {
			fail(c, err)
			return
		}
		attemptsAcknowledged.WithLabelValues(moduleCode).Inc()
		respond(c, http.StatusOK, a)
	}
}

// GetStreak returns the OPD competency record for an intern.
func (h *Handler) GetStreak(c *gin.Context) {
	claims := auth.FromContext(c)
	internID := c.Param("internId")
	if claims.Role == directory.RoleIntern && claims.Subject != internID {
		failWith(c, http.StatusForbidden, "cannot view another intern's record")
		return
	}
	st, err := h.evals.GetStreak(c.Request.Context(), internID, opdModule(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, st)
}

func (h *Handler) publishPending(ctx context.Context, attemptID string) {
	if h.q == nil {
		return
	}
	if err := h.q.Publish(ctx, queue.Message{Type: "attempt_pending", Body: []byte(attemptID)}); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}
