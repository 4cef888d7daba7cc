package handler

import (
	"github.com/gin-gonic/gin"

	"residency/internal/audit"
	"residency/internal/auth"
	"residency/internal/config"
	"residency/internal/directory"
	"residency/internal/evaluation"
	"residency/internal/queue"
	"residency/internal/report"
)

// Handler holds the services behind the HTTP API.
type Handler struct {
	cfg     config.App
	dir     *directory.Service
	evals   *evaluation.Service
	reports *report.Service
	audits  *audit.Log
	revoker auth.Revoker
	q       queue.Queue
}

// New wires a handler.
func New(cfg config.App, dir *directory.Service, evals *evaluation.Service, reports *report.Service, audits *audit.Log, revoker auth.Revoker, q queue.Queue) *Handler {
	return &Handler{cfg: cfg, dir: dir, evals: evals, reports: reports, audits: audits, revoker: revoker, q: q}
}

// moduleCodeFn resolves the container module code for a route.
type moduleCodeFn func(c *gin.Context) string

func opdModule(c *gin.Context) string {
	return "opd:" + c.Param("moduleCode")
}
