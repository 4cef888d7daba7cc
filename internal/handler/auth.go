package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"residency/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login checks credentials and issues a bearer token carrying the role claim.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failWith(c, http.StatusBadRequest, err.Error())
		return
	}
	u, err := h.dir.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	if !u.Active {
		failWith(c, http.StatusForbidden, "account disabled")
		return
	}
	token, err := auth.Issue(u.ID, u.Role, u.Name, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"token":      token.Value,
		"expires_at": token.ExpiresAt.Unix(),
		"user": gin.H{
			"id":   u.ID,
			"name": u.Name,
			"role": u.Role,
		},
	})
}

// Logout revokes the presented token until its natural expiry.
func (h *Handler) Logout(c *gin.Context) {
	claims := auth.FromContext(c)
	until := time.Now().Add(h.cfg.AccessTTL)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := h.revoker.Revoke(c.Request.Context(), claims.ID, until); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"logged_out": true})
}
