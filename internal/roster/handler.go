package roster

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/pkg/response"
)

// KickRequest is the body for POST /participants/kick.
type KickRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// Handler handles roster endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a roster handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /participants.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), session.From(c))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"participants": list})
}

// Kick handles POST /participants/kick (teacher).
func (h *Handler) Kick(c *gin.Context) {
	var req KickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	p, err := h.svc.Kick(c.Request.Context(), session.From(c), userID)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, p)
}
