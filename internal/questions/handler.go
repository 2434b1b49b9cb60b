package questions

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/pkg/response"
)

// Handler handles question HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a questions handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Create handles POST /questions (teacher).
func (h *Handler) Create(c *gin.Context) {
	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q, err := h.svc.Create(c.Request.Context(), session.From(c), req)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Created(c, q)
}

// CloseActive handles PATCH /questions/active (teacher).
func (h *Handler) CloseActive(c *gin.Context) {
	n, err := h.svc.CloseActive(c.Request.Context(), session.From(c))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"closed": n})
}

// Active handles GET /questions/active.
func (h *Handler) Active(c *gin.Context) {
	q, err := h.svc.Active(c.Request.Context(), session.From(c))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"question": q})
}

// Next handles GET /questions/next.
func (h *Handler) Next(c *gin.Context) {
	next, err := h.svc.NextForStudent(c.Request.Context(), session.From(c))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, next)
}
