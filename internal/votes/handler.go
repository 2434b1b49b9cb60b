package votes

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/pkg/response"
)

// SubmitRequest is the body for POST /votes.
type SubmitRequest struct {
	OptionID string `json:"option_id" binding:"required"`
}

// Handler handles vote and result endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a votes handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Submit handles POST /votes (student).
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	optionID, err := uuid.Parse(req.OptionID)
	if err != nil {
		response.BadRequest(c, "invalid option id")
		return
	}
	v, err := h.svc.Submit(c.Request.Context(), session.From(c), optionID)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, v)
}

// Tally handles GET /questions/:id/tally.
func (h *Handler) Tally(c *gin.Context) {
	questionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	res, err := h.svc.Tally(c.Request.Context(), session.From(c), questionID)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, res)
}

// History handles GET /history.
func (h *Handler) History(c *gin.Context) {
	list, err := h.svc.History(c.Request.Context(), session.From(c))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"questions": list})
}

// Stats handles GET /stats.
func (h *Handler) Stats(c *gin.Context) {
	res, err := h.svc.Stats(c.Request.Context(), session.From(c))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"question": res})
}
