package exports

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/pkg/response"
)

// Handler handles export endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an exports handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Request handles POST /exports (teacher).
func (h *Handler) Request(c *gin.Context) {
	t, err := h.svc.Request(c.Request.Context(), session.From(c))
	if errors.Is(err, ErrUnavailable) {
		response.ServiceUnavailable(c, err.Error())
		return
	}
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Created(c, t)
}

// Status handles GET /exports/:id (teacher).
func (h *Handler) Status(c *gin.Context) {
	exportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid export id")
		return
	}
	st, err := h.svc.Status(c.Request.Context(), session.From(c), exportID)
	if errors.Is(err, ErrUnavailable) {
		response.ServiceUnavailable(c, err.Error())
		return
	}
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, st)
}
