package chat

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/pkg/response"
)

// PostRequest is the body for POST /chat.
type PostRequest struct {
	Text string `json:"text"`
}

// Handler handles chat endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a chat handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /chat?limit=.
func (h *Handler) List(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	list, err := h.svc.Recent(c.Request.Context(), session.From(c), limit)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"messages": list})
}

// Post handles POST /chat.
func (h *Handler) Post(c *gin.Context) {
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	msg, err := h.svc.Post(c.Request.Context(), session.From(c), req.Text)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Created(c, msg)
}
