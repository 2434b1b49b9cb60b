package polls

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/pkg/response"
)

// Handler handles bootstrap, session and poll info endpoints.
type Handler struct {
	svc     *Service
	cookies session.CookieOptions
	logger  *zap.Logger
}

// NewHandler creates a polls handler.
func NewHandler(svc *Service, cookies session.CookieOptions, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, cookies: cookies, logger: logger}
}

// Bootstrap handles POST /bootstrap.
func (h *Handler) Bootstrap(c *gin.Context) {
	var req BootstrapInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.Bootstrap(c.Request.Context(), req)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	session.Set(c, session.Session{UserID: res.UserID, PollID: res.PollID, Role: res.Role}, h.cookies)
	response.Created(c, res)
}

// Session handles GET /session.
func (h *Handler) Session(c *gin.Context) {
	info, err := h.svc.Describe(c.Request.Context(), session.From(c))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, info)
}

// Get handles GET /poll.
func (h *Handler) Get(c *gin.Context) {
	info, err := h.svc.Get(c.Request.Context(), session.From(c))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, info)
}
