// Package server assembles the HTTP surface.
package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/chat"
	"github.com/aura-classroom/livepoll/internal/exports"
	"github.com/aura-classroom/livepoll/internal/middleware"
	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/internal/polls"
	"github.com/aura-classroom/livepoll/internal/questions"
	"github.com/aura-classroom/livepoll/internal/realtime"
	"github.com/aura-classroom/livepoll/internal/roster"
	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/internal/votes"
	"github.com/aura-classroom/livepoll/pkg/response"
)

// Deps are the handlers and shared components behind the router.
type Deps struct {
	Tokens      *session.TokenService
	CORSOrigins string
	Broker      *realtime.Broker
	Stream      realtime.StreamOptions
	Polls       *polls.Handler
	Questions   *questions.Handler
	Votes       *votes.Handler
	Roster      *roster.Handler
	Kicks       middleware.KickChecker
	Chat        *chat.Handler
	Exports     *exports.Handler
	Logger      *zap.Logger
}

// New builds the gin engine with every route.
func New(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(d.CORSOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Session(d.Tokens))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Reachable by kicked students so the client can learn its state.
	router.POST("/bootstrap", d.Polls.Bootstrap)
	router.GET("/session", d.Polls.Session)

	teacher := middleware.RequireRole(models.RoleTeacher)
	student := middleware.RequireRole(models.RoleStudent)

	api := router.Group("")
	if d.Kicks != nil {
		api.Use(middleware.RejectKicked(d.Kicks, logger))
	}
	{
		api.GET("/poll", d.Polls.Get)

		api.GET("/questions/active", d.Questions.Active)
		api.GET("/questions/next", d.Questions.Next)
		api.POST("/questions", teacher, d.Questions.Create)
		api.PATCH("/questions/active", teacher, d.Questions.CloseActive)
		api.GET("/questions/:id/tally", d.Votes.Tally)

		api.POST("/votes", student, d.Votes.Submit)
		api.GET("/history", d.Votes.History)
		api.GET("/stats", d.Votes.Stats)

		api.GET("/participants", d.Roster.List)
		api.POST("/participants/kick", teacher, d.Roster.Kick)

		api.GET("/chat", d.Chat.List)
		api.POST("/chat", d.Chat.Post)

		if d.Exports != nil {
			api.POST("/exports", teacher, d.Exports.Request)
			api.GET("/exports/:id", teacher, d.Exports.Status)
		}

		api.GET("/events", realtime.ServeSSE(d.Broker, d.Stream, logger))
		api.GET("/ws", realtime.ServeWs(d.Broker, d.Stream, logger))
	}

	return router
}
