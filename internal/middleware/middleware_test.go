package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/models"
	"github.com/aura-classroom/livepoll/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type kickSet map[uuid.UUID]bool

func (k kickSet) IsKicked(_ context.Context, _, userID uuid.UUID) (bool, error) {
	return k[userID], nil
}

func newEngine(sess session.Session, handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	chain := append([]gin.HandlerFunc{func(c *gin.Context) { session.Store(c, sess) }}, handlers...)
	chain = append(chain, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/", chain...)
	return r
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name string
		role models.Role
		want int
	}{
		{"teacher allowed", models.RoleTeacher, http.StatusOK},
		{"student rejected", models.RoleStudent, http.StatusForbidden},
		{"no role rejected", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(session.Session{Role: tt.role}, RequireRole(models.RoleTeacher))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRejectKicked(t *testing.T) {
	kicked, active := uuid.New(), uuid.New()
	checker := kickSet{kicked: true}
	pollID := uuid.New()
	tests := []struct {
		name string
		sess session.Session
		want int
	}{
		{"kicked student", session.Session{UserID: kicked, PollID: pollID, Role: models.RoleStudent}, http.StatusForbidden},
		{"active student", session.Session{UserID: active, PollID: pollID, Role: models.RoleStudent}, http.StatusOK},
		{"teacher never gated", session.Session{UserID: kicked, PollID: pollID, Role: models.RoleTeacher}, http.StatusOK},
		{"anonymous", session.Session{}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(tt.sess, RejectKicked(checker, zap.NewNop()))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS("http://localhost:3000"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSOrigins(t *testing.T) {
	tests := []struct {
		name        string
		allowed     string
		origin      string
		wantOrigin  string
		wantCookies string
	}{
		{"wildcard", "*", "http://a.test", "*", ""},
		{"empty list is wildcard", "", "http://a.test", "*", ""},
		{"listed", "http://a.test, http://b.test", "http://b.test", "http://b.test", "true"},
		{"unlisted", "http://a.test", "http://evil.test", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(CORS(tt.allowed))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCookies, w.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}
