package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aura-classroom/livepoll/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carries the same three values as the session cookies.
type Claims struct {
	UserID uuid.UUID   `json:"uid"`
	PollID uuid.UUID   `json:"pid"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and validates signed session tokens for clients that
// cannot rely on cookies (WebSocket, EventSource across origins, scripts).
type TokenService struct {
	secret      []byte
	expireHours int
}

// NewTokenService creates a token service.
func NewTokenService(secret string, expireHours int) *TokenService {
	return &TokenService{
		secret:      []byte(secret),
		expireHours: expireHours,
	}
}

// Generate signs s into a token.
func (s *TokenService) Generate(sess Session) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: sess.UserID,
		PollID: sess.PollID,
		Role:   sess.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.New().String(),
		},
	}
	if s.expireHours > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(time.Duration(s.expireHours) * time.Hour))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a token, returning the session it carries.
func (s *TokenService) Validate(tokenString string) (Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Session{}, ErrInvalidToken
	}
	sess := Session{UserID: claims.UserID, PollID: claims.PollID}
	if claims.Role.Valid() {
		sess.Role = claims.Role
	}
	return sess, nil
}
