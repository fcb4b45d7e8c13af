package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pet_chat/internal/config"
	"pet_chat/internal/domain"
	"pet_chat/pkg/jwt"
	"pet_chat/pkg/logger"
)

const ContextUserID = "user_id"

// AuthMiddleware binds a verified user id to the request. Browsers cannot set
// headers on a websocket handshake, so the token may also come as ?token=.
type AuthMiddleware struct {
	secret   string
	issuer   string
	required bool
	log      logger.Logger
}

func NewAuthMiddleware(cfg config.JWTConfig, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret:   cfg.Secret,
		issuer:   cfg.Issuer,
		required: cfg.Required,
		log:      log,
	}
}

// Handshake applies RequireAuth or OptionalAuth depending on configuration.
func (m *AuthMiddleware) Handshake() gin.HandlerFunc {
	if m.required {
		return m.RequireAuth()
	}
	return m.OptionalAuth()
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
			c.Abort()
			return
		}

		userID, err := m.authenticate(token)
		if err != nil {
			m.log.Warn("Token validation failed", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// OptionalAuth binds the user when a valid token is present and lets
// anonymous requests through otherwise.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" || m.secret == "" {
			c.Next()
			return
		}

		userID, err := m.authenticate(token)
		if err != nil {
			m.log.Debug("Ignoring invalid token", "error", err)
			c.Next()
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(token string) (domain.UserID, error) {
	claims, err := jwt.ValidateToken(token, m.secret, m.issuer)
	if err != nil {
		return 0, err
	}
	id, err := claims.NumericUserID()
	if err != nil {
		return 0, err
	}
	return domain.UserID(id), nil
}

// UserIDFromContext returns the authenticated user, or zero.
func UserIDFromContext(c *gin.Context) domain.UserID {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0
	}
	id, _ := v.(domain.UserID)
	return id
}

func tokenFromRequest(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return c.Query("token")
}
