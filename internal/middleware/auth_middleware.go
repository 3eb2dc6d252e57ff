package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/models"
	"github.com/greengrey/guesthouse-backend/pkg/jwt"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID    int64           `json:"user_id"`
	Email     string          `json:"email"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Role      models.UserRole `json:"role"`
	SessionID string          `json:"-"`
}

// Actor returns the minimal user needed for ownership checks
func (u UserContext) Actor() *models.User {
	return &models.User{
		ID:        u.UserID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
	}
}

// SessionValidator confirms a token's session has not been revoked
type SessionValidator interface {
	ValidateSession(ctx context.Context, claims *jwt.Claims) error
}

// Authenticator validates the session cookie or bearer token
type Authenticator struct {
	jwtService *jwt.Service
	sessions   SessionValidator
	cookieName string
	logger     *logrus.Logger
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(jwtService *jwt.Service, sessions SessionValidator, cookieName string, logger *logrus.Logger) *Authenticator {
	return &Authenticator{
		jwtService: jwtService,
		sessions:   sessions,
		cookieName: cookieName,
		logger:     logger,
	}
}

// tokenFromRequest reads the auth cookie first, then the Authorization header
func (a *Authenticator) tokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(a.cookieName); err == nil && cookie != "" {
		return cookie
	}

	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// RequireAuth rejects requests without a valid token and live session
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := a.logger.WithFields(logrus.Fields{
			"path": c.Request.URL.Path,
			"ip":   c.ClientIP(),
		})

		tokenString := a.tokenFromRequest(c)
		if tokenString == "" {
			logger.Debug("Auth failed: missing token")
			abortUnauthorized(c, "Authentication required", "MISSING_AUTH_TOKEN")
			return
		}

		claims, err := a.jwtService.ValidateToken(tokenString)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				logger.Debug("Auth failed: token expired")
				abortUnauthorized(c, "Session has expired. Please log in again.", "TOKEN_EXPIRED")
				return
			}
			logger.WithError(err).Warn("Auth failed: invalid token")
			abortUnauthorized(c, "Invalid authentication token", "INVALID_TOKEN")
			return
		}

		if err := a.sessions.ValidateSession(c.Request.Context(), claims); err != nil {
			logger.WithError(err).WithField("user_id", claims.UserID).Info("Auth failed: session revoked")
			abortUnauthorized(c, "Session is no longer valid. Please log in again.", "SESSION_REVOKED")
			return
		}

		c.Set(UserContextKey, userContextFromClaims(claims))
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid session is presented and
// otherwise lets the request through anonymously
func (a *Authenticator) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := a.tokenFromRequest(c)
		if tokenString == "" {
			c.Next()
			return
		}

		claims, err := a.jwtService.ValidateToken(tokenString)
		if err == nil && a.sessions.ValidateSession(c.Request.Context(), claims) == nil {
			c.Set(UserContextKey, userContextFromClaims(claims))
		}
		c.Next()
	}
}

func userContextFromClaims(claims *jwt.Claims) UserContext {
	return UserContext{
		UserID:    claims.UserID,
		Email:     claims.Email,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		Role:      models.UserRole(claims.Role),
		SessionID: claims.SessionID(),
	}
}

func abortUnauthorized(c *gin.Context, message, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthorized",
		"message": message,
		"code":    code,
	})
}

// RequireRole creates a middleware that checks if user has required role
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "User context not found. Auth middleware may not be applied.",
				"code":    "MISSING_USER_CONTEXT",
			})
			return
		}

		for _, role := range roles {
			if userCtx.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You don't have permission to access this resource",
			"code":    "INSUFFICIENT_PERMISSIONS",
		})
	}
}

// GetUserContext retrieves the user context from Gin context
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}

	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}

	return userCtx, true
}

// MustGetUserContext retrieves the user context or panics (use only after RequireAuth)
func MustGetUserContext(c *gin.Context) UserContext {
	userCtx, exists := GetUserContext(c)
	if !exists {
		panic("user context not found - ensure RequireAuth is applied")
	}
	return userCtx
}
