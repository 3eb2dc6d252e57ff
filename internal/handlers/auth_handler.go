package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/middleware"
	"github.com/greengrey/guesthouse-backend/internal/models"
	"github.com/greengrey/guesthouse-backend/internal/services"
	"github.com/greengrey/guesthouse-backend/internal/utils"
)

// AccountService is the account side of the auth flow
type AccountService interface {
	Signup(ctx context.Context, input services.SignupInput) (*models.User, error)
	Login(ctx context.Context, input services.LoginInput) (*services.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	CurrentUser(ctx context.Context, userID int64) (*models.User, error)
}

// CookieSettings controls the session cookie
type CookieSettings struct {
	Name   string
	Secure bool
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	accounts AccountService
	cookie   CookieSettings
	logger   *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts AccountService, cookie CookieSettings, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		cookie:   cookie,
		logger:   logger,
	}
}

// SignupRequest is the signup form body
type SignupRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6,max=72"`
	FirstName string `json:"firstName" binding:"required,min=2,max=100"`
	LastName  string `json:"lastName" binding:"required,min=2,max=100"`
	Phone     string `json:"phone" binding:"omitempty,max=32,phone"`
}

// LoginRequest is the login form body
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Signup handles POST /api/auth/signup
// @Summary Create a password account
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Signup form"
// @Success 201 {object} map[string]interface{} "Account created"
// @Failure 409 {object} map[string]interface{} "Email already registered"
// @Router /auth/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.accounts.Signup(c.Request.Context(), services.SignupInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "An account with this email already exists"})
			return
		}
		h.logger.WithError(err).Error("Signup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user":    user,
	})
}

// Login handles POST /api/auth/login and sets the session cookie
// @Summary Log in with email and password
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} map[string]interface{} "Logged in"
// @Failure 401 {object} map[string]interface{} "Invalid credentials"
// @Failure 429 {object} map[string]interface{} "Too many attempts"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.accounts.Login(c.Request.Context(), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: utils.ClientIP(c),
		UserAgent: utils.GetUserAgent(c),
	})
	if err != nil {
		var rateErr *services.RateLimitError
		switch {
		case errors.As(err, &rateErr):
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       rateErr.Message,
				"retry_after": rateErr.RetryAfter.UTC().Format(time.RFC3339),
			})
		case errors.Is(err, services.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		case errors.Is(err, services.ErrAccountDisabled):
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		default:
			h.logger.WithError(err).Error("Login failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log in"})
		}
		return
	}

	maxAge := int(time.Until(result.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, result.Token, maxAge, "/", "", h.cookie.Secure, true)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    result.User,
	})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	if err := h.accounts.Logout(c.Request.Context(), userCtx.SessionID); err != nil {
		h.logger.WithError(err).WithField("user_id", userCtx.UserID).Error("Failed to delete session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log out"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	user, err := h.accounts.CurrentUser(c.Request.Context(), userCtx.UserID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionRevoked):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found", "code": "SESSION_REVOKED"})
		case errors.Is(err, services.ErrAccountDisabled):
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		default:
			h.logger.WithError(err).WithField("user_id", userCtx.UserID).Error("Failed to load user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}
