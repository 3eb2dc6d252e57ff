package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/models"
	"github.com/greengrey/guesthouse-backend/internal/utils"
	"github.com/greengrey/guesthouse-backend/pkg/jwt"
	"github.com/greengrey/guesthouse-backend/pkg/validator"
)

// ErrSessionRevoked is returned when a token's session row is gone or expired
var ErrSessionRevoked = errors.New("session has been revoked")

// UserAccountStore is the slice of the user repository the auth flow needs
type UserAccountStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id int64) error
}

// SessionStore persists login sessions keyed by token jti
type SessionStore interface {
	Create(ctx context.Context, session *models.UserSession) error
	GetActive(ctx context.Context, id string) (*models.UserSession, error)
	Delete(ctx context.Context, id string) error
}

// LoginThrottle limits repeated failed logins
type LoginThrottle interface {
	CheckLogin(ctx context.Context, email string) error
	RecordFailedLogin(ctx context.Context, email string) error
	ResetLogin(ctx context.Context, email string) error
}

// SignupInput carries the fields of a new password account
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// LoginInput carries credentials plus the client fingerprint stored on the session
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResult is a signed token and the account it belongs to
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// AuthService handles signup, login and session checks
type AuthService struct {
	users      UserAccountStore
	sessions   SessionStore
	throttle   LoginThrottle
	jwtService *jwt.Service
	bcryptCost int
	logger     *logrus.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	users UserAccountStore,
	sessions SessionStore,
	throttle LoginThrottle,
	jwtService *jwt.Service,
	bcryptCost int,
	logger *logrus.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions,
		throttle:   throttle,
		jwtService: jwtService,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Signup creates a password account. An email already on file, including one
// created implicitly by a booking, returns database.ErrEmailTaken.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*models.User, error) {
	email := NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, database.ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: models.NewNullString(string(hash)),
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Phone:        models.NewNullString(validator.NormalizePhone(input.Phone)),
		Role:         models.RoleGuest,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.WithField("user_id", user.ID).Info("User signed up")
	return user, nil
}

// Login verifies credentials, opens a session and signs a token for it
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := NormalizeEmail(input.Email)

	if s.throttle != nil {
		if err := s.throttle.CheckLogin(ctx, email); err != nil {
			return nil, err
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.HasPassword() {
		s.recordFailure(ctx, email)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(input.Password)); err != nil {
		s.recordFailure(ctx, email)
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.jwtService.GenerateToken(user.ID, user.Email, user.FirstName, user.LastName, string(user.Role))
	if err != nil {
		return nil, err
	}

	device := utils.ParseUserAgent(input.UserAgent)
	session := &models.UserSession{
		ID:         claims.SessionID(),
		UserID:     user.ID,
		DeviceType: models.NewNullString(device.DeviceType),
		Browser:    models.NewNullString(device.Browser),
		OS:         models.NewNullString(device.OS),
		IPAddress:  models.NewNullString(input.IPAddress),
		UserAgent:  models.NewNullString(input.UserAgent),
		ExpiresAt:  claims.ExpiresAt.Time,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to update last login")
	}
	if s.throttle != nil {
		if err := s.throttle.ResetLogin(ctx, email); err != nil {
			s.logger.WithError(err).Warn("Failed to reset login attempts")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":     user.ID,
		"device_type": device.DeviceType,
	}).Info("User logged in")

	return &LoginResult{Token: token, ExpiresAt: session.ExpiresAt, User: user}, nil
}

func (s *AuthService) recordFailure(ctx context.Context, email string) {
	if s.throttle == nil {
		return
	}
	if err := s.throttle.RecordFailedLogin(ctx, email); err != nil {
		s.logger.WithError(err).Warn("Failed to record login attempt")
	}
}

// Logout deletes the session behind a token
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sessionID)
}

// ValidateSession reports ErrSessionRevoked when the token's session no longer exists
func (s *AuthService) ValidateSession(ctx context.Context, claims *jwt.Claims) error {
	session, err := s.sessions.GetActive(ctx, claims.SessionID())
	if err != nil {
		return err
	}
	if session == nil || session.UserID != claims.UserID {
		return ErrSessionRevoked
	}
	return nil
}

// CurrentUser loads the account behind a token
func (s *AuthService) CurrentUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrSessionRevoked
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	return user, nil
}
