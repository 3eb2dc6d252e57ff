package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/models"
	"github.com/greengrey/guesthouse-backend/pkg/validator"
)

// GuestDetails identifies the person making a booking
type GuestDetails struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IdentityService resolves bookers to user accounts
type IdentityService struct {
	users  GuestStore
	logger *logrus.Logger
}

// NewIdentityService creates a new identity service
func NewIdentityService(users GuestStore, logger *logrus.Logger) *IdentityService {
	return &IdentityService{users: users, logger: logger}
}

// ResolveOrCreateGuest returns the user owning the email, creating a
// passwordless guest when there is none. Existing users are returned
// unchanged. Concurrent calls for one new email converge on a single row:
// the insert is conflict-tolerant and the loser re-reads the winner's row.
func (s *IdentityService) ResolveOrCreateGuest(ctx context.Context, guest GuestDetails) (*models.User, error) {
	email := NormalizeEmail(guest.Email)
	firstName := strings.TrimSpace(guest.FirstName)
	lastName := strings.TrimSpace(guest.LastName)
	if email == "" || firstName == "" || lastName == "" {
		return nil, ErrInvalidGuest
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up guest: %w", err)
	}
	if user != nil {
		return user, nil
	}

	user, err = s.users.InsertGuestIfAbsent(ctx, email, firstName, lastName, validator.NormalizePhone(guest.Phone))
	if err != nil {
		return nil, fmt.Errorf("failed to create guest: %w", err)
	}
	if user != nil {
		s.logger.WithFields(logrus.Fields{
			"user_id": user.ID,
		}).Info("Created guest account")
		return user, nil
	}

	// Lost the insert race; the row now exists
	user, err = s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up guest: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("guest %s vanished after insert conflict", email)
	}
	return user, nil
}
