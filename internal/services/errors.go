package services

import (
	"errors"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

var (
	// ErrInvalidStay is returned for missing, malformed or zero-night date ranges
	ErrInvalidStay = models.ErrInvalidStay

	// ErrAmountMismatch is returned when the client total disagrees with nights * nightly price
	ErrAmountMismatch = errors.New("total amount does not match the room price for the stay")

	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrAccountDisabled      = errors.New("account is disabled")
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")
	ErrForbidden            = errors.New("not allowed to act on this booking")
	ErrInvalidGuest         = errors.New("guest email, first name and last name are required")
)
