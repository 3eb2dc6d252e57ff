package services

import (
	"context"
	"time"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

// The workflow depends on these narrow views of the repositories in
// internal/database so tests can swap in in-memory fakes.

// RoomStore reads rooms
type RoomStore interface {
	GetByID(ctx context.Context, id int64) (*models.Room, error)
	GetBySlug(ctx context.Context, slug string) (*models.Room, error)
	ListAvailable(ctx context.Context) ([]models.Room, error)
	ListFreeForStay(ctx context.Context, stay models.StayRange) ([]models.Room, error)
}

// GuestStore finds or inserts guest accounts by email
type GuestStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	InsertGuestIfAbsent(ctx context.Context, email, firstName, lastName, phone string) (*models.User, error)
}

// BookingStore owns the bookings table
type BookingStore interface {
	CreateIfAvailable(ctx context.Context, booking *models.Booking, validate func(room *models.Room) error) error
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	TransitionStatus(ctx context.Context, id int64, next models.BookingStatus) (*models.Booking, error)
	Cancel(ctx context.Context, id int64) (*models.Booking, []string, error)
}

// PaymentStore owns the payments table
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByReference(ctx context.Context, reference string) (*models.PaymentWithBooking, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
	MarkFailed(ctx context.Context, reference string, gatewayResponse models.JSONB) (*models.Payment, error)
	SettleSuccess(ctx context.Context, reference string, gatewayResponse models.JSONB) (*models.Settlement, error)
}

// PaymentEventLog records the payment audit trail
type PaymentEventLog interface {
	Log(ctx context.Context, event *models.PaymentEvent) error
}
