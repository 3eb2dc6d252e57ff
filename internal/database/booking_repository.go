package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

const bookingColumns = `id, user_id, room_id, check_in_date, check_out_date, total_nights,
	total_amount, special_requests, status, created_at, updated_at`

const bookingDetailsSelect = `
	SELECT b.id, b.user_id, b.room_id, b.check_in_date, b.check_out_date, b.total_nights,
		b.total_amount, b.special_requests, b.status, b.created_at, b.updated_at,
		r.name AS room_name, r.price_per_night,
		u.first_name, u.last_name, u.email,
		p.reference AS payment_reference, p.status AS payment_status
	FROM bookings b
	JOIN rooms r ON b.room_id = r.id
	JOIN users u ON b.user_id = u.id
	LEFT JOIN LATERAL (
		SELECT reference, status FROM payments
		WHERE booking_id = b.id
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	) p ON true`

// BookingRepository handles booking database operations
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// ============================================================================
// CREATION
// ============================================================================

// CreateIfAvailable inserts a pending booking only if the room exists, is
// bookable and has no active booking overlapping the stay. The room row is
// locked for the duration, so concurrent attempts on one room are serialized.
// validate runs against the locked room before the insert (price checks).
func (r *BookingRepository) CreateIfAvailable(ctx context.Context, booking *models.Booking, validate func(room *models.Room) error) error {
	return WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var room models.Room
		err := tx.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms WHERE id = $1 FOR UPDATE`, booking.RoomID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRoomNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock room: %w", err)
		}
		if !room.IsAvailable {
			return ErrRoomUnavailable
		}

		if validate != nil {
			if err := validate(&room); err != nil {
				return err
			}
		}

		var overlapping bool
		err = tx.GetContext(ctx, &overlapping, `
			SELECT EXISTS (
				SELECT 1 FROM bookings
				WHERE room_id = $1
				  AND status IN ('pending', 'confirmed')
				  AND check_in_date < $3
				  AND $2 < check_out_date
			)`,
			booking.RoomID, booking.CheckInDate.Format(models.DateLayout), booking.CheckOutDate.Format(models.DateLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to check overlapping bookings: %w", err)
		}
		if overlapping {
			return ErrRoomUnavailable
		}

		err = tx.GetContext(ctx, booking, `
			INSERT INTO bookings (
				user_id, room_id, check_in_date, check_out_date,
				total_nights, total_amount, special_requests, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+bookingColumns,
			booking.UserID, booking.RoomID,
			booking.CheckInDate.Format(models.DateLayout), booking.CheckOutDate.Format(models.DateLayout),
			booking.TotalNights, booking.TotalAmount, booking.SpecialRequests, models.BookingStatusPending,
		)
		if isExclusionViolation(err) {
			return ErrRoomUnavailable
		}
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		return nil
	})
}

// ============================================================================
// READS
// ============================================================================

// GetByID retrieves a booking by ID. Returns nil, nil when absent.
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetDetails retrieves a booking joined with room, guest and latest payment
func (r *BookingRepository) GetDetails(ctx context.Context, id int64) (*models.BookingDetails, error) {
	var details models.BookingDetails
	err := r.db.GetContext(ctx, &details, bookingDetailsSelect+` WHERE b.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking details: %w", err)
	}
	return &details, nil
}

// ListByUser returns a user's bookings, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID int64) ([]models.BookingDetails, error) {
	bookings := []models.BookingDetails{}
	err := r.db.SelectContext(ctx, &bookings, bookingDetailsSelect+` WHERE b.user_id = $1 ORDER BY b.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user bookings: %w", err)
	}
	return bookings, nil
}

// List returns bookings matching the filter, ordered by check-in date
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetails, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("b.status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, filter.From.Format(models.DateLayout))
		conditions = append(conditions, fmt.Sprintf("b.check_out_date > $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, filter.To.Format(models.DateLayout))
		conditions = append(conditions, fmt.Sprintf("b.check_in_date < $%d", len(args)))
	}

	query := bookingDetailsSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY b.check_in_date ASC, b.id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	bookings := []models.BookingDetails{}
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ListStalePending returns pending bookings created before cutoff, oldest first
func (r *BookingRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &bookings, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale pending bookings: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// STATUS CHANGES
// ============================================================================

// TransitionStatus moves a booking to next, enforcing the transition table.
// Illegal moves return a *models.TransitionError.
func (r *BookingRepository) TransitionStatus(ctx context.Context, id int64, next models.BookingStatus) (*models.Booking, error) {
	var booking *models.Booking
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := lockBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		booking, err = setBookingStatus(ctx, tx, current, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// Cancel moves a booking to cancelled and fails its pending payments.
// Returns the references of the payments that were failed.
func (r *BookingRepository) Cancel(ctx context.Context, id int64) (*models.Booking, []string, error) {
	var (
		booking *models.Booking
		refs    []string
	)
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := lockBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if booking, err = setBookingStatus(ctx, tx, current, models.BookingStatusCancelled); err != nil {
			return err
		}
		refs, err = failPendingPayments(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return booking, refs, nil
}

// ExpirePending cancels a booking only if it is still pending and was created
// before cutoff, failing its pending payments in the same transaction.
// Returns expired=false when the booking moved on since it was listed.
func (r *BookingRepository) ExpirePending(ctx context.Context, id int64, cutoff time.Time) (bool, []string, error) {
	var (
		expired bool
		refs    []string
	)
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := lockBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != models.BookingStatusPending || !current.CreatedAt.Before(cutoff) {
			return nil
		}
		if _, err := setBookingStatus(ctx, tx, current, models.BookingStatusCancelled); err != nil {
			return err
		}
		if refs, err = failPendingPayments(ctx, tx, id); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return expired, refs, nil
}

// ============================================================================
// TRANSACTION HELPERS (shared with PaymentRepository)
// ============================================================================

func lockBooking(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Booking, error) {
	var booking models.Booking
	err := tx.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &booking, nil
}

func setBookingStatus(ctx context.Context, tx *sqlx.Tx, current *models.Booking, next models.BookingStatus) (*models.Booking, error) {
	if err := current.Status.ValidateTransition(next); err != nil {
		return nil, err
	}

	var updated models.Booking
	err := tx.GetContext(ctx, &updated, `
		UPDATE bookings SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+bookingColumns,
		current.ID, next,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	return &updated, nil
}

func failPendingPayments(ctx context.Context, tx *sqlx.Tx, bookingID int64) ([]string, error) {
	refs := []string{}
	err := tx.SelectContext(ctx, &refs, `
		UPDATE payments SET status = 'failed', updated_at = NOW()
		WHERE booking_id = $1 AND status = 'pending'
		RETURNING reference`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fail pending payments: %w", err)
	}
	return refs, nil
}
