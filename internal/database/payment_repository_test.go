package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

func paymentRow(id int64, ref string, status models.PaymentStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(paymentRowColumns).AddRow(
		id, int64(42), ref, 500.0, "GHS", string(status), nil, now, now,
	)
}

func TestPaymentRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectQuery(`INSERT INTO payments`).
			WithArgs(int64(42), "GB_ABC_123456", 500.0, "GHS", "pending").
			WillReturnRows(paymentRow(9, "GB_ABC_123456", models.PaymentStatusPending))

		payment := &models.Payment{BookingID: 42, Reference: "GB_ABC_123456", Amount: 500}
		require.NoError(t, repo.Create(ctx, payment))
		assert.Equal(t, int64(9), payment.ID)
		assert.Equal(t, models.PaymentStatusPending, payment.Status)
		assert.Equal(t, "GHS", payment.Currency)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Reference (lib/pq)", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectQuery(`INSERT INTO payments`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "payments_reference_key"})

		err := repo.Create(ctx, &models.Payment{BookingID: 42, Reference: "GB_DUP", Amount: 500, Currency: "GHS"})
		assert.ErrorIs(t, err, ErrDuplicateReference)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Reference (pgx)", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectQuery(`INSERT INTO payments`).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "payments_reference_key"})

		err := repo.Create(ctx, &models.Payment{BookingID: 42, Reference: "GB_DUP", Amount: 500})
		assert.ErrorIs(t, err, ErrDuplicateReference)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Booking Already Has Active Payment", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectQuery(`INSERT INTO payments`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "payments_one_active_per_booking"})

		err := repo.Create(ctx, &models.Payment{BookingID: 42, Reference: "GB_NEW", Amount: 500})
		assert.ErrorIs(t, err, ErrActivePayment)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentRepository_SettleSuccess(t *testing.T) {
	ctx := context.Background()
	ref := "GB_ABC_123456"
	raw := models.JSONB{"status": "success"}

	t.Run("Pending Booking Becomes Paid", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM payments WHERE reference = \$1 FOR UPDATE`).
			WithArgs(ref).
			WillReturnRows(paymentRow(9, ref, models.PaymentStatusPending))
		mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \$1 FOR UPDATE`).
			WithArgs(int64(42)).
			WillReturnRows(bookingRow(42, models.BookingStatusPending))
		mock.ExpectQuery(`UPDATE bookings SET status`).
			WithArgs(int64(42), "confirmed").
			WillReturnRows(bookingRow(42, models.BookingStatusConfirmed))
		mock.ExpectQuery(`UPDATE bookings SET status`).
			WithArgs(int64(42), "paid").
			WillReturnRows(bookingRow(42, models.BookingStatusPaid))
		mock.ExpectQuery(`UPDATE payments`).
			WithArgs(int64(9), "success", `{"status":"success"}`).
			WillReturnRows(paymentRow(9, ref, models.PaymentStatusSuccess))
		mock.ExpectCommit()

		settlement, err := repo.SettleSuccess(ctx, ref, raw)
		require.NoError(t, err)
		assert.False(t, settlement.AlreadySettled)
		assert.Equal(t, models.PaymentStatusSuccess, settlement.Payment.Status)
		assert.Equal(t, models.BookingStatusPaid, settlement.Booking.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already Settled Is A No-op", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments WHERE reference`).WillReturnRows(paymentRow(9, ref, models.PaymentStatusSuccess))
		mock.ExpectQuery(`FROM bookings WHERE id`).WillReturnRows(bookingRow(42, models.BookingStatusPaid))
		mock.ExpectCommit()

		settlement, err := repo.SettleSuccess(ctx, ref, raw)
		require.NoError(t, err)
		assert.True(t, settlement.AlreadySettled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Late Verification After Failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments WHERE reference`).WillReturnRows(paymentRow(9, ref, models.PaymentStatusFailed))
		mock.ExpectQuery(`FROM bookings WHERE id`).WillReturnRows(bookingRow(42, models.BookingStatusPending))
		mock.ExpectQuery(`UPDATE bookings SET status`).WillReturnRows(bookingRow(42, models.BookingStatusConfirmed))
		mock.ExpectQuery(`UPDATE bookings SET status`).WillReturnRows(bookingRow(42, models.BookingStatusPaid))
		mock.ExpectQuery(`UPDATE payments`).WillReturnRows(paymentRow(9, ref, models.PaymentStatusSuccess))
		mock.ExpectCommit()

		settlement, err := repo.SettleSuccess(ctx, ref, raw)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusPaid, settlement.Booking.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Cancelled Booking Rolls Back", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments WHERE reference`).WillReturnRows(paymentRow(9, ref, models.PaymentStatusFailed))
		mock.ExpectQuery(`FROM bookings WHERE id`).WillReturnRows(bookingRow(42, models.BookingStatusCancelled))
		mock.ExpectRollback()

		settlement, err := repo.SettleSuccess(ctx, ref, raw)
		assert.Nil(t, settlement)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown Reference", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments WHERE reference`).WillReturnRows(sqlmock.NewRows(paymentRowColumns))
		mock.ExpectRollback()

		_, err := repo.SettleSuccess(ctx, "GB_NOPE", raw)
		assert.ErrorIs(t, err, ErrPaymentNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentRepository_MarkFailed(t *testing.T) {
	ctx := context.Background()
	ref := "GB_ABC_123456"

	t.Run("Pending Becomes Failed", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments WHERE reference`).WithArgs(ref).
			WillReturnRows(paymentRow(9, ref, models.PaymentStatusPending))
		mock.ExpectQuery(`UPDATE payments`).
			WithArgs(int64(9), "failed", nil).
			WillReturnRows(paymentRow(9, ref, models.PaymentStatusFailed))
		mock.ExpectCommit()

		payment, err := repo.MarkFailed(ctx, ref, nil)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusFailed, payment.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already Failed", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments WHERE reference`).WillReturnRows(paymentRow(9, ref, models.PaymentStatusFailed))
		mock.ExpectCommit()

		payment, err := repo.MarkFailed(ctx, ref, nil)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusFailed, payment.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success Is Never Downgraded", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments WHERE reference`).WillReturnRows(paymentRow(9, ref, models.PaymentStatusSuccess))
		mock.ExpectRollback()

		_, err := repo.MarkFailed(ctx, ref, nil)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentRepository_GetByReference(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)
	now := time.Now()

	mock.ExpectQuery(`FROM payments p\s+JOIN bookings b`).
		WithArgs("GB_ABC_123456").
		WillReturnRows(sqlmock.NewRows(append(append([]string{}, paymentRowColumns...), "user_id", "room_id", "booking_status", "email")).
			AddRow(int64(9), int64(42), "GB_ABC_123456", 500.0, "GHS", "pending", []byte(`{"status":"abandoned"}`), now, now,
				int64(7), int64(1), "pending", "kofi@example.com"))

	payment, err := repo.GetByReference(context.Background(), "GB_ABC_123456")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, payment.BookingStatus)
	assert.Equal(t, "kofi@example.com", payment.GuestEmail)
	assert.Equal(t, "abandoned", payment.GatewayResponse["status"])

	mock.ExpectQuery(`FROM payments p`).WillReturnRows(sqlmock.NewRows(paymentRowColumns))
	payment, err = repo.GetByReference(context.Background(), "GB_MISSING")
	assert.NoError(t, err)
	assert.Nil(t, payment)
	assert.NoError(t, mock.ExpectationsWereMet())
}
