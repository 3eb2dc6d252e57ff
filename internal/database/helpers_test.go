package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	sqlxDB := sqlx.NewDb(mockDB, "sqlmock")
	return &PostgresDB{DB: sqlxDB}, mock
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

var userRowColumns = []string{
	"id", "email", "password_hash", "first_name", "last_name", "phone", "role",
	"is_verified", "is_active", "last_login", "created_at", "updated_at",
}

var bookingRowColumns = []string{
	"id", "user_id", "room_id", "check_in_date", "check_out_date", "total_nights",
	"total_amount", "special_requests", "status", "created_at", "updated_at",
}

var paymentRowColumns = []string{
	"id", "booking_id", "reference", "amount", "currency", "status",
	"gateway_response", "created_at", "updated_at",
}
