package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomUnavailable    = errors.New("room is not available for the requested dates")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrDuplicateReference = errors.New("payment reference already exists")
	ErrActivePayment      = errors.New("booking already has an active payment")
	ErrEmailTaken         = errors.New("user with this email already exists")
)

// Postgres SQLSTATE codes
const (
	uniqueViolation    = "23505"
	exclusionViolation = "23P01"
)

// pgErrorInfo extracts the SQLSTATE and constraint name from either driver's error type
func pgErrorInfo(err error) (code, constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName, true
	}
	return "", "", false
}

func isUniqueViolation(err error, constraint string) bool {
	code, name, ok := pgErrorInfo(err)
	return ok && code == uniqueViolation && (constraint == "" || name == constraint)
}

func isExclusionViolation(err error) bool {
	code, _, ok := pgErrorInfo(err)
	return ok && code == exclusionViolation
}
