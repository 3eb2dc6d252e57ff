package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DateLayout is the wire format for check-in and check-out dates
const DateLayout = "2006-01-02"

// ErrInvalidStay is returned for malformed or empty date ranges
var ErrInvalidStay = errors.New("invalid stay dates")

// StayRange is a half-open [CheckIn, CheckOut) range of calendar dates
type StayRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// ParseStayRange parses two YYYY-MM-DD dates and rejects ranges shorter than one night
func ParseStayRange(checkIn, checkOut string) (StayRange, error) {
	in, err := time.Parse(DateLayout, checkIn)
	if err != nil {
		return StayRange{}, fmt.Errorf("%w: check-in %q", ErrInvalidStay, checkIn)
	}
	out, err := time.Parse(DateLayout, checkOut)
	if err != nil {
		return StayRange{}, fmt.Errorf("%w: check-out %q", ErrInvalidStay, checkOut)
	}
	stay := StayRange{CheckIn: in, CheckOut: out}
	if err := stay.Validate(); err != nil {
		return StayRange{}, err
	}
	return stay, nil
}

// Validate requires check-out to be strictly after check-in
func (s StayRange) Validate() error {
	if s.CheckIn.IsZero() || s.CheckOut.IsZero() {
		return fmt.Errorf("%w: dates are required", ErrInvalidStay)
	}
	if !s.CheckOut.After(s.CheckIn) {
		return fmt.Errorf("%w: check-out must be after check-in", ErrInvalidStay)
	}
	return nil
}

// Nights returns the number of nights in the stay
func (s StayRange) Nights() int {
	return CalculateNights(s.CheckIn, s.CheckOut)
}

// Overlaps reports whether two half-open ranges intersect: a < d AND c < b
func (s StayRange) Overlaps(other StayRange) bool {
	return s.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(s.CheckOut)
}

// CheckInString formats the check-in date for queries and responses
func (s StayRange) CheckInString() string {
	return s.CheckIn.Format(DateLayout)
}

// CheckOutString formats the check-out date for queries and responses
func (s StayRange) CheckOutString() string {
	return s.CheckOut.Format(DateLayout)
}

// CalculateNights returns ceil(checkOut - checkIn) in days. Equal dates give 0
// and reversed dates give a negative count; callers reject both.
func CalculateNights(checkIn, checkOut time.Time) int {
	days := checkOut.Sub(checkIn).Hours() / 24
	return int(math.Ceil(days))
}

// RoundMoney rounds an amount to two decimal places
func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// ToMinorUnits converts a major-unit amount (cedis) to minor units (pesewas)
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
