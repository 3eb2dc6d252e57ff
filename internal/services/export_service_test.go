package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

type stubLister struct {
	rows   []models.BookingDetails
	err    error
	filter models.BookingFilter
}

func (s *stubLister) List(_ context.Context, filter models.BookingFilter) ([]models.BookingDetails, error) {
	s.filter = filter
	return s.rows, s.err
}

func TestExportService_BookingsWorkbook(t *testing.T) {
	stay := mustStay(t, "2024-02-15", "2024-02-17")
	row := models.BookingDetails{
		Booking: models.Booking{
			ID:           42,
			CheckInDate:  stay.CheckIn,
			CheckOutDate: stay.CheckOut,
			TotalNights:  2,
			TotalAmount:  500,
			Status:       models.BookingStatusPaid,
			CreatedAt:    time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC),
		},
		RoomName:         "Garden Suite",
		PricePerNight:    250,
		GuestFirstName:   "Ama",
		GuestLastName:    "Mensah",
		GuestEmail:       "ama@example.com",
		PaymentReference: models.NewNullString("GB_LS1_ABC123"),
		PaymentStatus:    models.NewNullString("success"),
	}
	lister := &stubLister{rows: []models.BookingDetails{row}}
	service := NewExportService(lister, quietLogger())

	status := models.BookingStatusPaid
	f, err := service.BookingsWorkbook(context.Background(), models.BookingFilter{Status: &status})
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, &status, lister.filter.Status)
	assert.Equal(t, []string{bookingsSheet}, f.GetSheetList())

	rows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, bookingExportHeaders, rows[0])
	assert.Equal(t, "42", rows[1][0])
	assert.Equal(t, "Ama Mensah", rows[1][1])
	assert.Equal(t, "Garden Suite", rows[1][3])
	assert.Equal(t, "2024-02-15", rows[1][4])
	assert.Equal(t, "500", rows[1][8])
	assert.Equal(t, "paid", rows[1][9])
	assert.Equal(t, "GB_LS1_ABC123", rows[1][10])
}

func TestExportService_ListError(t *testing.T) {
	service := NewExportService(&stubLister{err: errors.New("timeout")}, quietLogger())

	_, err := service.BookingsWorkbook(context.Background(), models.BookingFilter{})
	assert.EqualError(t, err, "timeout")
}
