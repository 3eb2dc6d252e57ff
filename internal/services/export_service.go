package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

const bookingsSheet = "Bookings"

var bookingExportHeaders = []string{
	"ID", "Guest", "Email", "Room", "Check-in", "Check-out",
	"Nights", "Nightly Price", "Total", "Status", "Payment Reference", "Payment Status", "Created",
}

// BookingLister reads joined booking rows for staff views
type BookingLister interface {
	List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetails, error)
}

// ExportService renders booking listings as spreadsheets
type ExportService struct {
	bookings BookingLister
	logger   *logrus.Logger
}

// NewExportService creates a new export service
func NewExportService(bookings BookingLister, logger *logrus.Logger) *ExportService {
	return &ExportService{bookings: bookings, logger: logger}
}

// BookingsWorkbook builds an .xlsx workbook with one row per booking.
// The caller owns the returned file and must Close it.
func (s *ExportService) BookingsWorkbook(ctx context.Context, filter models.BookingFilter) (*excelize.File, error) {
	rows, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, title := range bookingExportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(bookingsSheet, cell, title)
		_ = f.SetCellStyle(bookingsSheet, cell, cell, headerStyle)
	}

	for i, b := range rows {
		values := []interface{}{
			b.ID,
			b.GuestFirstName + " " + b.GuestLastName,
			b.GuestEmail,
			b.RoomName,
			b.CheckInDate.Format(models.DateLayout),
			b.CheckOutDate.Format(models.DateLayout),
			b.TotalNights,
			b.PricePerNight,
			b.TotalAmount,
			string(b.Status),
			b.PaymentReference.String,
			b.PaymentStatus.String,
			b.CreatedAt.Format("2006-01-02 15:04"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(bookingsSheet, cell, v)
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 8)
	_ = f.SetColWidth(bookingsSheet, "B", "D", 24)
	_ = f.SetColWidth(bookingsSheet, "E", "J", 14)
	_ = f.SetColWidth(bookingsSheet, "K", "M", 24)
	_ = f.SetPanes(bookingsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	s.logger.WithField("rows", len(rows)).Info("Booking export generated")
	return f, nil
}
