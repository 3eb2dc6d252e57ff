package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/models"
	"github.com/greengrey/guesthouse-backend/internal/services"
)

type stubLedger struct {
	current map[int64]models.BookingStatus
}

func (s *stubLedger) UpdateBookingStatus(_ context.Context, id int64, next models.BookingStatus) (*models.Booking, error) {
	from, ok := s.current[id]
	if !ok {
		return nil, database.ErrBookingNotFound
	}
	if err := from.ValidateTransition(next); err != nil {
		return nil, err
	}
	s.current[id] = next
	return &models.Booking{ID: id, Status: next}, nil
}

type stubLister struct {
	filters []models.BookingFilter
	rows    []models.BookingDetails
}

func (s *stubLister) List(_ context.Context, filter models.BookingFilter) ([]models.BookingDetails, error) {
	s.filters = append(s.filters, filter)
	return s.rows, nil
}

type stubSweeper struct {
	expired int
	err     error
}

func (s stubSweeper) RunOnce(context.Context) (int, error) {
	return s.expired, s.err
}

type stubScheduler struct {
	ran []string
}

func (s *stubScheduler) GetJobStatus() map[string]interface{} {
	return map[string]interface{}{"running": true, "job_count": 2}
}

func (s *stubScheduler) RunJobNow(name string) error {
	if name != services.JobReverifyPendingPayments && name != services.JobPurgeExpiredSessions {
		return fmt.Errorf("unknown cron job %q", name)
	}
	s.ran = append(s.ran, name)
	return nil
}

type stubEventReader struct{}

func (stubEventReader) ListByReference(_ context.Context, reference string) ([]models.PaymentEvent, error) {
	return []models.PaymentEvent{
		{ID: 1, PaymentReference: models.NewNullString(reference), EventType: models.PaymentEventCreated, EventSource: models.PaymentSourceBackend},
		{ID: 2, PaymentReference: models.NewNullString(reference), EventType: models.PaymentEventBookingPaid, EventSource: models.PaymentSourceWebhook},
	}, nil
}

type adminFixture struct {
	router    *gin.Engine
	ledger    *stubLedger
	lister    *stubLister
	scheduler *stubScheduler
}

func setupAdminRouter(sweeper stubSweeper) *adminFixture {
	logger := testLogger()
	f := &adminFixture{
		ledger: &stubLedger{current: map[int64]models.BookingStatus{
			1: models.BookingStatusPending,
			2: models.BookingStatusPaid,
		}},
		lister:    &stubLister{},
		scheduler: &stubScheduler{},
	}
	h := NewAdminHandler(f.ledger, services.NewExportService(f.lister, logger), sweeper, f.scheduler, stubEventReader{}, logger)

	r := gin.New()
	admin := r.Group("/api/admin", asUser(1, models.RoleAdmin))
	admin.PATCH("/bookings/:id/status", h.UpdateBookingStatus)
	admin.GET("/bookings/export", h.ExportBookings)
	admin.GET("/payments/:reference/events", h.PaymentEvents)
	admin.POST("/maintenance/expire-bookings", h.ExpireBookings)
	admin.GET("/cron/status", h.CronStatus)
	admin.POST("/cron/:job/run", h.RunCronJob)
	f.router = r
	return f
}

func TestAdminHandler_UpdateBookingStatus(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       interface{}
		wantStatus int
	}{
		{"Pending To Confirmed", "/api/admin/bookings/1/status", map[string]string{"status": "confirmed"}, http.StatusOK},
		{"Pending To Paid Skips Confirmed", "/api/admin/bookings/1/status", map[string]string{"status": "paid"}, http.StatusConflict},
		{"Paid Is Terminal", "/api/admin/bookings/2/status", map[string]string{"status": "cancelled"}, http.StatusConflict},
		{"Unknown Status", "/api/admin/bookings/1/status", map[string]string{"status": "archived"}, http.StatusBadRequest},
		{"Unknown Booking", "/api/admin/bookings/99/status", map[string]string{"status": "confirmed"}, http.StatusNotFound},
		{"Bad ID", "/api/admin/bookings/x/status", map[string]string{"status": "confirmed"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupAdminRouter(stubSweeper{})

			w := performRequest(f.router, http.MethodPatch, tt.path, tt.body, nil)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestAdminHandler_ExportBookings(t *testing.T) {
	t.Run("Workbook", func(t *testing.T) {
		f := setupAdminRouter(stubSweeper{})
		f.lister.rows = []models.BookingDetails{{
			Booking: models.Booking{
				ID:           5,
				CheckInDate:  time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
				CheckOutDate: time.Date(2024, 2, 17, 0, 0, 0, 0, time.UTC),
				TotalNights:  2,
				TotalAmount:  500,
				Status:       models.BookingStatusPaid,
			},
			RoomName:   "Garden Room",
			GuestEmail: "kofi@example.com",
		}}

		w := performRequest(f.router, http.MethodGet, "/api/admin/bookings/export?status=paid&from=2024-02-01&limit=50", nil, nil)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=\"bookings-")

		require.Len(t, f.lister.filters, 1)
		filter := f.lister.filters[0]
		require.NotNil(t, filter.Status)
		assert.Equal(t, models.BookingStatusPaid, *filter.Status)
		require.NotNil(t, filter.From)
		assert.Nil(t, filter.To)
		assert.Equal(t, 50, filter.Limit)

		book, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		defer book.Close()
		rows, err := book.GetRows("Bookings")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Contains(t, rows[1], "Garden Room")
		assert.Contains(t, rows[1], "kofi@example.com")
	})

	for _, query := range []string{"status=archived", "from=Feb", "limit=-1"} {
		t.Run("Bad Query "+query, func(t *testing.T) {
			f := setupAdminRouter(stubSweeper{})

			w := performRequest(f.router, http.MethodGet, "/api/admin/bookings/export?"+query, nil, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, f.lister.filters)
		})
	}
}

func TestAdminHandler_Maintenance(t *testing.T) {
	t.Run("Expire Bookings", func(t *testing.T) {
		f := setupAdminRouter(stubSweeper{expired: 3})

		w := performRequest(f.router, http.MethodPost, "/api/admin/maintenance/expire-bookings", nil, nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(3), decodeBody(t, w)["expired"])
	})

	t.Run("Expire Bookings Error", func(t *testing.T) {
		f := setupAdminRouter(stubSweeper{err: errors.New("db down")})

		w := performRequest(f.router, http.MethodPost, "/api/admin/maintenance/expire-bookings", nil, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("Cron Status", func(t *testing.T) {
		f := setupAdminRouter(stubSweeper{})

		w := performRequest(f.router, http.MethodGet, "/api/admin/cron/status", nil, nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decodeBody(t, w)["running"])
	})

	t.Run("Run Cron Job", func(t *testing.T) {
		f := setupAdminRouter(stubSweeper{})

		w := performRequest(f.router, http.MethodPost, "/api/admin/cron/reverify_pending_payments/run", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = performRequest(f.router, http.MethodPost, "/api/admin/cron/nope/run", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		assert.Equal(t, []string{services.JobReverifyPendingPayments}, f.scheduler.ran)
	})

	t.Run("Payment Events", func(t *testing.T) {
		f := setupAdminRouter(stubSweeper{})

		w := performRequest(f.router, http.MethodGet, "/api/admin/payments/GH-REF-0001/events", nil, nil)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "GH-REF-0001", body["reference"])
		assert.Len(t, body["events"], 2)
	})
}
