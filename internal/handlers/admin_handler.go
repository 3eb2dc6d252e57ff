package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/middleware"
	"github.com/greengrey/guesthouse-backend/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// BookingStatusUpdater applies guarded status transitions
type BookingStatusUpdater interface {
	UpdateBookingStatus(ctx context.Context, id int64, next models.BookingStatus) (*models.Booking, error)
}

// BookingExporter renders bookings as a spreadsheet
type BookingExporter interface {
	BookingsWorkbook(ctx context.Context, filter models.BookingFilter) (*excelize.File, error)
}

// PendingSweeper expires stale pending bookings on demand
type PendingSweeper interface {
	RunOnce(ctx context.Context) (int, error)
}

// JobScheduler exposes the cron jobs
type JobScheduler interface {
	GetJobStatus() map[string]interface{}
	RunJobNow(name string) error
}

// PaymentEventReader reads the payment audit trail
type PaymentEventReader interface {
	ListByReference(ctx context.Context, reference string) ([]models.PaymentEvent, error)
}

// AdminHandler handles staff and admin operations
type AdminHandler struct {
	ledger   BookingStatusUpdater
	exporter BookingExporter
	sweeper  PendingSweeper
	cron     JobScheduler
	events   PaymentEventReader
	logger   *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	ledger BookingStatusUpdater,
	exporter BookingExporter,
	sweeper PendingSweeper,
	cron JobScheduler,
	events PaymentEventReader,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		ledger:   ledger,
		exporter: exporter,
		sweeper:  sweeper,
		cron:     cron,
		events:   events,
		logger:   logger,
	}
}

// UpdateStatusRequest moves a booking to a new status
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending confirmed paid cancelled"`
}

// ============================================================================
// BOOKINGS
// ============================================================================

// UpdateBookingStatus handles PATCH /api/admin/bookings/:id/status
// @Summary Move a booking along its status table
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path int true "Booking ID"
// @Param request body UpdateStatusRequest true "Target status"
// @Success 200 {object} map[string]interface{} "Updated booking"
// @Failure 409 {object} map[string]interface{} "Illegal transition"
// @Router /admin/bookings/{id}/status [patch]
func (h *AdminHandler) UpdateBookingStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	booking, err := h.ledger.UpdateBookingStatus(c.Request.Context(), id, models.BookingStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, database.ErrBookingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		case errors.Is(err, models.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.WithError(err).WithField("booking_id", id).Error("Failed to update booking status")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update booking status"})
		}
		return
	}

	actor := middleware.MustGetUserContext(c)
	h.logger.WithFields(logrus.Fields{
		"booking_id": id,
		"status":     booking.Status,
		"actor_id":   actor.UserID,
	}).Info("Booking status changed by staff")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"booking": booking,
	})
}

// ExportBookings handles GET /api/admin/bookings/export?status=&from=&to=&limit=
func (h *AdminHandler) ExportBookings(c *gin.Context) {
	filter, err := bookingFilterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := h.exporter.BookingsWorkbook(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build bookings export")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export bookings"})
		return
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		h.logger.WithError(err).Error("Failed to write bookings export")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export bookings"})
		return
	}

	filename := fmt.Sprintf("bookings-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func bookingFilterFromQuery(c *gin.Context) (models.BookingFilter, error) {
	var filter models.BookingFilter

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := models.ParseBookingStatus(raw)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid from date %q", raw)
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid to date %q", raw)
		}
		filter.To = &to
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}
		filter.Limit = limit
	}
	return filter, nil
}

// PaymentEvents handles GET /api/admin/payments/:reference/events
func (h *AdminHandler) PaymentEvents(c *gin.Context) {
	reference := c.Param("reference")

	events, err := h.events.ListByReference(c.Request.Context(), reference)
	if err != nil {
		h.logger.WithError(err).WithField("reference", reference).Error("Failed to list payment events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payment events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reference": reference,
		"events":    events,
	})
}

// ============================================================================
// MAINTENANCE
// ============================================================================

// ExpireBookings handles POST /api/admin/maintenance/expire-bookings
func (h *AdminHandler) ExpireBookings(c *gin.Context) {
	expired, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Manual expiry sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to expire bookings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"expired": expired,
	})
}

// CronStatus handles GET /api/admin/cron/status
func (h *AdminHandler) CronStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cron.GetJobStatus())
}

// RunCronJob handles POST /api/admin/cron/:job/run
func (h *AdminHandler) RunCronJob(c *gin.Context) {
	job := c.Param("job")
	if err := h.cron.RunJobNow(job); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
}
