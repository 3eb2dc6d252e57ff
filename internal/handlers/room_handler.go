package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

// RoomCatalog reads rooms for the public listing
type RoomCatalog interface {
	GetByID(ctx context.Context, id int64) (*models.Room, error)
	GetBySlug(ctx context.Context, slug string) (*models.Room, error)
	ListAvailable(ctx context.Context) ([]models.Room, error)
}

// AvailabilityChecker answers which rooms are free for a stay
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, stay models.StayRange) ([]models.Room, error)
}

// RoomHandler handles room listing and availability
type RoomHandler struct {
	rooms        RoomCatalog
	availability AvailabilityChecker
	logger       *logrus.Logger
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms RoomCatalog, availability AvailabilityChecker, logger *logrus.Logger) *RoomHandler {
	return &RoomHandler{
		rooms:        rooms,
		availability: availability,
		logger:       logger,
	}
}

// ListRooms handles GET /api/rooms
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.rooms.ListAvailable(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list rooms")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rooms"})
		return
	}
	respondRooms(c, rooms)
}

// AvailableRooms handles GET /api/rooms/available?checkIn=YYYY-MM-DD&checkOut=YYYY-MM-DD
// @Summary Rooms free for a stay, cheapest first
// @Tags Rooms
// @Produce json
// @Param checkIn query string true "Check-in date (YYYY-MM-DD)"
// @Param checkOut query string true "Check-out date (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{} "Available rooms"
// @Failure 400 {object} map[string]interface{} "Invalid dates"
// @Router /rooms/available [get]
func (h *RoomHandler) AvailableRooms(c *gin.Context) {
	stay, err := models.ParseStayRange(c.Query("checkIn"), c.Query("checkOut"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rooms, err := h.availability.CheckAvailability(c.Request.Context(), stay)
	if err != nil {
		if errors.Is(err, models.ErrInvalidStay) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to check availability")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check availability"})
		return
	}
	respondRooms(c, rooms)
}

// GetRoom handles GET /api/rooms/:idOrSlug
func (h *RoomHandler) GetRoom(c *gin.Context) {
	key := c.Param("idOrSlug")

	var (
		room *models.Room
		err  error
	)
	if id, convErr := strconv.ParseInt(key, 10, 64); convErr == nil {
		room, err = h.rooms.GetByID(c.Request.Context(), id)
	} else {
		room, err = h.rooms.GetBySlug(c.Request.Context(), key)
	}
	if err != nil {
		h.logger.WithError(err).WithField("room", key).Error("Failed to load room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load room"})
		return
	}
	if room == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room})
}

func respondRooms(c *gin.Context, rooms []models.Room) {
	if rooms == nil {
		rooms = []models.Room{}
	}
	c.JSON(http.StatusOK, gin.H{
		"rooms": rooms,
		"count": len(rooms),
	})
}
