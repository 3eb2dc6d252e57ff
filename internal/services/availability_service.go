package services

import (
	"context"
	"fmt"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

// AvailabilityService answers "which rooms are free for these dates"
type AvailabilityService struct {
	rooms RoomStore
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(rooms RoomStore) *AvailabilityService {
	return &AvailabilityService{rooms: rooms}
}

// AvailableRooms filters candidates down to rooms with no active booking
// intersecting stay. Inactive bookings and unavailable rooms are ignored.
// Callers must reject zero-night stays before calling.
func AvailableRooms(candidates []models.Room, bookings []models.Booking, stay models.StayRange) []models.Room {
	taken := make(map[int64]bool)
	for i := range bookings {
		b := &bookings[i]
		if b.Status.IsActive() && b.Stay().Overlaps(stay) {
			taken[b.RoomID] = true
		}
	}

	free := make([]models.Room, 0, len(candidates))
	for _, room := range candidates {
		if room.IsAvailable && !taken[room.ID] {
			free = append(free, room)
		}
	}
	return free
}

// CheckAvailability returns the rooms free for stay, cheapest first
func (s *AvailabilityService) CheckAvailability(ctx context.Context, stay models.StayRange) ([]models.Room, error) {
	if err := stay.Validate(); err != nil {
		return nil, err
	}

	rooms, err := s.rooms.ListFreeForStay(ctx, stay)
	if err != nil {
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	return rooms, nil
}

// IsRoomAvailable reports whether one room is free for stay.
// The answer is advisory; CreateBooking re-checks under a row lock.
func (s *AvailabilityService) IsRoomAvailable(ctx context.Context, roomID int64, stay models.StayRange) (bool, error) {
	rooms, err := s.CheckAvailability(ctx, stay)
	if err != nil {
		return false, err
	}
	for _, room := range rooms {
		if room.ID == roomID {
			return true, nil
		}
	}
	return false, nil
}
