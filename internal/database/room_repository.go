package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

const roomColumns = `id, slug, name, description, room_type, price_per_night, max_guests,
	amenities, images, is_available, created_at, updated_at`

// RoomRepository handles room database operations
type RoomRepository struct {
	db DB
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// ListAvailable returns rooms flagged available, cheapest first
func (r *RoomRepository) ListAvailable(ctx context.Context) ([]models.Room, error) {
	rooms := []models.Room{}
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE is_available = true ORDER BY price_per_night ASC, id ASC`

	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// ListFreeForStay returns available rooms with no active booking overlapping the stay.
// Overlap of [a,b) and [c,d) is a < d AND c < b.
func (r *RoomRepository) ListFreeForStay(ctx context.Context, stay models.StayRange) ([]models.Room, error) {
	rooms := []models.Room{}
	query := `
		SELECT ` + roomColumns + `
		FROM rooms r
		WHERE r.is_available = true
		  AND NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.room_id = r.id
			  AND b.status IN ('pending', 'confirmed')
			  AND b.check_in_date < $2
			  AND $1 < b.check_out_date
		  )
		ORDER BY r.price_per_night ASC, r.id ASC`

	if err := r.db.SelectContext(ctx, &rooms, query, stay.CheckInString(), stay.CheckOutString()); err != nil {
		return nil, fmt.Errorf("failed to list free rooms: %w", err)
	}
	return rooms, nil
}

// GetByID retrieves a room by ID. Returns nil, nil when absent.
func (r *RoomRepository) GetByID(ctx context.Context, id int64) (*models.Room, error) {
	var room models.Room
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`

	err := r.db.GetContext(ctx, &room, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &room, nil
}

// GetBySlug retrieves a room by slug. Returns nil, nil when absent.
func (r *RoomRepository) GetBySlug(ctx context.Context, slug string) (*models.Room, error) {
	var room models.Room
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE slug = $1`

	err := r.db.GetContext(ctx, &room, query, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room by slug: %w", err)
	}
	return &room, nil
}

// Upsert inserts or refreshes a room keyed by slug (used by the seed command)
func (r *RoomRepository) Upsert(ctx context.Context, room *models.Room) error {
	query := `
		INSERT INTO rooms (slug, name, description, room_type, price_per_night, max_guests, amenities, images, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			room_type = EXCLUDED.room_type,
			price_per_night = EXCLUDED.price_per_night,
			max_guests = EXCLUDED.max_guests,
			amenities = EXCLUDED.amenities,
			images = EXCLUDED.images,
			is_available = EXCLUDED.is_available,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		room.Slug, room.Name, room.Description, room.RoomType, room.PricePerNight,
		room.MaxGuests, room.Amenities, room.Images, room.IsAvailable,
	).Scan(&room.ID, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert room: %w", err)
	}
	return nil
}
