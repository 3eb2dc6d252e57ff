package models

import "time"

// Room is a bookable unit. Read-only from the booking workflow's perspective.
type Room struct {
	ID            int64       `json:"id" db:"id"`
	Slug          string      `json:"slug" db:"slug"`
	Name          string      `json:"name" db:"name"`
	Description   NullString  `json:"description,omitempty" db:"description"`
	RoomType      string      `json:"room_type" db:"room_type"`
	PricePerNight float64     `json:"price_per_night" db:"price_per_night"`
	MaxGuests     int         `json:"max_guests" db:"max_guests"`
	Amenities     StringArray `json:"amenities" db:"amenities"`
	Images        StringArray `json:"images" db:"images"`
	IsAvailable   bool        `json:"is_available" db:"is_available"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// PriceFor returns the amount owed for the given number of nights
func (r *Room) PriceFor(nights int) float64 {
	return RoundMoney(r.PricePerNight * float64(nights))
}
