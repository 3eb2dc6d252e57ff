package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gosimple/slug"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

const (
	defaultSeedPassword = "password123"
	seedBcryptCost      = 12
)

// Seed is the sample data loaded by setup-database
type Seed struct {
	Users []SeedUser `yaml:"users"`
	Rooms []SeedRoom `yaml:"rooms"`
}

// SeedUser is one account; Password is hashed before insert
type SeedUser struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Phone     string `yaml:"phone"`
	Role      string `yaml:"role"`
}

// SeedRoom is one room; the slug is derived from Name when omitted
type SeedRoom struct {
	Slug          string   `yaml:"slug"`
	Name          string   `yaml:"name"`
	RoomType      string   `yaml:"room_type"`
	Description   string   `yaml:"description"`
	PricePerNight float64  `yaml:"price_per_night"`
	MaxGuests     int      `yaml:"max_guests"`
	Amenities     []string `yaml:"amenities"`
	Images        []string `yaml:"images"`
	Unavailable   bool     `yaml:"unavailable"`
}

// ParseSeed expands ${VAR} references with lookup and decodes the YAML.
// SEED_PASSWORD falls back to the development default.
func ParseSeed(data []byte, lookup func(string) string) (*Seed, error) {
	expanded := os.Expand(string(data), func(key string) string {
		value := lookup(key)
		if value == "" && key == "SEED_PASSWORD" {
			return defaultSeedPassword
		}
		return value
	})

	var seed Seed
	if err := yaml.Unmarshal([]byte(expanded), &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := seed.validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Seed) validate() error {
	seen := make(map[string]bool)
	for i, u := range s.Users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		if email == "" || u.Password == "" {
			return fmt.Errorf("user %d: email and password are required", i+1)
		}
		if !models.UserRole(u.Role).IsValid() {
			return fmt.Errorf("user %s: unknown role %q", email, u.Role)
		}
		if seen[email] {
			return fmt.Errorf("user %s: duplicate email", email)
		}
		seen[email] = true
	}
	for i, r := range s.Rooms {
		if r.Name == "" || r.PricePerNight <= 0 {
			return fmt.Errorf("room %d: name and a positive price are required", i+1)
		}
	}
	return nil
}

// ToUser hashes the password and builds the row to upsert
func (u SeedUser) ToUser(cost int) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password for %s: %w", u.Email, err)
	}
	return &models.User{
		Email:        strings.ToLower(strings.TrimSpace(u.Email)),
		PasswordHash: models.NewNullString(string(hash)),
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Phone:        models.NewNullString(u.Phone),
		Role:         models.UserRole(u.Role),
		IsVerified:   true,
		IsActive:     true,
	}, nil
}

// ToRoom builds the row to upsert
func (r SeedRoom) ToRoom() *models.Room {
	roomSlug := r.Slug
	if roomSlug == "" {
		roomSlug = slug.Make(r.Name)
	}
	return &models.Room{
		Slug:          roomSlug,
		Name:          r.Name,
		Description:   models.NewNullString(r.Description),
		RoomType:      r.RoomType,
		PricePerNight: models.RoundMoney(r.PricePerNight),
		MaxGuests:     r.MaxGuests,
		Amenities:     models.StringArray(r.Amenities),
		Images:        models.StringArray(r.Images),
		IsAvailable:   !r.Unavailable,
	}
}
