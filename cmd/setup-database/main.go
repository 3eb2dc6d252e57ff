package main

import (
	"context"
	_ "embed"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/config"
	"github.com/greengrey/guesthouse-backend/internal/database"
)

//go:embed seed.yaml
var defaultSeed []byte

func main() {
	var (
		dbURLFlag  string
		seedPath   string
		schemaOnly bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVar(&seedPath, "seed", "", "Path to a seed YAML file (defaults to the built-in sample data)")
	flag.BoolVar(&schemaOnly, "schema-only", false, "Create tables without inserting sample data")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		Driver:             os.Getenv("DATABASE_DRIVER"),
		MaxConnections:     5,
		MaxIdleConnections: 2,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger.Info("Applying schema...")
	if err := database.ApplySchema(ctx, db); err != nil {
		logger.Fatalf("Failed to apply schema: %v", err)
	}
	logger.WithField("statements", len(database.SchemaStatements())).Info("Schema is up to date")

	if schemaOnly {
		return
	}

	data := defaultSeed
	if seedPath != "" {
		data, err = os.ReadFile(seedPath)
		if err != nil {
			logger.Fatalf("Failed to read seed file: %v", err)
		}
	}

	seed, err := ParseSeed(data, os.Getenv)
	if err != nil {
		logger.Fatalf("Invalid seed data: %v", err)
	}

	users := database.NewUserRepository(db)
	for _, su := range seed.Users {
		user, err := su.ToUser(seedBcryptCost)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		if err := users.Upsert(ctx, user); err != nil {
			logger.Fatalf("Failed to seed user %s: %v", user.Email, err)
		}
		logger.WithFields(logrus.Fields{"email": user.Email, "role": user.Role}).Info("Seeded user")
	}

	rooms := database.NewRoomRepository(db)
	for _, sr := range seed.Rooms {
		room := sr.ToRoom()
		if err := rooms.Upsert(ctx, room); err != nil {
			logger.Fatalf("Failed to seed room %s: %v", room.Slug, err)
		}
		logger.WithFields(logrus.Fields{"slug": room.Slug, "price": room.PricePerNight}).Info("Seeded room")
	}

	logger.WithFields(logrus.Fields{
		"users": len(seed.Users),
		"rooms": len(seed.Rooms),
	}).Info("Database setup complete")
}
