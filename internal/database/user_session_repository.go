package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

// UserSessionRepository handles login session operations
type UserSessionRepository struct {
	db DB
}

// NewUserSessionRepository creates a new user session repository
func NewUserSessionRepository(db DB) *UserSessionRepository {
	return &UserSessionRepository{db: db}
}

// Create records a new session
func (r *UserSessionRepository) Create(ctx context.Context, session *models.UserSession) error {
	query := `
		INSERT INTO user_sessions (id, user_id, device_type, browser, os, ip_address, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		session.ID, session.UserID, session.DeviceType, session.Browser, session.OS,
		session.IPAddress, session.UserAgent, session.ExpiresAt,
	).Scan(&session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetActive returns an unexpired session. Returns nil, nil when absent or expired.
func (r *UserSessionRepository) GetActive(ctx context.Context, id string) (*models.UserSession, error) {
	var session models.UserSession
	query := `
		SELECT id, user_id, device_type, browser, os, ip_address, user_agent, expires_at, created_at
		FROM user_sessions
		WHERE id = $1 AND expires_at > NOW()`

	err := r.db.GetContext(ctx, &session, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// Delete removes a session (logout)
func (r *UserSessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired purges expired sessions and returns how many were removed
func (r *UserSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
