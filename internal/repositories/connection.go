package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// ConnectionRepository persists [models.ServiceConnection] rows, at most one per (user, service).
type ConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository creates a new [ConnectionRepository] with the given database connection
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `id, user_id, service, access_token, refresh_token, expires_at, service_user_id, created_at, updated_at`

// Upsert creates the connection for (user, service) or overwrites its tokens, expiry and provider user id.
//
// The write is a single statement, so a failure leaves any previous row untouched.
// A missing refresh token keeps the stored one.
func (r *ConnectionRepository) Upsert(conn *models.ServiceConnection) error {
	if err := conn.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	if conn.ID == "" {
		conn.ID = shared.GenerateID()
	}
	conn.Stamp(now())

	_, err := r.db.Exec(`
		INSERT INTO service_connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, service) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = COALESCE(excluded.refresh_token, service_connections.refresh_token),
			expires_at = excluded.expires_at,
			service_user_id = excluded.service_user_id,
			updated_at = excluded.updated_at
	`,
		conn.ID,
		conn.UserID,
		conn.Service,
		conn.AccessToken,
		nullString(conn.RefreshToken),
		nullTime(conn.ExpiresAt),
		conn.ServiceUserID,
		conn.CreatedAt,
		conn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}

	stored, err := r.Get(conn.UserID, conn.Service)
	if err != nil {
		return err
	}
	*conn = *stored

	return nil
}

// Get returns the connection for (userID, service) or [shared.ErrNotConnected].
func (r *ConnectionRepository) Get(userID string, service models.ProviderType) (*models.ServiceConnection, error) {
	row := r.db.QueryRow(
		`SELECT `+connectionColumns+` FROM service_connections WHERE user_id = ? AND service = ?`,
		userID, service,
	)

	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotConnected, service)
	}
	return conn, err
}

// UpdateTokens persists refreshed credentials for an existing connection.
func (r *ConnectionRepository) UpdateTokens(conn *models.ServiceConnection) error {
	conn.UpdatedAt = now()

	result, err := r.db.Exec(`
		UPDATE service_connections
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
		WHERE user_id = ? AND service = ?
	`,
		conn.AccessToken,
		nullString(conn.RefreshToken),
		nullTime(conn.ExpiresAt),
		conn.UpdatedAt,
		conn.UserID,
		conn.Service,
	)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrNotConnected, conn.Service)
	}
	return nil
}

// Delete removes the connection for (userID, service). Deleting a missing connection is not an error.
func (r *ConnectionRepository) Delete(userID string, service models.ProviderType) error {
	if _, err := r.db.Exec(`DELETE FROM service_connections WHERE user_id = ? AND service = ?`, userID, service); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

// ListByUser returns every connection of a user ordered by service.
func (r *ConnectionRepository) ListByUser(userID string) ([]*models.ServiceConnection, error) {
	rows, err := r.db.Query(
		`SELECT `+connectionColumns+` FROM service_connections WHERE user_id = ? ORDER BY service ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.ServiceConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return conns, nil
}

func scanConnection(s scanner) (*models.ServiceConnection, error) {
	var (
		conn      models.ServiceConnection
		refresh   sql.NullString
		expiresAt sql.NullTime
	)

	err := s.Scan(
		&conn.ID,
		&conn.UserID,
		&conn.Service,
		&conn.AccessToken,
		&refresh,
		&expiresAt,
		&conn.ServiceUserID,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan connection: %w", err)
	}

	conn.RefreshToken = refresh.String
	conn.ExpiresAt = timePtr(expiresAt)
	return &conn, nil
}
