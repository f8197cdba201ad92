package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// PlaylistRepository persists the playlist mirror, unique on (user, service, service_id).
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

const playlistColumns = `id, sequence, user_id, service, service_id, name, description, track_count, public, collaborative, owner_id, image_url, created_at, updated_at`

// Upsert inserts the playlist or refreshes name, description, counts and visibility of the existing row
// with the same (user, service, service_id). On return playlist carries the stored ID.
func (r *PlaylistRepository) Upsert(playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	sequence, err := NextSequence(r.db, "playlists")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if err := upsertPlaylist(r.db, playlist, sequence); err != nil {
		return err
	}

	stored, err := r.GetByServiceID(playlist.UserID, playlist.Service, playlist.ServiceID)
	if err != nil {
		return err
	}
	*playlist = *stored
	return nil
}

func upsertPlaylist(q querier, playlist *models.Playlist, sequence int) error {
	playlist.ID = shared.GenerateID()
	playlist.Sequence = sequence
	playlist.Stamp(now())

	_, err := q.Exec(`
		INSERT INTO playlists (`+playlistColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, service, service_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			track_count = excluded.track_count,
			public = excluded.public,
			collaborative = excluded.collaborative,
			owner_id = excluded.owner_id,
			image_url = excluded.image_url,
			updated_at = excluded.updated_at
	`,
		playlist.ID,
		playlist.Sequence,
		playlist.UserID,
		playlist.Service,
		playlist.ServiceID,
		playlist.Name,
		playlist.Description,
		playlist.TrackCount,
		playlist.Public,
		playlist.Collaborative,
		playlist.OwnerID,
		playlist.ImageURL,
		playlist.CreatedAt,
		playlist.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert playlist: %w", err)
	}
	return nil
}

// Get retrieves a playlist by local ID.
func (r *PlaylistRepository) Get(id string) (*models.Playlist, error) {
	return r.scanOne(r.db.QueryRow(`SELECT `+playlistColumns+` FROM playlists WHERE id = ?`, id))
}

// GetForUser retrieves a playlist by local ID only if userID owns it.
// A playlist owned by someone else is reported as not found.
func (r *PlaylistRepository) GetForUser(id, userID string) (*models.Playlist, error) {
	return r.scanOne(r.db.QueryRow(`SELECT `+playlistColumns+` FROM playlists WHERE id = ? AND user_id = ?`, id, userID))
}

// GetByServiceID retrieves a user's playlist by its provider identity.
func (r *PlaylistRepository) GetByServiceID(userID string, service models.ProviderType, serviceID string) (*models.Playlist, error) {
	return r.scanOne(r.db.QueryRow(
		`SELECT `+playlistColumns+` FROM playlists WHERE user_id = ? AND service = ? AND service_id = ?`,
		userID, service, serviceID,
	))
}

// Delete removes a playlist owned by userID along with its track memberships and syncs.
func (r *PlaylistRepository) Delete(id, userID string) error {
	result, err := r.db.Exec(`DELETE FROM playlists WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}

	return nil
}

// List retrieves all playlists matching the given criteria ("user_id", "service").
func (r *PlaylistRepository) List(criteria map[string]any) ([]*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE 1 = 1`
	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	if service, ok := criteria["service"].(models.ProviderType); ok && service != "" {
		query += " AND service = ?"
		args = append(args, service)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		playlist, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return playlists, nil
}

// scanOne scans a single row into a [models.Playlist]
func (r *PlaylistRepository) scanOne(row *sql.Row) (*models.Playlist, error) {
	playlist, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrPlaylistNotFound
	}
	return playlist, err
}

func scanPlaylist(s scanner) (*models.Playlist, error) {
	var p models.Playlist
	err := s.Scan(
		&p.ID,
		&p.Sequence,
		&p.UserID,
		&p.Service,
		&p.ServiceID,
		&p.Name,
		&p.Description,
		&p.TrackCount,
		&p.Public,
		&p.Collaborative,
		&p.OwnerID,
		&p.ImageURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}
	return &p, nil
}
