package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// TrackRepository persists the shared track mirror, unique on (service, service_id).
//
// Tracks are not scoped to a user, so two users pulling the same provider track converge on one row
// and the last writer's metadata wins.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

const trackColumns = `id, service, service_id, name, artist, album, duration_ms, image_url, preview_url, external_url, created_at, updated_at`

// Upsert inserts the track or refreshes the metadata of the row with the same provider identity.
func (r *TrackRepository) Upsert(track *models.Track) error {
	return upsertTrack(r.db, track)
}

func upsertTrack(q querier, track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	track.ID = shared.GenerateID()
	track.Stamp(now())

	_, err := q.Exec(`
		INSERT INTO tracks (`+trackColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (service, service_id) DO UPDATE SET
			name = excluded.name,
			artist = excluded.artist,
			album = excluded.album,
			duration_ms = excluded.duration_ms,
			image_url = excluded.image_url,
			preview_url = excluded.preview_url,
			external_url = excluded.external_url,
			updated_at = excluded.updated_at
	`,
		track.ID,
		track.Service,
		track.ServiceID,
		track.Name,
		track.Artist,
		track.Album,
		track.DurationMs,
		track.ImageURL,
		track.PreviewURL,
		track.ExternalURL,
		track.CreatedAt,
		track.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert track: %w", err)
	}

	if err := q.QueryRow(
		`SELECT id, created_at FROM tracks WHERE service = ? AND service_id = ?`,
		track.Service, track.ServiceID,
	).Scan(&track.ID, &track.CreatedAt); err != nil {
		return fmt.Errorf("failed to read upserted track: %w", err)
	}
	return nil
}

// Get retrieves a track by local ID.
func (r *TrackRepository) Get(id string) (*models.Track, error) {
	return r.scanOne(r.db.QueryRow(`SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id))
}

// GetByServiceID retrieves a track by its provider identity.
func (r *TrackRepository) GetByServiceID(service models.ProviderType, serviceID string) (*models.Track, error) {
	return r.scanOne(r.db.QueryRow(
		`SELECT `+trackColumns+` FROM tracks WHERE service = ? AND service_id = ?`,
		service, serviceID,
	))
}

func (r *TrackRepository) scanOne(row *sql.Row) (*models.Track, error) {
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrTrackNotFound
	}
	return track, err
}

func scanTrack(s scanner) (*models.Track, error) {
	var t models.Track
	err := s.Scan(
		&t.ID,
		&t.Service,
		&t.ServiceID,
		&t.Name,
		&t.Artist,
		&t.Album,
		&t.DurationMs,
		&t.ImageURL,
		&t.PreviewURL,
		&t.ExternalURL,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}
	return &t, nil
}
