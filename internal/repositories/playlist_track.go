package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/tunesync/internal/models"
)

// PlaylistTrackRepository maintains the ordered membership of tracks in playlists.
type PlaylistTrackRepository struct {
	db *sql.DB
}

// NewPlaylistTrackRepository creates a new PlaylistTrackRepository with the given database connection
func NewPlaylistTrackRepository(db *sql.DB) *PlaylistTrackRepository {
	return &PlaylistTrackRepository{db: db}
}

// ReplaceTracks rewrites the membership of playlist to exactly tracks, in order.
//
// Tracks are upserted on (service, service_id) first. Join rows are dropped and recreated
// with positions 0..n-1; a track repeated in the input keeps its first position.
// The playlist's track_count is set to the number of distinct tracks.
// Everything happens in one transaction.
func (r *PlaylistTrackRepository) ReplaceTracks(playlist *models.Playlist, tracks []models.Track) ([]models.Track, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seen := make(map[string]bool, len(tracks))
	stored := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if seen[t.ServiceID] {
			continue
		}
		seen[t.ServiceID] = true

		t.Service = playlist.Service
		if err := upsertTrack(tx, &t); err != nil {
			return nil, err
		}
		stored = append(stored, t)
	}

	if _, err := tx.Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ?`, playlist.ID); err != nil {
		return nil, fmt.Errorf("failed to clear playlist tracks: %w", err)
	}

	for position, t := range stored {
		if _, err := tx.Exec(
			`INSERT INTO playlist_tracks (playlist_id, track_id, position) VALUES (?, ?, ?)`,
			playlist.ID, t.ID, position,
		); err != nil {
			return nil, fmt.Errorf("failed to insert playlist track: %w", err)
		}
	}

	updatedAt := now()
	if _, err := tx.Exec(
		`UPDATE playlists SET track_count = ?, updated_at = ? WHERE id = ?`,
		len(stored), updatedAt, playlist.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to update track count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit playlist tracks: %w", err)
	}

	playlist.TrackCount = len(stored)
	playlist.UpdatedAt = updatedAt
	return stored, nil
}

// Tracks returns the tracks of playlistID ordered by position.
func (r *PlaylistTrackRepository) Tracks(playlistID string) ([]models.Track, error) {
	rows, err := r.db.Query(`
		SELECT t.id, t.service, t.service_id, t.name, t.artist, t.album, t.duration_ms,
			t.image_url, t.preview_url, t.external_url, t.created_at, t.updated_at
		FROM playlist_tracks pt
		JOIN tracks t ON t.id = pt.track_id
		WHERE pt.playlist_id = ?
		ORDER BY pt.position ASC
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()

	tracks := []models.Track{}
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, *track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

// Positions returns the join rows of playlistID ordered by position.
func (r *PlaylistTrackRepository) Positions(playlistID string) ([]models.PlaylistTrack, error) {
	rows, err := r.db.Query(
		`SELECT playlist_id, track_id, position FROM playlist_tracks WHERE playlist_id = ? ORDER BY position ASC`,
		playlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()

	var joins []models.PlaylistTrack
	for rows.Next() {
		var pt models.PlaylistTrack
		if err := rows.Scan(&pt.PlaylistID, &pt.TrackID, &pt.Position); err != nil {
			return nil, fmt.Errorf("failed to scan playlist track: %w", err)
		}
		joins = append(joins, pt)
	}
	return joins, rows.Err()
}
