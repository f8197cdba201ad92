package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/mattn/go-sqlite3"
)

// SyncRepository persists [models.PlaylistSync] edges.
type SyncRepository struct {
	db *sql.DB
}

// NewSyncRepository creates a new SyncRepository with the given database connection
func NewSyncRepository(db *sql.DB) *SyncRepository {
	return &SyncRepository{db: db}
}

const syncColumns = `id, sequence, user_id, source_id, target_id, name, status, last_synced_at, error_message, created_at, updated_at`

// Create inserts a new sync edge.
//
// A second edge for the same (user, source, target) returns [shared.ErrAlreadyExists];
// a self-referencing edge returns [shared.ErrInvalidArgument].
func (r *SyncRepository) Create(sync *models.PlaylistSync) error {
	if err := sync.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	sequence, err := NextSequence(r.db, "playlist_syncs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	sync.ID = shared.GenerateID()
	sync.Sequence = sequence
	sync.Stamp(now())

	_, err = r.db.Exec(
		`INSERT INTO playlist_syncs (`+syncColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sync.ID,
		sync.Sequence,
		sync.UserID,
		sync.SourceID,
		sync.TargetID,
		sync.Name,
		sync.Status,
		nullTime(sync.LastSyncedAt),
		errorMessage(sync.ErrorMessage),
		sync.CreatedAt,
		sync.UpdatedAt,
	)
	switch {
	case isConstraint(err, sqlite3.ErrConstraintUnique):
		return fmt.Errorf("%w: sync from %s to %s", shared.ErrAlreadyExists, sync.SourceID, sync.TargetID)
	case isConstraint(err, sqlite3.ErrConstraintCheck):
		return fmt.Errorf("%w: source and target must differ", shared.ErrInvalidArgument)
	case isConstraint(err, sqlite3.ErrConstraintForeignKey):
		return fmt.Errorf("%w: source or target playlist", shared.ErrPlaylistNotFound)
	case err != nil:
		return fmt.Errorf("failed to insert sync: %w", err)
	}

	return nil
}

// GetForUser retrieves a sync only if userID owns it. A sync owned by someone else is reported as not found.
func (r *SyncRepository) GetForUser(id, userID string) (*models.PlaylistSync, error) {
	sync, err := scanSync(r.db.QueryRow(
		`SELECT `+syncColumns+` FROM playlist_syncs WHERE id = ? AND user_id = ?`, id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSyncNotFound, id)
	}
	return sync, err
}

// UpdateStatus moves the sync to status.
//
// A non-nil syncedAt stamps last_synced_at; otherwise the stored value is kept.
// errMsg replaces error_message, and an empty errMsg clears it.
func (r *SyncRepository) UpdateStatus(sync *models.PlaylistSync, status models.SyncStatus, syncedAt *time.Time, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: invalid status %q", shared.ErrInvalidArgument, status)
	}

	updatedAt := now()
	result, err := r.db.Exec(`
		UPDATE playlist_syncs SET
			status = ?,
			last_synced_at = COALESCE(?, last_synced_at),
			error_message = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`, status, nullTime(syncedAt), nullString(errMsg), updatedAt, sync.ID, sync.UserID)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSyncNotFound, sync.ID)
	}

	sync.Status = status
	if syncedAt != nil {
		t := syncedAt.UTC()
		sync.LastSyncedAt = &t
	}
	if errMsg == "" {
		sync.ErrorMessage = nil
	} else {
		sync.ErrorMessage = &errMsg
	}
	sync.UpdatedAt = updatedAt
	return nil
}

// Start moves the sync to IN_PROGRESS in one conditional write.
//
// A run already in progress blocks the start unless its row was last updated before staleBefore.
// A blocked start returns [shared.ErrAlreadyExists].
func (r *SyncRepository) Start(sync *models.PlaylistSync, staleBefore time.Time) error {
	updatedAt := now()
	result, err := r.db.Exec(`
		UPDATE playlist_syncs SET status = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND (status <> ? OR updated_at < ?)
	`, models.SyncInProgress, updatedAt, sync.ID, sync.UserID, models.SyncInProgress, staleBefore.UTC())
	if err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		if _, err := r.GetForUser(sync.ID, sync.UserID); err != nil {
			return err
		}
		return fmt.Errorf("%w: sync %s is already running", shared.ErrAlreadyExists, sync.ID)
	}

	sync.Status = models.SyncInProgress
	sync.UpdatedAt = updatedAt
	return nil
}

// ListForUser returns every sync owned by userID with source and target summaries,
// most recently updated first.
func (r *SyncRepository) ListForUser(userID string) ([]models.SyncWithPlaylists, error) {
	rows, err := r.db.Query(`
		SELECT s.id, s.sequence, s.user_id, s.source_id, s.target_id, s.name, s.status,
			s.last_synced_at, s.error_message, s.created_at, s.updated_at,
			src.id, src.name, src.service, src.service_id, src.track_count,
			tgt.id, tgt.name, tgt.service, tgt.service_id, tgt.track_count
		FROM playlist_syncs s
		JOIN playlists src ON src.id = s.source_id
		JOIN playlists tgt ON tgt.id = s.target_id
		WHERE s.user_id = ?
		ORDER BY s.updated_at DESC, s.sequence DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query syncs: %w", err)
	}
	defer rows.Close()

	syncs := []models.SyncWithPlaylists{}
	for rows.Next() {
		var (
			s         models.SyncWithPlaylists
			syncedAt  sql.NullTime
			errorText sql.NullString
		)
		if err := rows.Scan(
			&s.ID, &s.Sequence, &s.UserID, &s.SourceID, &s.TargetID, &s.Name, &s.Status,
			&syncedAt, &errorText, &s.CreatedAt, &s.UpdatedAt,
			&s.Source.ID, &s.Source.Name, &s.Source.Service, &s.Source.ServiceID, &s.Source.TrackCount,
			&s.Target.ID, &s.Target.Name, &s.Target.Service, &s.Target.ServiceID, &s.Target.TrackCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync: %w", err)
		}
		s.LastSyncedAt = timePtr(syncedAt)
		s.ErrorMessage = stringPtr(errorText)
		syncs = append(syncs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return syncs, nil
}

// ListIDsForUser returns the ids of every sync owned by userID in creation order.
func (r *SyncRepository) ListIDsForUser(userID string) ([]string, error) {
	rows, err := r.db.Query(`SELECT id FROM playlist_syncs WHERE user_id = ? ORDER BY sequence ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query syncs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan sync id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes the sync if userID owns it.
func (r *SyncRepository) Delete(id, userID string) error {
	result, err := r.db.Exec(`DELETE FROM playlist_syncs WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete sync: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSyncNotFound, id)
	}
	return nil
}

func errorMessage(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return nullString(*s)
}

func scanSync(s scanner) (*models.PlaylistSync, error) {
	var (
		sync      models.PlaylistSync
		syncedAt  sql.NullTime
		errorText sql.NullString
	)
	err := s.Scan(
		&sync.ID,
		&sync.Sequence,
		&sync.UserID,
		&sync.SourceID,
		&sync.TargetID,
		&sync.Name,
		&sync.Status,
		&syncedAt,
		&errorText,
		&sync.CreatedAt,
		&sync.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync: %w", err)
	}
	sync.LastSyncedAt = timePtr(syncedAt)
	sync.ErrorMessage = stringPtr(errorText)
	return &sync, nil
}
