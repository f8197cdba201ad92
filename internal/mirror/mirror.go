// package mirror copies provider playlists and their tracks into the local store.
//
// The provider stays the source of truth. Pulls overwrite local rows keyed on the provider's
// native ids and rewrite track membership wholesale, so a pull is safe to repeat.
package mirror

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/go-playground/validator/v10"
)

// Mirror keeps the local playlist tables in step with the providers.
type Mirror struct {
	registry  *services.Registry
	playlists *repositories.PlaylistRepository
	tracks    *repositories.PlaylistTrackRepository
	validate  *validator.Validate
	logger    *log.Logger
}

// New creates a Mirror over db.
func New(db *sql.DB, registry *services.Registry, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = log.Default()
	}
	return &Mirror{
		registry:  registry,
		playlists: repositories.NewPlaylistRepository(db),
		tracks:    repositories.NewPlaylistTrackRepository(db),
		validate:  validator.New(),
		logger:    shared.WithLogger(logger, "component", "mirror"),
	}
}

// PullPlaylists fetches every playlist userID has on provider and upserts them.
func (m *Mirror) PullPlaylists(ctx context.Context, userID string, provider models.ProviderType) ([]*models.Playlist, error) {
	p, err := m.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	remote, err := p.GetPlaylists(ctx, userID)
	if err != nil {
		return nil, err
	}

	playlists := make([]*models.Playlist, 0, len(remote))
	for _, sp := range remote {
		playlist := models.NewPlaylist(userID, provider, sp)
		if err := m.playlists.Upsert(playlist); err != nil {
			return nil, fmt.Errorf("failed to store playlist %s: %w", sp.ID, err)
		}
		playlists = append(playlists, playlist)
	}

	m.logger.Info("playlists pulled", "user", userID, "provider", provider.Slug(), "count", len(playlists))
	return playlists, nil
}

// PullPlaylistDetail refreshes one local playlist and its ordered tracks from the provider.
// A playlist owned by another user is reported as not found.
func (m *Mirror) PullPlaylistDetail(ctx context.Context, userID, playlistID string, opts ...services.CallOption) (*models.PlaylistWithTracks, error) {
	playlist, err := m.playlists.GetForUser(playlistID, userID)
	if err != nil {
		return nil, err
	}

	p, err := m.registry.Get(playlist.Service)
	if err != nil {
		return nil, err
	}

	details, err := p.GetPlaylistDetails(ctx, userID, playlist.ServiceID, opts...)
	if err != nil {
		return nil, err
	}

	return m.store(playlist, details)
}

// store writes provider details over the local playlist row and its membership.
func (m *Mirror) store(playlist *models.Playlist, details *models.PlaylistDetails) (*models.PlaylistWithTracks, error) {
	fresh := models.NewPlaylist(playlist.UserID, playlist.Service, details.Playlist)
	fresh.ServiceID = playlist.ServiceID
	fresh.TrackCount = len(details.Tracks)
	if err := m.playlists.Upsert(fresh); err != nil {
		return nil, fmt.Errorf("failed to refresh playlist: %w", err)
	}

	tracks := make([]models.Track, 0, len(details.Tracks))
	for _, st := range details.Tracks {
		tracks = append(tracks, *models.NewTrack(fresh.Service, st))
	}

	stored, err := m.tracks.ReplaceTracks(fresh, tracks)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("playlist mirrored", "playlist", fresh.ID, "tracks", len(stored))
	return &models.PlaylistWithTracks{Playlist: *fresh, Tracks: stored}, nil
}

// AddTracks appends trackIDs on the provider, then re-pulls the playlist.
func (m *Mirror) AddTracks(ctx context.Context, userID, playlistID string, trackIDs []string) (*models.PlaylistWithTracks, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("%w: track ids", shared.ErrMissingArgument)
	}

	playlist, err := m.playlists.GetForUser(playlistID, userID)
	if err != nil {
		return nil, err
	}

	p, err := m.registry.Get(playlist.Service)
	if err != nil {
		return nil, err
	}

	if err := p.AddTracksToPlaylist(ctx, userID, playlist.ServiceID, trackIDs); err != nil {
		return nil, err
	}

	m.logger.Info("tracks added", "user", userID, "playlist", playlist.ID, "count", len(trackIDs))
	return m.PullPlaylistDetail(ctx, userID, playlistID)
}

// CreatePlaylist creates a playlist on provider and mirrors the empty result locally.
func (m *Mirror) CreatePlaylist(ctx context.Context, userID string, provider models.ProviderType, in models.NewPlaylistInput) (*models.Playlist, error) {
	if err := m.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	p, err := m.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	created, err := p.CreatePlaylist(ctx, userID, in)
	if err != nil {
		return nil, err
	}

	playlist := models.NewPlaylist(userID, provider, *created)
	if err := m.playlists.Upsert(playlist); err != nil {
		return nil, fmt.Errorf("failed to store created playlist: %w", err)
	}

	m.logger.Info("playlist created", "user", userID, "provider", provider.Slug(), "playlist", playlist.ID)
	return playlist, nil
}

// LocalPlaylist returns the mirrored playlist with its tracks in position order, without
// contacting the provider.
func (m *Mirror) LocalPlaylist(ctx context.Context, userID, playlistID string) (*models.PlaylistWithTracks, error) {
	playlist, err := m.playlists.GetForUser(playlistID, userID)
	if err != nil {
		return nil, err
	}

	tracks, err := m.tracks.Tracks(playlist.ID)
	if err != nil {
		return nil, err
	}
	return &models.PlaylistWithTracks{Playlist: *playlist, Tracks: tracks}, nil
}

// ListPlaylists returns the user's mirrored playlists, optionally limited to one provider.
func (m *Mirror) ListPlaylists(ctx context.Context, userID string, provider models.ProviderType) ([]*models.Playlist, error) {
	criteria := map[string]any{"user_id": userID}
	if provider != "" {
		criteria["service"] = provider
	}
	return m.playlists.List(criteria)
}
