// Spotify implementation of [MusicProvider] on top of github.com/zmb3/spotify/v2.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/zmb3/spotify/v2"
	spotifyauth "golang.org/x/oauth2/spotify"
)

const (
	spotifyPageSize  = 50
	spotifyBatchSize = 100
	spotifyMaxLimit  = 50
)

var spotifyScopes = []string{
	"user-read-private",
	"user-read-email",
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-public",
	"playlist-modify-private",
}

// SpotifyProvider implements [MusicProvider] for Spotify.
type SpotifyProvider struct {
	*authFlow
	apiURL string
}

// NewSpotifyProvider creates the Spotify adapter. Missing credentials return [shared.ErrMissingCredentials].
func NewSpotifyProvider(creds shared.OAuthCredentials, deps Deps, opts ...Option) (*SpotifyProvider, error) {
	o := applyOptions(opts)

	endpoint := spotifyauth.Endpoint
	if o.endpoint != nil {
		endpoint = *o.endpoint
	}

	flow, err := newAuthFlow(models.Spotify, creds, spotifyScopes, endpoint, deps)
	if err != nil {
		return nil, err
	}

	apiURL := o.apiURL
	if apiURL != "" && !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	return &SpotifyProvider{authFlow: flow, apiURL: apiURL}, nil
}

func (s *SpotifyProvider) Name() string { return "Spotify" }

func (s *SpotifyProvider) newClient(token string) *spotify.Client {
	var opts []spotify.ClientOption
	if s.apiURL != "" {
		opts = append(opts, spotify.WithBaseURL(s.apiURL))
	}
	return spotify.New(bearerClient(s.deps.HTTPClient, token), opts...)
}

func (s *SpotifyProvider) client(ctx context.Context, userID string, opts []CallOption) (*spotify.Client, error) {
	token, err := s.accessToken(ctx, userID, opts)
	if err != nil {
		return nil, err
	}
	return s.newClient(token), nil
}

func (s *SpotifyProvider) upstream(op string, err error) error {
	return shared.NewUpstreamError(s.provider.Slug(), op, err)
}

// HandleCallback completes the OAuth handshake for userID.
func (s *SpotifyProvider) HandleCallback(ctx context.Context, code, userID string) (*models.CallbackResult, error) {
	return s.completeCallback(ctx, code, userID, s.Name(), s.GetUserProfile)
}

// GetUserProfile fetches the current user.
func (s *SpotifyProvider) GetUserProfile(ctx context.Context, accessToken string) (*models.ServiceProfile, error) {
	user, err := s.newClient(accessToken).CurrentUser(ctx)
	if err != nil {
		return nil, s.upstream("profile", err)
	}

	profile := &models.ServiceProfile{
		ID:    user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
	}
	if len(user.Images) > 0 {
		profile.ImageURL = user.Images[0].URL
	}
	if profile.Name == "" {
		profile.Name = user.ID
	}
	return profile, nil
}

// GetPlaylists returns every playlist of the current user, paging 50 at a time.
func (s *SpotifyProvider) GetPlaylists(ctx context.Context, userID string, opts ...CallOption) ([]models.ServicePlaylist, error) {
	client, err := s.client(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	playlists := []models.ServicePlaylist{}
	for offset := 0; ; offset += spotifyPageSize {
		page, err := client.CurrentUsersPlaylists(ctx, spotify.Limit(spotifyPageSize), spotify.Offset(offset))
		if err != nil {
			return nil, s.upstream("playlists", err)
		}

		for _, p := range page.Playlists {
			playlists = append(playlists, spotifyPlaylist(p))
		}

		if page.Next == "" || len(page.Playlists) == 0 {
			break
		}
	}
	return playlists, nil
}

// GetPlaylistDetails returns a playlist and all of its tracks in order.
// Local files and removed tracks have no id and are skipped.
func (s *SpotifyProvider) GetPlaylistDetails(ctx context.Context, userID, playlistID string, opts ...CallOption) (*models.PlaylistDetails, error) {
	client, err := s.client(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	playlist, err := client.GetPlaylist(ctx, spotify.ID(playlistID))
	if err != nil {
		return nil, s.upstream("playlist", err)
	}

	details := &models.PlaylistDetails{
		Playlist: spotifyPlaylist(playlist.SimplePlaylist),
		Tracks:   []models.ServiceTrack{},
	}

	page := &playlist.Tracks
	for {
		for _, item := range page.Tracks {
			if item.IsLocal || item.Track.ID == "" {
				continue
			}
			details.Tracks = append(details.Tracks, spotifyTrack(item.Track))
		}

		err := client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, s.upstream("playlist tracks", err)
		}
	}

	details.Playlist.TrackCount = len(details.Tracks)
	return details, nil
}

// CreatePlaylist creates a playlist owned by the connected account.
func (s *SpotifyProvider) CreatePlaylist(ctx context.Context, userID string, in models.NewPlaylistInput, opts ...CallOption) (*models.ServicePlaylist, error) {
	client, err := s.client(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, s.upstream("profile", err)
	}

	created, err := client.CreatePlaylistForUser(ctx, user.ID, in.Name, in.Description, in.Public, false)
	if err != nil {
		return nil, s.upstream("create playlist", err)
	}

	playlist := spotifyPlaylist(created.SimplePlaylist)
	playlist.TrackCount = 0
	return &playlist, nil
}

// AddTracksToPlaylist appends tracks in batches of 100.
func (s *SpotifyProvider) AddTracksToPlaylist(ctx context.Context, userID, playlistID string, trackIDs []string, opts ...CallOption) error {
	client, err := s.client(ctx, userID, opts)
	if err != nil {
		return err
	}
	return s.appendTracks(ctx, client, playlistID, trackIDs)
}

func (s *SpotifyProvider) appendTracks(ctx context.Context, client *spotify.Client, playlistID string, trackIDs []string) error {
	ids := spotifyIDs(trackIDs)
	for start := 0; start < len(ids); start += spotifyBatchSize {
		end := min(start+spotifyBatchSize, len(ids))
		if _, err := client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids[start:end]...); err != nil {
			return s.upstream("add tracks", err)
		}
	}
	return nil
}

// ReplacePlaylistTracks clears the playlist with an empty replace, then appends trackIDs.
func (s *SpotifyProvider) ReplacePlaylistTracks(ctx context.Context, userID, playlistID string, trackIDs []string, opts ...CallOption) error {
	client, err := s.client(ctx, userID, opts)
	if err != nil {
		return err
	}

	if err := client.ReplacePlaylistTracks(ctx, spotify.ID(playlistID)); err != nil {
		return s.upstream("clear playlist", err)
	}

	if len(trackIDs) == 0 {
		return nil
	}
	return s.appendTracks(ctx, client, playlistID, trackIDs)
}

// Search queries tracks and/or playlists. The page cursor is the next result offset.
func (s *SpotifyProvider) Search(ctx context.Context, userID string, q models.SearchQuery, opts ...CallOption) (*models.SearchResults, error) {
	q = q.Normalize()
	if strings.TrimSpace(q.Query) == "" {
		return nil, shared.ErrMissingArgument
	}

	offset := 0
	if q.Page != "" {
		n, err := strconv.Atoi(q.Page)
		if err != nil || n < 0 {
			return nil, shared.ErrInvalidArgument
		}
		offset = n
	}

	client, err := s.client(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	var searchType spotify.SearchType
	if q.Has(models.SearchTrack) {
		searchType |= spotify.SearchTypeTrack
	}
	if q.Has(models.SearchPlaylist) {
		searchType |= spotify.SearchTypePlaylist
	}

	limit := clampLimit(q.Limit, spotifyMaxLimit)
	result, err := client.Search(ctx, q.Query, searchType, spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		return nil, s.upstream("search", err)
	}

	results := &models.SearchResults{Tracks: []models.ServiceTrack{}}
	hasMore := false
	if result.Tracks != nil {
		for _, t := range result.Tracks.Tracks {
			results.Tracks = append(results.Tracks, spotifyTrack(t))
		}
		results.Total += int(result.Tracks.Total)
		hasMore = hasMore || result.Tracks.Next != ""
	}
	if result.Playlists != nil {
		for _, p := range result.Playlists.Playlists {
			results.Playlists = append(results.Playlists, spotifyPlaylist(p))
		}
		results.Total += int(result.Playlists.Total)
		hasMore = hasMore || result.Playlists.Next != ""
	}

	if hasMore {
		results.NextPage = strconv.Itoa(offset + limit)
	}
	return results, nil
}

// GetRecommendations asks Spotify for tracks seeded by up to five seed tracks.
// Failures are logged and produce an empty list.
func (s *SpotifyProvider) GetRecommendations(ctx context.Context, userID string, seedTrackIDs []string, limit int, opts ...CallOption) ([]models.ServiceTrack, error) {
	tracks := []models.ServiceTrack{}
	if len(seedTrackIDs) == 0 {
		return tracks, nil
	}

	client, err := s.client(ctx, userID, opts)
	if err != nil {
		s.logger.Warn("recommendations unavailable", "user", userID, "error", err)
		return tracks, nil
	}

	seeds := spotifyIDs(seedTrackIDs)
	if len(seeds) > 5 {
		seeds = seeds[:5]
	}

	recs, err := client.GetRecommendations(ctx, spotify.Seeds{Tracks: seeds}, spotify.NewTrackAttributes(), spotify.Limit(clampLimit(limit, 100)))
	if err != nil {
		s.logger.Warn("recommendations failed", "user", userID, "error", err)
		return tracks, nil
	}

	for _, t := range recs.Tracks {
		tracks = append(tracks, spotifySimpleTrack(t, ""))
	}
	return tracks, nil
}

func spotifyIDs(ids []string) []spotify.ID {
	out := make([]spotify.ID, 0, len(ids))
	for _, id := range ids {
		out = append(out, spotify.ID(strings.TrimPrefix(id, "spotify:track:")))
	}
	return out
}

func spotifyPlaylist(p spotify.SimplePlaylist) models.ServicePlaylist {
	playlist := models.ServicePlaylist{
		ID:            string(p.ID),
		Name:          p.Name,
		Description:   p.Description,
		TrackCount:    int(p.Tracks.Total),
		Public:        p.IsPublic,
		Collaborative: p.Collaborative,
		OwnerID:       p.Owner.ID,
	}
	if len(p.Images) > 0 {
		playlist.ImageURL = p.Images[0].URL
	}
	return playlist
}

func spotifyTrack(t spotify.FullTrack) models.ServiceTrack {
	imageURL := ""
	if len(t.Album.Images) > 0 {
		imageURL = t.Album.Images[0].URL
	}
	track := spotifySimpleTrack(t.SimpleTrack, imageURL)
	track.Album = t.Album.Name
	return track
}

func spotifySimpleTrack(t spotify.SimpleTrack, imageURL string) models.ServiceTrack {
	track := models.ServiceTrack{
		ID:          string(t.ID),
		Name:        t.Name,
		DurationMs:  int(t.Duration),
		ImageURL:    imageURL,
		PreviewURL:  t.PreviewURL,
		ExternalURL: t.ExternalURLs["spotify"],
	}
	if len(t.Artists) > 0 {
		track.Artist = t.Artists[0].Name
	}
	return track
}

var _ MusicProvider = (*SpotifyProvider)(nil)
