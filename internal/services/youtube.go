// YouTube implementation of [MusicProvider] on top of google.golang.org/api/youtube/v3.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	youtubePageSize     = 50
	youtubeVideoKind    = "youtube#video"
	youtubePlaylistKind = "youtube#playlist"
	youtubeUnknownName  = "Unknown Artist"
	youtubeWatchURL     = "https://www.youtube.com/watch?v="
)

var youtubeScopes = []string{
	youtube.YoutubeScope,
	youtube.YoutubeReadonlyScope,
	youtube.YoutubeForceSslScope,
}

var (
	youtubePlaylistParts = []string{"snippet", "contentDetails", "status"}
	youtubeItemParts     = []string{"snippet", "contentDetails"}
)

// YouTubeProvider implements [MusicProvider] for YouTube.
//
// YouTube has no batch insert and no recommendation endpoint: writes are issued one video at a
// time, in order, and recommendations are approximated with a search seeded by the first video.
type YouTubeProvider struct {
	*authFlow
	apiURL string
}

// NewYouTubeProvider creates the YouTube adapter. Missing credentials return [shared.ErrMissingCredentials].
func NewYouTubeProvider(creds shared.OAuthCredentials, deps Deps, opts ...Option) (*YouTubeProvider, error) {
	o := applyOptions(opts)

	endpoint := googleauth.Endpoint
	if o.endpoint != nil {
		endpoint = *o.endpoint
	}

	flow, err := newAuthFlow(models.YouTube, creds, youtubeScopes, endpoint, deps,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	if err != nil {
		return nil, err
	}

	apiURL := o.apiURL
	if apiURL != "" && !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	return &YouTubeProvider{authFlow: flow, apiURL: apiURL}, nil
}

func (y *YouTubeProvider) Name() string { return "YouTube" }

func (y *YouTubeProvider) newService(ctx context.Context, token string) (*youtube.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(bearerClient(y.deps.HTTPClient, token))}
	if y.apiURL != "" {
		opts = append(opts, option.WithEndpoint(y.apiURL))
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: youtube client: %v", shared.ErrConfiguration, err)
	}
	return svc, nil
}

func (y *YouTubeProvider) service(ctx context.Context, userID string, opts []CallOption) (*youtube.Service, error) {
	token, err := y.accessToken(ctx, userID, opts)
	if err != nil {
		return nil, err
	}
	return y.newService(ctx, token)
}

func (y *YouTubeProvider) upstream(op string, err error) error {
	return shared.NewUpstreamError(y.provider.Slug(), op, err)
}

// HandleCallback completes the OAuth handshake for userID.
func (y *YouTubeProvider) HandleCallback(ctx context.Context, code, userID string) (*models.CallbackResult, error) {
	return y.completeCallback(ctx, code, userID, y.Name(), y.GetUserProfile)
}

// GetUserProfile returns the caller's channel. YouTube exposes no email.
func (y *YouTubeProvider) GetUserProfile(ctx context.Context, accessToken string) (*models.ServiceProfile, error) {
	svc, err := y.newService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, y.upstream("profile", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return nil, y.upstream("profile", errors.New("no channel found for user"))
	}

	channel := resp.Items[0]
	return &models.ServiceProfile{
		ID:       channel.Id,
		Name:     channel.Snippet.Title,
		ImageURL: thumbnailURL(channel.Snippet.Thumbnails),
	}, nil
}

// GetPlaylists returns every playlist of the caller's channel.
func (y *YouTubeProvider) GetPlaylists(ctx context.Context, userID string, opts ...CallOption) ([]models.ServicePlaylist, error) {
	svc, err := y.service(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	playlists := []models.ServicePlaylist{}
	pageToken := ""
	for {
		call := svc.Playlists.List(youtubePlaylistParts).Mine(true).MaxResults(youtubePageSize)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, y.upstream("playlists", err)
		}

		for _, p := range resp.Items {
			playlists = append(playlists, youtubeServicePlaylist(p))
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return playlists, nil
}

// GetPlaylistDetails returns the playlist and its videos in playlist order.
func (y *YouTubeProvider) GetPlaylistDetails(ctx context.Context, userID, playlistID string, opts ...CallOption) (*models.PlaylistDetails, error) {
	svc, err := y.service(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Playlists.List(youtubePlaylistParts).Id(playlistID).Context(ctx).Do()
	if err != nil {
		return nil, y.upstream("playlist", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}

	details := &models.PlaylistDetails{
		Playlist: youtubeServicePlaylist(resp.Items[0]),
		Tracks:   []models.ServiceTrack{},
	}

	err = y.eachItem(ctx, svc, playlistID, youtubeItemParts, func(item *youtube.PlaylistItem) error {
		if track, ok := youtubeItemTrack(item); ok {
			details.Tracks = append(details.Tracks, track)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	details.Playlist.TrackCount = len(details.Tracks)
	return details, nil
}

func (y *YouTubeProvider) eachItem(ctx context.Context, svc *youtube.Service, playlistID string, parts []string, fn func(*youtube.PlaylistItem) error) error {
	pageToken := ""
	for {
		call := svc.PlaylistItems.List(parts).PlaylistId(playlistID).MaxResults(youtubePageSize)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Context(ctx).Do()
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
			}
			return y.upstream("playlist items", err)
		}

		for _, item := range resp.Items {
			if err := fn(item); err != nil {
				return err
			}
		}

		if resp.NextPageToken == "" {
			return nil
		}
		pageToken = resp.NextPageToken
	}
}

// CreatePlaylist creates a playlist on the caller's channel. It is private unless in.Public is set.
func (y *YouTubeProvider) CreatePlaylist(ctx context.Context, userID string, in models.NewPlaylistInput, opts ...CallOption) (*models.ServicePlaylist, error) {
	svc, err := y.service(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	privacy := "private"
	if in.Public {
		privacy = "public"
	}

	created, err := svc.Playlists.Insert([]string{"snippet", "status"}, &youtube.Playlist{
		Snippet: &youtube.PlaylistSnippet{Title: in.Name, Description: in.Description},
		Status:  &youtube.PlaylistStatus{PrivacyStatus: privacy},
	}).Context(ctx).Do()
	if err != nil {
		return nil, y.upstream("create playlist", err)
	}

	playlist := youtubeServicePlaylist(created)
	playlist.TrackCount = 0
	return &playlist, nil
}

// AddTracksToPlaylist appends videos one at a time, stopping at the first failure.
func (y *YouTubeProvider) AddTracksToPlaylist(ctx context.Context, userID, playlistID string, trackIDs []string, opts ...CallOption) error {
	svc, err := y.service(ctx, userID, opts)
	if err != nil {
		return err
	}
	return y.insertVideos(ctx, svc, playlistID, trackIDs)
}

func (y *YouTubeProvider) insertVideos(ctx context.Context, svc *youtube.Service, playlistID string, videoIDs []string) error {
	for _, videoID := range videoIDs {
		_, err := svc.PlaylistItems.Insert([]string{"snippet"}, &youtube.PlaylistItem{
			Snippet: &youtube.PlaylistItemSnippet{
				PlaylistId: playlistID,
				ResourceId: &youtube.ResourceId{Kind: youtubeVideoKind, VideoId: videoID},
			},
		}).Context(ctx).Do()
		if err != nil {
			return y.upstream("add video "+videoID, err)
		}
	}
	return nil
}

// ReplacePlaylistTracks deletes every item of the playlist, then inserts trackIDs in order.
func (y *YouTubeProvider) ReplacePlaylistTracks(ctx context.Context, userID, playlistID string, trackIDs []string, opts ...CallOption) error {
	svc, err := y.service(ctx, userID, opts)
	if err != nil {
		return err
	}

	var itemIDs []string
	err = y.eachItem(ctx, svc, playlistID, []string{"id"}, func(item *youtube.PlaylistItem) error {
		itemIDs = append(itemIDs, item.Id)
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range itemIDs {
		if err := svc.PlaylistItems.Delete(id).Context(ctx).Do(); err != nil {
			return y.upstream("remove item", err)
		}
	}

	return y.insertVideos(ctx, svc, playlistID, trackIDs)
}

// Search queries videos and/or playlists. The page cursor is YouTube's nextPageToken.
func (y *YouTubeProvider) Search(ctx context.Context, userID string, q models.SearchQuery, opts ...CallOption) (*models.SearchResults, error) {
	q = q.Normalize()
	if strings.TrimSpace(q.Query) == "" {
		return nil, shared.ErrMissingArgument
	}

	svc, err := y.service(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	var kinds []string
	if q.Has(models.SearchTrack) {
		kinds = append(kinds, "video")
	}
	if q.Has(models.SearchPlaylist) {
		kinds = append(kinds, "playlist")
	}

	call := svc.Search.List([]string{"snippet"}).
		Q(q.Query).
		Type(strings.Join(kinds, ",")).
		MaxResults(int64(clampLimit(q.Limit, youtubePageSize)))
	if q.Page != "" {
		call = call.PageToken(q.Page)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, y.upstream("search", err)
	}

	results := &models.SearchResults{Tracks: []models.ServiceTrack{}, NextPage: resp.NextPageToken}
	if resp.PageInfo != nil {
		results.Total = int(resp.PageInfo.TotalResults)
	}

	for _, item := range resp.Items {
		if item.Id == nil || item.Snippet == nil {
			continue
		}
		switch item.Id.Kind {
		case youtubeVideoKind:
			results.Tracks = append(results.Tracks, youtubeVideoTrack(item.Id.VideoId, item.Snippet.Title, item.Snippet.ChannelTitle, item.Snippet.Thumbnails))
		case youtubePlaylistKind:
			results.Playlists = append(results.Playlists, models.ServicePlaylist{
				ID:          item.Id.PlaylistId,
				Name:        item.Snippet.Title,
				Description: item.Snippet.Description,
				OwnerID:     item.Snippet.ChannelId,
				Public:      true,
				ImageURL:    thumbnailURL(item.Snippet.Thumbnails),
			})
		}
	}
	return results, nil
}

// GetRecommendations searches for videos like the first seed and drops the seeds from the result.
// Failures are logged and produce an empty list.
func (y *YouTubeProvider) GetRecommendations(ctx context.Context, userID string, seedTrackIDs []string, limit int, opts ...CallOption) ([]models.ServiceTrack, error) {
	tracks := []models.ServiceTrack{}
	if len(seedTrackIDs) == 0 {
		return tracks, nil
	}
	limit = clampLimit(limit, youtubePageSize)

	svc, err := y.service(ctx, userID, opts)
	if err != nil {
		y.logger.Warn("recommendations unavailable", "user", userID, "error", err)
		return tracks, nil
	}

	videos, err := svc.Videos.List([]string{"snippet"}).Id(seedTrackIDs[0]).Context(ctx).Do()
	if err != nil || len(videos.Items) == 0 || videos.Items[0].Snippet == nil {
		y.logger.Warn("recommendation seed lookup failed", "user", userID, "seed", seedTrackIDs[0], "error", err)
		return tracks, nil
	}
	seed := videos.Items[0].Snippet

	resp, err := svc.Search.List([]string{"snippet"}).
		Q(strings.TrimSpace(seed.Title + " " + seed.ChannelTitle)).
		Type("video").
		MaxResults(int64(min(limit+len(seedTrackIDs), youtubePageSize))).
		Context(ctx).
		Do()
	if err != nil {
		y.logger.Warn("recommendation search failed", "user", userID, "error", err)
		return tracks, nil
	}

	exclude := make(map[string]bool, len(seedTrackIDs))
	for _, id := range seedTrackIDs {
		exclude[id] = true
	}

	for _, item := range resp.Items {
		if len(tracks) == limit {
			break
		}
		if item.Id == nil || item.Snippet == nil || item.Id.Kind != youtubeVideoKind || exclude[item.Id.VideoId] {
			continue
		}
		tracks = append(tracks, youtubeVideoTrack(item.Id.VideoId, item.Snippet.Title, item.Snippet.ChannelTitle, item.Snippet.Thumbnails))
	}
	return tracks, nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func thumbnailURL(t *youtube.ThumbnailDetails) string {
	if t == nil || t.Default == nil {
		return ""
	}
	return t.Default.Url
}

func youtubeServicePlaylist(p *youtube.Playlist) models.ServicePlaylist {
	playlist := models.ServicePlaylist{ID: p.Id}
	if p.Snippet != nil {
		playlist.Name = p.Snippet.Title
		playlist.Description = p.Snippet.Description
		playlist.OwnerID = p.Snippet.ChannelId
		playlist.ImageURL = thumbnailURL(p.Snippet.Thumbnails)
	}
	if p.ContentDetails != nil {
		playlist.TrackCount = int(p.ContentDetails.ItemCount)
	}
	if p.Status != nil {
		playlist.Public = p.Status.PrivacyStatus == "public"
	}
	return playlist
}

func youtubeItemTrack(item *youtube.PlaylistItem) (models.ServiceTrack, bool) {
	if item.Snippet == nil || item.Snippet.ResourceId == nil || item.Snippet.ResourceId.Kind != youtubeVideoKind {
		return models.ServiceTrack{}, false
	}
	s := item.Snippet
	return youtubeVideoTrack(s.ResourceId.VideoId, s.Title, s.VideoOwnerChannelTitle, s.Thumbnails), true
}

func youtubeVideoTrack(videoID, title, channel string, thumbs *youtube.ThumbnailDetails) models.ServiceTrack {
	if channel == "" {
		channel = youtubeUnknownName
	}
	return models.ServiceTrack{
		ID:          videoID,
		Name:        title,
		Artist:      channel,
		ImageURL:    thumbnailURL(thumbs),
		ExternalURL: youtubeWatchURL + videoID,
	}
}

var _ MusicProvider = (*YouTubeProvider)(nil)
