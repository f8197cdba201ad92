package testing

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/oauth2"
)

// FakeProvider is an in-memory [services.MusicProvider].
//
// Users are connected with [FakeProvider.Connect]; calls for anyone else fail with
// [shared.ErrNotConnected] unless a token is supplied with [services.WithAccessToken].
type FakeProvider struct {
	mu        sync.Mutex
	kind      models.ProviderType
	tokens    map[string]string
	order     []string
	playlists map[string]*fakePlaylist
	catalog   []models.ServiceTrack
	nextID    int

	// Calls records "<method> <argument>" for every playlist or track call.
	Calls []string
	// UsedTokens records the access token each call was made with.
	UsedTokens []string

	// FailReplace, FailAdd and FailDetails make the matching call return an upstream error.
	FailReplace error
	FailAdd     error
	FailDetails error
}

type fakePlaylist struct {
	playlist models.ServicePlaylist
	tracks   []models.ServiceTrack
}

// NewFakeProvider creates an empty provider of the given type.
func NewFakeProvider(kind models.ProviderType) *FakeProvider {
	return &FakeProvider{
		kind:      kind,
		tokens:    make(map[string]string),
		playlists: make(map[string]*fakePlaylist),
	}
}

// FakeTrack builds a track named after id.
func FakeTrack(id string) models.ServiceTrack {
	return models.ServiceTrack{ID: id, Name: "Song " + id, Artist: "Artist " + id, DurationMs: 180000}
}

// FakeTracks builds one [FakeTrack] per id.
func FakeTracks(ids ...string) []models.ServiceTrack {
	tracks := make([]models.ServiceTrack, 0, len(ids))
	for _, id := range ids {
		tracks = append(tracks, FakeTrack(id))
	}
	return tracks
}

// Connect gives userID a valid token.
func (f *FakeProvider) Connect(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[userID] = "token-" + userID
}

// AddPlaylist stores a provider playlist with tracks.
func (f *FakeProvider) AddPlaylist(id, name string, tracks ...models.ServiceTrack) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putPlaylist(models.ServicePlaylist{ID: id, Name: name, OwnerID: "fake-owner"}, tracks)
}

// SetCatalog sets the tracks returned by Search and GetRecommendations.
func (f *FakeProvider) SetCatalog(tracks ...models.ServiceTrack) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog = tracks
}

// TrackIDs returns the native ids in playlistID, in order.
func (f *FakeProvider) TrackIDs(playlistID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.playlists[playlistID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(p.tracks))
	for _, t := range p.tracks {
		ids = append(ids, t.ID)
	}
	return ids
}

// CallCount counts recorded calls starting with method.
func (f *FakeProvider) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.Calls {
		if c == method || strings.HasPrefix(c, method+" ") {
			n++
		}
	}
	return n
}

func (f *FakeProvider) putPlaylist(p models.ServicePlaylist, tracks []models.ServiceTrack) {
	if _, ok := f.playlists[p.ID]; !ok {
		f.order = append(f.order, p.ID)
	}
	p.TrackCount = len(tracks)
	f.playlists[p.ID] = &fakePlaylist{playlist: p, tracks: slices.Clone(tracks)}
}

// authorize resolves the token of a call and records it. The lock must be held.
func (f *FakeProvider) authorize(userID, call string, opts []services.CallOption) error {
	token := services.AccessTokenFrom(opts...)
	if token == "" {
		var ok bool
		if token, ok = f.tokens[userID]; !ok {
			return shared.ErrNotConnected
		}
	}
	f.Calls = append(f.Calls, call)
	f.UsedTokens = append(f.UsedTokens, token)
	return nil
}

func (f *FakeProvider) upstream(op string, err error) error {
	return shared.NewUpstreamError(f.kind.Slug(), op, err)
}

func (f *FakeProvider) lookup(id string) models.ServiceTrack {
	for _, t := range f.catalog {
		if t.ID == id {
			return t
		}
	}
	for _, p := range f.playlists {
		for _, t := range p.tracks {
			if t.ID == id {
				return t
			}
		}
	}
	return FakeTrack(id)
}

func (f *FakeProvider) Type() models.ProviderType { return f.kind }

func (f *FakeProvider) Name() string { return "Fake " + f.kind.Slug() }

func (f *FakeProvider) GetAuthURL(state string) string {
	return "https://fake.example/" + f.kind.Slug() + "/authorize?state=" + state
}

func (f *FakeProvider) HandleCallback(ctx context.Context, code, userID string) (*models.CallbackResult, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: code", shared.ErrMissingArgument)
	}
	if code == "denied" {
		return nil, f.upstream("exchange", fmt.Errorf("invalid_grant"))
	}

	f.mu.Lock()
	f.tokens[userID] = "token-" + code
	f.mu.Unlock()

	profile := &models.ServiceProfile{ID: "fake-" + userID, Name: "Fake Account"}
	return &models.CallbackResult{Success: true, Profile: profile, Message: f.Name() + " connected successfully"}, nil
}

func (f *FakeProvider) GetUserProfile(ctx context.Context, accessToken string) (*models.ServiceProfile, error) {
	if accessToken == "" {
		return nil, f.upstream("profile", fmt.Errorf("missing token"))
	}
	return &models.ServiceProfile{ID: "fake-account", Name: "Fake Account"}, nil
}

func (f *FakeProvider) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	token, ok := f.tokens[userID]
	if !ok {
		return "", shared.ErrNotConnected
	}
	return token, nil
}

func (f *FakeProvider) RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}
	return &oauth2.Token{AccessToken: "refreshed"}, nil
}

func (f *FakeProvider) Disconnect(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, userID)
	return nil
}

func (f *FakeProvider) GetPlaylists(ctx context.Context, userID string, opts ...services.CallOption) ([]models.ServicePlaylist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.authorize(userID, "GetPlaylists", opts); err != nil {
		return nil, err
	}

	playlists := make([]models.ServicePlaylist, 0, len(f.order))
	for _, id := range f.order {
		playlists = append(playlists, f.playlists[id].playlist)
	}
	return playlists, nil
}

func (f *FakeProvider) GetPlaylistDetails(ctx context.Context, userID, playlistID string, opts ...services.CallOption) (*models.PlaylistDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.authorize(userID, "GetPlaylistDetails "+playlistID, opts); err != nil {
		return nil, err
	}
	if f.FailDetails != nil {
		return nil, f.upstream("playlist", f.FailDetails)
	}

	p, ok := f.playlists[playlistID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	return &models.PlaylistDetails{Playlist: p.playlist, Tracks: slices.Clone(p.tracks)}, nil
}

func (f *FakeProvider) CreatePlaylist(ctx context.Context, userID string, in models.NewPlaylistInput, opts ...services.CallOption) (*models.ServicePlaylist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.authorize(userID, "CreatePlaylist "+in.Name, opts); err != nil {
		return nil, err
	}

	f.nextID++
	p := models.ServicePlaylist{
		ID:          "created-" + strconv.Itoa(f.nextID),
		Name:        in.Name,
		Description: in.Description,
		Public:      in.Public,
		OwnerID:     "fake-owner",
	}
	f.putPlaylist(p, nil)
	return &p, nil
}

func (f *FakeProvider) AddTracksToPlaylist(ctx context.Context, userID, playlistID string, trackIDs []string, opts ...services.CallOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.authorize(userID, "AddTracksToPlaylist "+playlistID, opts); err != nil {
		return err
	}
	if f.FailAdd != nil {
		return f.upstream("add tracks", f.FailAdd)
	}

	p, ok := f.playlists[playlistID]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	for _, id := range trackIDs {
		p.tracks = append(p.tracks, f.lookup(id))
	}
	p.playlist.TrackCount = len(p.tracks)
	return nil
}

func (f *FakeProvider) ReplacePlaylistTracks(ctx context.Context, userID, playlistID string, trackIDs []string, opts ...services.CallOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.authorize(userID, "ReplacePlaylistTracks "+playlistID, opts); err != nil {
		return err
	}
	if f.FailReplace != nil {
		return f.upstream("replace tracks", f.FailReplace)
	}

	p, ok := f.playlists[playlistID]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}

	tracks := make([]models.ServiceTrack, 0, len(trackIDs))
	for _, id := range trackIDs {
		tracks = append(tracks, f.lookup(id))
	}
	p.tracks = tracks
	p.playlist.TrackCount = len(tracks)
	return nil
}

// Search matches catalog tracks whose "name artist" contains every word of the query.
// The page cursor is an offset, as with Spotify.
func (f *FakeProvider) Search(ctx context.Context, userID string, q models.SearchQuery, opts ...services.CallOption) (*models.SearchResults, error) {
	q = q.Normalize()
	if strings.TrimSpace(q.Query) == "" {
		return nil, shared.ErrMissingArgument
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.authorize(userID, "Search "+q.Query, opts); err != nil {
		return nil, err
	}

	offset := 0
	if q.Page != "" {
		n, err := strconv.Atoi(q.Page)
		if err != nil || n < 0 {
			return nil, shared.ErrInvalidArgument
		}
		offset = n
	}

	words := strings.Fields(strings.ToLower(q.Query))
	var hits []models.ServiceTrack
	for _, t := range f.catalog {
		haystack := strings.ToLower(t.Name + " " + t.Artist)
		match := true
		for _, w := range words {
			if !strings.Contains(haystack, w) {
				match = false
				break
			}
		}
		if match {
			hits = append(hits, t)
		}
	}

	results := &models.SearchResults{Tracks: []models.ServiceTrack{}, Total: len(hits)}
	if offset < len(hits) {
		end := min(offset+q.Limit, len(hits))
		results.Tracks = append(results.Tracks, hits[offset:end]...)
		if end < len(hits) {
			results.NextPage = strconv.Itoa(end)
		}
	}
	return results, nil
}

func (f *FakeProvider) GetRecommendations(ctx context.Context, userID string, seedTrackIDs []string, limit int, opts ...services.CallOption) ([]models.ServiceTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tracks := []models.ServiceTrack{}
	if err := f.authorize(userID, "GetRecommendations", opts); err != nil {
		return tracks, nil
	}
	if limit <= 0 {
		limit = models.DefaultSearchLimit
	}

	for _, t := range f.catalog {
		if len(tracks) == limit {
			break
		}
		if !slices.Contains(seedTrackIDs, t.ID) {
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

var _ services.MusicProvider = (*FakeProvider)(nil)
