// package services defines the [MusicProvider] contract every music provider implements,
// the Spotify and YouTube adapters, the token refresher they share and the [Registry] that
// looks them up by [models.ProviderType].
package services

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"golang.org/x/oauth2"
)

// MusicProvider defines the capabilities of a music streaming provider.
//
// Playlist, track and search operations accept [WithAccessToken] to reuse a token the caller already
// resolved. Without it the provider resolves one with [MusicProvider.GetValidAccessToken].
type MusicProvider interface {
	// Type returns the provider identifier.
	Type() models.ProviderType

	// Name returns the display name (e.g., "Spotify").
	Name() string

	// GetAuthURL builds the authorization URL embedding the client id, redirect URI, scopes and state.
	GetAuthURL(state string) string

	// HandleCallback exchanges an authorization code, fetches the profile and upserts the connection for userID.
	HandleCallback(ctx context.Context, code, userID string) (*models.CallbackResult, error)

	// GetUserProfile fetches the profile of the account that owns accessToken.
	GetUserProfile(ctx context.Context, accessToken string) (*models.ServiceProfile, error)

	// GetValidAccessToken returns a token for userID, refreshing and persisting it when close to expiry.
	GetValidAccessToken(ctx context.Context, userID string) (string, error)

	// RefreshAccessToken trades a refresh token for a new access token.
	// The result may carry no refresh token.
	RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// Disconnect removes the stored connection for userID. It is idempotent.
	Disconnect(ctx context.Context, userID string) error

	GetPlaylists(ctx context.Context, userID string, opts ...CallOption) ([]models.ServicePlaylist, error)
	GetPlaylistDetails(ctx context.Context, userID, playlistID string, opts ...CallOption) (*models.PlaylistDetails, error)
	CreatePlaylist(ctx context.Context, userID string, in models.NewPlaylistInput, opts ...CallOption) (*models.ServicePlaylist, error)
	AddTracksToPlaylist(ctx context.Context, userID, playlistID string, trackIDs []string, opts ...CallOption) error

	// ReplacePlaylistTracks makes the playlist contain exactly trackIDs in order.
	// An empty list clears it.
	ReplacePlaylistTracks(ctx context.Context, userID, playlistID string, trackIDs []string, opts ...CallOption) error

	Search(ctx context.Context, userID string, q models.SearchQuery, opts ...CallOption) (*models.SearchResults, error)

	// GetRecommendations returns up to limit tracks related to the seeds.
	// Provider failures are logged and yield an empty list.
	GetRecommendations(ctx context.Context, userID string, seedTrackIDs []string, limit int, opts ...CallOption) ([]models.ServiceTrack, error)
}

// ConnectionStore persists provider credentials. It is implemented by repositories.ConnectionRepository.
type ConnectionStore interface {
	Get(userID string, service models.ProviderType) (*models.ServiceConnection, error)
	Upsert(conn *models.ServiceConnection) error
	UpdateTokens(conn *models.ServiceConnection) error
	Delete(userID string, service models.ProviderType) error
}

// Deps are the collaborators shared by every adapter.
type Deps struct {
	Connections ConnectionStore
	HTTPClient  *http.Client
	Logger      *log.Logger
	Now         func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.HTTPClient == nil {
		d.HTTPClient = http.DefaultClient
	}
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// CallOption adjusts a single provider call.
type CallOption func(*callOptions)

type callOptions struct {
	accessToken string
}

// WithAccessToken supplies a pre-fetched access token, skipping the refresh check.
func WithAccessToken(token string) CallOption {
	return func(o *callOptions) {
		o.accessToken = token
	}
}

// AccessTokenFrom returns the token supplied with [WithAccessToken], or "" when none was given.
func AccessTokenFrom(opts ...CallOption) string {
	return applyCallOptions(opts).accessToken
}

func applyCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option customizes an adapter at construction. Tests use it to point adapters at local servers.
type Option func(*adapterOptions)

type adapterOptions struct {
	apiURL   string
	endpoint *oauth2.Endpoint
}

// WithAPIURL overrides the provider REST base URL.
func WithAPIURL(u string) Option {
	return func(o *adapterOptions) {
		o.apiURL = u
	}
}

// WithAuthEndpoint overrides the OAuth authorize and token URLs.
func WithAuthEndpoint(e oauth2.Endpoint) Option {
	return func(o *adapterOptions) {
		o.endpoint = &e
	}
}

func applyOptions(opts []Option) adapterOptions {
	var o adapterOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// bearerClient returns a copy of base that sends token on every request.
// Timeout, redirect policy and the rate-limited transport of base are kept.
func bearerClient(base *http.Client, token string) *http.Client {
	return &http.Client{
		Timeout:       base.Timeout,
		CheckRedirect: base.CheckRedirect,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   base.Transport,
		},
	}
}

func clampLimit(limit, max int) int {
	if limit <= 0 {
		limit = models.DefaultSearchLimit
	}
	if limit > max {
		limit = max
	}
	return limit
}
