package models

import (
	"fmt"
	"strings"
)

// ServiceProfile is the provider account of a connected user.
type ServiceProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// ServicePlaylist is a provider playlist in normalized form.
type ServicePlaylist struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	TrackCount    int    `json:"trackCount"`
	Public        bool   `json:"public"`
	Collaborative bool   `json:"collaborative"`
	OwnerID       string `json:"ownerId"`
	ImageURL      string `json:"imageUrl,omitempty"`
}

// ServiceTrack is a provider track in normalized form. DurationMs is in milliseconds.
type ServiceTrack struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	DurationMs  int    `json:"duration,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	PreviewURL  string `json:"previewUrl,omitempty"`
	ExternalURL string `json:"externalUrl,omitempty"`
}

// PlaylistDetails is a provider playlist with its full track list in provider order.
type PlaylistDetails struct {
	Playlist ServicePlaylist `json:"playlist"`
	Tracks   []ServiceTrack  `json:"tracks"`
}

// NewPlaylistInput describes a playlist to create on a provider.
type NewPlaylistInput struct {
	Name        string `json:"name" validate:"required,max=150"`
	Description string `json:"description,omitempty" validate:"max=300"`
	Public      bool   `json:"public"`
}

// SearchType selects the kinds of results a search returns.
type SearchType string

const (
	SearchTrack    SearchType = "track"
	SearchPlaylist SearchType = "playlist"
)

// ParseSearchTypes splits a comma separated list such as "track,playlist".
// An empty string yields [SearchTrack].
func ParseSearchTypes(s string) ([]SearchType, error) {
	if strings.TrimSpace(s) == "" {
		return []SearchType{SearchTrack}, nil
	}

	var types []SearchType
	for _, part := range strings.Split(s, ",") {
		switch t := SearchType(strings.ToLower(strings.TrimSpace(part))); t {
		case SearchTrack, SearchPlaylist:
			types = append(types, t)
		case "":
		default:
			return nil, fmt.Errorf("unknown search type %q", part)
		}
	}
	if len(types) == 0 {
		types = []SearchType{SearchTrack}
	}
	return types, nil
}

// DefaultSearchLimit applies when a caller passes no limit.
const DefaultSearchLimit = 20

// SearchQuery is a provider search request. Page is an opaque cursor from a previous [SearchResults].
type SearchQuery struct {
	Query string
	Types []SearchType
	Limit int
	Page  string
}

// Normalize fills defaults: track results and a limit of [DefaultSearchLimit].
func (q SearchQuery) Normalize() SearchQuery {
	if len(q.Types) == 0 {
		q.Types = []SearchType{SearchTrack}
	}
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	return q
}

// Has reports whether t was requested.
func (q SearchQuery) Has(t SearchType) bool {
	for _, want := range q.Types {
		if want == t {
			return true
		}
	}
	return false
}

// SearchResults is one page of search hits. NextPage is empty on the last page.
type SearchResults struct {
	Tracks    []ServiceTrack    `json:"tracks"`
	Playlists []ServicePlaylist `json:"playlists,omitempty"`
	NextPage  string            `json:"nextPage,omitempty"`
	Total     int               `json:"total"`
}

// CallbackResult is the outcome of completing an OAuth handshake.
type CallbackResult struct {
	Success bool            `json:"success"`
	Profile *ServiceProfile `json:"profile,omitempty"`
	Message string          `json:"message"`
}

// ProviderInfo describes a registered provider.
type ProviderInfo struct {
	Type ProviderType `json:"type"`
	Name string       `json:"name"`
}
