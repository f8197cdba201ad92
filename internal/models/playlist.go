package models

import "fmt"

// Playlist is the local mirror of a provider playlist.
//
// The provider stays the source of truth, the row may be stale.
type Playlist struct {
	Base
	Sequence      int          `json:"-"`
	UserID        string       `json:"userId"`
	Service       ProviderType `json:"service"`
	ServiceID     string       `json:"serviceId"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	TrackCount    int          `json:"trackCount"`
	Public        bool         `json:"public"`
	Collaborative bool         `json:"collaborative"`
	OwnerID       string       `json:"ownerId"`
	ImageURL      string       `json:"imageUrl,omitempty"`
}

// NewPlaylist maps a provider playlist onto a local row for userID.
func NewPlaylist(userID string, service ProviderType, sp ServicePlaylist) *Playlist {
	return &Playlist{
		UserID:        userID,
		Service:       service,
		ServiceID:     sp.ID,
		Name:          sp.Name,
		Description:   sp.Description,
		TrackCount:    sp.TrackCount,
		Public:        sp.Public,
		Collaborative: sp.Collaborative,
		OwnerID:       sp.OwnerID,
		ImageURL:      sp.ImageURL,
	}
}

func (p *Playlist) Validate() error {
	switch {
	case p.UserID == "":
		return fmt.Errorf("user id is required")
	case !p.Service.Valid():
		return fmt.Errorf("invalid service %q", p.Service)
	case p.ServiceID == "":
		return fmt.Errorf("service id is required")
	case p.TrackCount < 0:
		return fmt.Errorf("track count cannot be negative")
	}
	return nil
}

// Summary returns the compact form used when listing syncs.
func (p *Playlist) Summary() PlaylistSummary {
	return PlaylistSummary{ID: p.ID, Name: p.Name, Service: p.Service, ServiceID: p.ServiceID, TrackCount: p.TrackCount}
}

// Track is the local mirror of a provider track. It is not scoped to a user.
type Track struct {
	Base
	Service     ProviderType `json:"service"`
	ServiceID   string       `json:"serviceId"`
	Name        string       `json:"name"`
	Artist      string       `json:"artist"`
	Album       string       `json:"album,omitempty"`
	DurationMs  int          `json:"durationMs,omitempty"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	PreviewURL  string       `json:"previewUrl,omitempty"`
	ExternalURL string       `json:"externalUrl,omitempty"`
}

// NewTrack maps a provider track onto a local row.
func NewTrack(service ProviderType, st ServiceTrack) *Track {
	return &Track{
		Service:     service,
		ServiceID:   st.ID,
		Name:        st.Name,
		Artist:      st.Artist,
		Album:       st.Album,
		DurationMs:  st.DurationMs,
		ImageURL:    st.ImageURL,
		PreviewURL:  st.PreviewURL,
		ExternalURL: st.ExternalURL,
	}
}

func (t *Track) Validate() error {
	switch {
	case !t.Service.Valid():
		return fmt.Errorf("invalid service %q", t.Service)
	case t.ServiceID == "":
		return fmt.Errorf("service id is required")
	case t.Name == "":
		return fmt.Errorf("track name is required")
	}
	return nil
}

// ServiceTrack converts the row back to the provider-neutral shape.
func (t *Track) ServiceTrack() ServiceTrack {
	return ServiceTrack{
		ID:          t.ServiceID,
		Name:        t.Name,
		Artist:      t.Artist,
		Album:       t.Album,
		DurationMs:  t.DurationMs,
		ImageURL:    t.ImageURL,
		PreviewURL:  t.PreviewURL,
		ExternalURL: t.ExternalURL,
	}
}

// PlaylistTrack places a track at an ordinal position within a playlist.
type PlaylistTrack struct {
	PlaylistID string `json:"playlistId"`
	TrackID    string `json:"trackId"`
	Position   int    `json:"position"`
}

// PlaylistWithTracks is a playlist and its tracks in position order.
type PlaylistWithTracks struct {
	Playlist
	Tracks []Track `json:"tracks"`
}

// ServiceIDs returns the native ids of the tracks in order.
func (p *PlaylistWithTracks) ServiceIDs() []string {
	ids := make([]string, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		ids = append(ids, t.ServiceID)
	}
	return ids
}
