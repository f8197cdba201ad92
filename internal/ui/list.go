package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/tunesync/internal/models"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem wraps [models.Playlist] to implement [list.Item].
type playlistItem struct {
	playlist *models.Playlist
}

func (i playlistItem) FilterValue() string {
	return i.playlist.Name + " " + i.playlist.Service.Slug()
}

func (i playlistItem) Title() string { return i.playlist.Name }

func (i playlistItem) Description() string {
	desc := fmt.Sprintf("%s • %d tracks", i.playlist.Service.Slug(), i.playlist.TrackCount)
	if i.playlist.Description != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.playlist.Description)
	}
	return desc
}

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track models.Track
}

func (i trackItem) FilterValue() string { return i.track.Name + " " + i.track.Artist }
func (i trackItem) Title() string       { return i.track.Name }
func (i trackItem) Description() string {
	desc := i.track.Artist
	if i.track.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album)
	}
	if i.track.DurationMs > 0 {
		d := time.Duration(i.track.DurationMs) * time.Millisecond
		desc = fmt.Sprintf("%s • %d:%02d", desc, int(d.Minutes()), int(d.Seconds())%60)
	}
	return desc
}

func playlistItems(playlists []*models.Playlist, exclude string) []list.Item {
	items := make([]list.Item, 0, len(playlists))
	for _, p := range playlists {
		if p.ID == exclude {
			continue
		}
		items = append(items, playlistItem{playlist: p})
	}
	return items
}

func trackItems(tracks []models.Track) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{track: t}
	}
	return items
}
