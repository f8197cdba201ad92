package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunesync/internal/models"
)

// MsgKind enumerates the messages the picker sends itself.
type MsgKind int

// Msg is the message union of the picker.
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgPlaylistsLoaded MsgKind = iota
	MsgTracksLoaded
	MsgSyncCreated
)

type playlistsLoaded struct {
	playlists []*models.Playlist
	err       error
}

type tracksLoaded struct {
	playlist *models.PlaylistWithTracks
	err      error
}

type syncCreated struct {
	sync *models.PlaylistSync
	err  error
}

// playlistsLoadedMsg is the constructor for [MsgPlaylistsLoaded]
func playlistsLoadedMsg(playlists []*models.Playlist, err error) Msg {
	return Msg{kind: MsgPlaylistsLoaded, data: playlistsLoaded{playlists, err}}
}

// tracksLoadedMsg is the constructor for [MsgTracksLoaded]
func tracksLoadedMsg(playlist *models.PlaylistWithTracks, err error) Msg {
	return Msg{kind: MsgTracksLoaded, data: tracksLoaded{playlist, err}}
}

// syncCreatedMsg is the constructor for [MsgSyncCreated]
func syncCreatedMsg(sync *models.PlaylistSync, err error) Msg {
	return Msg{kind: MsgSyncCreated, data: syncCreated{sync, err}}
}

func (m Msg) Kind() MsgKind {
	return m.kind
}
