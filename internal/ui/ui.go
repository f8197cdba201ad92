package ui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunesync/internal/models"
)

// ErrNoPlaylists is reported when fewer than two playlists are mirrored.
var ErrNoPlaylists = errors.New("a sync needs two mirrored playlists, pull them first with: tunesync playlists pull <provider>")

// ViewState represents the current view of the picker.
type ViewState int

const (
	SourceView ViewState = iota
	TrackListView
	TargetView
	ConfirmView
	CreatingView
	ResultView
)

// PlaylistSource reads playlists from the local mirror.
type PlaylistSource interface {
	ListPlaylists(ctx context.Context, userID string, provider models.ProviderType) ([]*models.Playlist, error)
	LocalPlaylist(ctx context.Context, userID, playlistID string) (*models.PlaylistWithTracks, error)
}

// SyncCreator links a source playlist to a target.
type SyncCreator interface {
	CreateSync(ctx context.Context, userID, sourceID, targetID string, opts models.SyncOptions) (*models.PlaylistSync, error)
}

// Model is an interactive picker for the two ends of a new sync.
//
// The user picks a source, reviews its mirrored tracks, picks a target among the remaining
// playlists and confirms. Nothing is created until the confirmation.
type Model struct {
	ctx        context.Context
	userID     string
	opts       models.SyncOptions
	playlists  PlaylistSource
	syncs      SyncCreator
	view       ViewState
	width      int
	height     int
	all        []*models.Playlist
	sourceList list.Model
	trackList  list.Model
	targetList list.Model
	source     *models.PlaylistWithTracks
	target     *models.Playlist
	created    *models.PlaylistSync
	err        error
	help       help.Model
	keys       keyMap
}

// NewModel creates a picker acting for userID. opts is passed through to the created sync.
func NewModel(ctx context.Context, userID string, playlists PlaylistSource, syncs SyncCreator, opts models.SyncOptions) *Model {
	return &Model{
		ctx:       ctx,
		userID:    userID,
		opts:      opts,
		playlists: playlists,
		syncs:     syncs,
		view:      SourceView,
		width:     80,
		height:    24,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Created is the sync made by the picker, nil if the user quit first.
func (m *Model) Created() *models.PlaylistSync {
	return m.created
}

// Err is the error that ended the picker, if any.
func (m *Model) Err() error {
	return m.err
}

func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.Err(fmt.Sprintf("Error: %v", m.err)) + "\n\n" + styles.Help("Press q to quit")
	}

	switch m.view {
	case SourceView:
		if m.all == nil {
			return styles.Title("Loading playlists...")
		}
		return m.renderList(m.sourceList, m.keys.enter, m.keys.filter, m.keys.quit)
	case TrackListView:
		next := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "choose target"))
		return m.renderList(m.trackList, next, m.keys.back, m.keys.quit)
	case TargetView:
		return m.renderList(m.targetList, m.keys.enter, m.keys.back, m.keys.quit)
	case ConfirmView:
		return m.renderConfirm()
	case CreatingView:
		return styles.Title("Creating sync...")
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

// Init loads the mirrored playlists.
func (m *Model) Init() tea.Cmd {
	return m.loadPlaylists()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case SourceView:
			return m.handleSourceKeys(msg)
		case TrackListView:
			return m.handleTrackListKeys(msg)
		case TargetView:
			return m.handleTargetKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch data := msg.data.(type) {
	case playlistsLoaded:
		if data.err == nil && len(data.playlists) < 2 {
			data.err = ErrNoPlaylists
		}
		if data.err != nil {
			m.err = data.err
			return m, tea.Quit
		}
		m.all = data.playlists
		m.sourceList = m.newList("Pick the source playlist", playlistItems(m.all, ""))
		return m, nil

	case tracksLoaded:
		if data.err != nil {
			m.err = data.err
			m.view = SourceView
			return m, nil
		}
		m.source = data.playlist
		m.trackList = m.newList(fmt.Sprintf("Tracks in '%s' (%s)", data.playlist.Name, data.playlist.Service.Slug()), trackItems(data.playlist.Tracks))
		m.view = TrackListView
		return m, nil

	case syncCreated:
		m.created = data.sync
		m.err = data.err
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

func (m *Model) handleSourceKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.all == nil {
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.sourceList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter":
		if item, ok := m.sourceList.SelectedItem().(playlistItem); ok {
			m.err = nil
			return m, m.loadTracks(item.playlist.ID)
		}
		return m, nil
	}
	return m.updateLists(msg)
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.trackList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = SourceView
		m.source = nil
		return m, nil
	case "enter":
		m.targetList = m.newList(fmt.Sprintf("Sync '%s' into...", m.source.Name), playlistItems(m.all, m.source.ID))
		m.view = TargetView
		return m, nil
	}
	return m.updateLists(msg)
}

func (m *Model) handleTargetKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.targetList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = TrackListView
		return m, nil
	case "enter":
		if item, ok := m.targetList.SelectedItem().(playlistItem); ok {
			m.target = item.playlist
			m.view = ConfirmView
		}
		return m, nil
	}
	return m.updateLists(msg)
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "n", "esc":
		m.target = nil
		m.view = TargetView
		return m, nil
	case "y":
		m.view = CreatingView
		return m, m.createSync()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "enter":
		return m, tea.Quit
	case "r":
		m.view = SourceView
		m.source = nil
		m.target = nil
		m.created = nil
		m.err = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case SourceView:
		m.sourceList, cmd = m.sourceList.Update(msg)
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	case TargetView:
		m.targetList, cmd = m.targetList.Update(msg)
	}
	return m, cmd
}

func (m *Model) newList(title string, items []list.Item) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), m.width-4, m.height-8)
	l.Title = title
	l.SetShowHelp(false)
	return l
}

func (m *Model) resize() {
	for _, l := range []*list.Model{&m.sourceList, &m.trackList, &m.targetList} {
		if l.Title == "" { // not built yet
			continue
		}
		l.SetSize(m.width-4, m.height-8)
	}
}

func (m *Model) loadPlaylists() tea.Cmd {
	return func() tea.Msg {
		playlists, err := m.playlists.ListPlaylists(m.ctx, m.userID, "")
		return playlistsLoadedMsg(playlists, err)
	}
}

func (m *Model) loadTracks(playlistID string) tea.Cmd {
	return func() tea.Msg {
		playlist, err := m.playlists.LocalPlaylist(m.ctx, m.userID, playlistID)
		return tracksLoadedMsg(playlist, err)
	}
}

func (m *Model) createSync() tea.Cmd {
	sourceID, targetID := m.source.ID, m.target.ID
	return func() tea.Msg {
		sync, err := m.syncs.CreateSync(m.ctx, m.userID, sourceID, targetID, m.opts)
		return syncCreatedMsg(sync, err)
	}
}

func (m *Model) renderList(l list.Model, keys ...key.Binding) string {
	return fmt.Sprintf("%s\n\n%s", l.View(), m.help.ShortHelpView(keys))
}

func (m *Model) renderConfirm() string {
	title := styles.Title(fmt.Sprintf("Sync '%s' into '%s'?", m.source.Name, m.target.Name))
	info := fmt.Sprintf("\nSource: %s (%s, %d tracks)\nTarget: %s (%s, %d tracks)\n",
		m.source.Name, m.source.Service.Slug(), len(m.source.Tracks),
		m.target.Name, m.target.Service.Slug(), m.target.TrackCount,
	)
	warn := styles.Warn("Running the sync replaces every track of the target.")
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s\n\n%s", title, info, warn, helpView)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})
	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.Err(fmt.Sprintf("Sync not created: %v", m.err)), helpView)
	}
	if m.created == nil {
		return fmt.Sprintf("%s\n\n%s", styles.Err("No sync created"), helpView)
	}
	return fmt.Sprintf("%s\n%s\n\n%s",
		styles.OK("Created sync "+m.created.ID),
		styles.Help("Run it with: tunesync sync run "+m.created.ID),
		helpView,
	)
}
