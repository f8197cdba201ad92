// Package ui styles command line output with lipgloss: status lines, sync states,
// progress counters and bordered tables. It also holds the bubbletea picker used to
// choose both playlists of a new sync.
package ui
