// Package models defines the domain entities and provider-neutral shapes of tunesync.
//
// The package contains two categories of types:
//
// 1. Provider shapes: normalized views of what a music provider returns
//   - [ServiceProfile] : the account on the provider side
//   - [ServicePlaylist] : playlist metadata
//   - [ServiceTrack] : track metadata
//   - [SearchResults] : a page of search hits with an opaque cursor
//
// 2. Persistent entities: rows in the local store
//   - [User] : identity anchor for everything else
//   - [ServiceConnection] : OAuth credentials for one (user, provider) pair
//   - [Playlist] : mirror of a provider playlist, unique per (user, provider, native id)
//   - [Track] : mirror of a provider track, shared by all users
//   - [PlaylistTrack] : ordered membership of a track in a playlist
//   - [PlaylistSync] : directed sync edge from a source to a target playlist
//
// Persistent entities implement [Model] so repositories can validate them before writing.
package models
