package models

import (
	"fmt"
	"time"
)

// SyncStatus is the lifecycle state of a [PlaylistSync].
type SyncStatus string

const (
	SyncNeverSynced SyncStatus = "NEVER_SYNCED"
	SyncPending     SyncStatus = "PENDING"
	SyncInProgress  SyncStatus = "IN_PROGRESS"
	SyncSuccess     SyncStatus = "SUCCESS"
	SyncFailed      SyncStatus = "FAILED"
)

// CanStart reports whether a run may begin from this state.
// Only a run already in progress blocks a new one.
func (s SyncStatus) CanStart() bool {
	return s != SyncInProgress
}

func (s SyncStatus) Valid() bool {
	switch s {
	case SyncNeverSynced, SyncPending, SyncInProgress, SyncSuccess, SyncFailed:
		return true
	}
	return false
}

// SyncOptions carries user supplied settings for a new sync.
type SyncOptions struct {
	Name string `json:"name,omitempty"`
}

// PlaylistSync is a directed edge asking for target to mirror source.
type PlaylistSync struct {
	Base
	Sequence     int        `json:"-"`
	UserID       string     `json:"userId"`
	SourceID     string     `json:"sourceId"`
	TargetID     string     `json:"targetId"`
	Name         string     `json:"name,omitempty"`
	Status       SyncStatus `json:"status"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
}

// NewPlaylistSync creates an edge in the never-synced state.
func NewPlaylistSync(userID, sourceID, targetID string, opts SyncOptions) *PlaylistSync {
	return &PlaylistSync{
		UserID:   userID,
		SourceID: sourceID,
		TargetID: targetID,
		Name:     opts.Name,
		Status:   SyncNeverSynced,
	}
}

func (s *PlaylistSync) Validate() error {
	switch {
	case s.UserID == "":
		return fmt.Errorf("user id is required")
	case s.SourceID == "" || s.TargetID == "":
		return fmt.Errorf("source and target are required")
	case s.SourceID == s.TargetID:
		return fmt.Errorf("source and target must differ")
	case !s.Status.Valid():
		return fmt.Errorf("invalid status %q", s.Status)
	}
	return nil
}

// PlaylistSummary is the compact playlist view joined onto sync listings.
type PlaylistSummary struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Service    ProviderType `json:"service"`
	ServiceID  string       `json:"serviceId"`
	TrackCount int          `json:"trackCount"`
}

// SyncWithPlaylists is a sync joined with its source and target summaries.
type SyncWithPlaylists struct {
	PlaylistSync
	Source PlaylistSummary `json:"source"`
	Target PlaylistSummary `json:"target"`
}

// SyncResult reports what a sync run changed on the target.
type SyncResult struct {
	SyncID        string `json:"syncId"`
	SyncedTracks  int    `json:"syncedTracks"`
	NewTracks     int    `json:"newTracks"`
	RemovedTracks int    `json:"removedTracks"`
	Skipped       int    `json:"skipped"`
}
