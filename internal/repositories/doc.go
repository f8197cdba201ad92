// Package repositories implements SQLite persistence for all domain entities.
//
// Each repository wraps a [*sql.DB] and validates the model before writing.
// Lookups that miss return errors wrapping [shared.ErrNotFound], so callers can branch with [errors.Is].
//
// Key Implementations:
//   - [UserRepository] : identity anchors with email lookups
//   - [ConnectionRepository] : OAuth credentials, unique per (user, service)
//   - [PlaylistRepository] : playlist mirror, upserted on (user, service, service_id)
//   - [TrackRepository] : shared track mirror, upserted on (service, service_id)
//   - [PlaylistTrackRepository] : ordered playlist membership, rewritten wholesale
//   - [SyncRepository] : sync edges and their run state
//
// Sequence numbers provide stable, human-readable ordering (e.g., user #42, playlist #15) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
