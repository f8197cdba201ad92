// Package tasks runs the long-lived operations of tunesync.
//
// # Syncs
//
// A sync is a directed edge between two playlists owned by the same user. [SyncEngine.PerformSync]
// makes the target contain exactly the source's tracks in order:
//
//  1. Load the sync, checking ownership, and move it to IN_PROGRESS
//  2. Resolve valid access tokens for the source and target providers
//  3. Pull both playlists from their providers into the local mirror
//  4. Map source tracks to target ids, searching the target when the providers differ
//  5. Replace the target's tracks, record SUCCESS and re-pull the target
//
// Any failure after step 1 records FAILED with the error message.
//
// # Batches
//
// [SyncEngine.SyncAll] and [Exporter.ExportPlaylists] fan work out to a bounded worker pool paced by a
// golang.org/x/time/rate limiter. Both report progress through an optional channel of [ProgressUpdate]. Sends use
// select with default so a slow reader never blocks the pool.
package tasks
