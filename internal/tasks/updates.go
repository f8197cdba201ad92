package tasks

import (
	"fmt"
)

// ProgressUpdate is one event of a long-running task, sent to whoever renders progress.
//
// Message carries no step counter; renderers combine it with Step and Total.
type ProgressUpdate struct {
	Phase   Phase
	Step    int
	Total   int
	Message string
	Data    any // *models.SyncResult for completed syncs
}

type Phase int

const (
	QueueSyncs Phase = iota
	RunSync
	FetchPlaylist
	ExportPlaylist
)

var phaseNames = [...]string{
	QueueSyncs:     "queue_syncs",
	RunSync:        "run_sync",
	FetchPlaylist:  "fetch_playlist",
	ExportPlaylist: "export_playlist",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return ""
	}
	return phaseNames[p]
}

func newUpdate(phase Phase, step, total int, format string, args ...any) ProgressUpdate {
	return ProgressUpdate{Phase: phase, Step: step, Total: total, Message: fmt.Sprintf(format, args...)}
}

func queueSyncsUpdate(total int) ProgressUpdate {
	return newUpdate(QueueSyncs, 0, total, "Queueing %d syncs...", total)
}

func syncCompletedUpdate(step, total int, run SyncRun) ProgressUpdate {
	u := newUpdate(RunSync, step, total, "✓ %s (%d tracks)", run.label(), run.Result.SyncedTracks)
	u.Data = run.Result
	return u
}

func syncFailedUpdate(step, total int, run SyncRun) ProgressUpdate {
	return newUpdate(RunSync, step, total, "✗ %s: %v", run.label(), run.Err)
}

func fetchPlaylistUpdate(step, total int, id string) ProgressUpdate {
	return newUpdate(FetchPlaylist, step, total, "Loading playlist %s...", id)
}

func exportCompletedUpdate(step, total int, name string, files int) ProgressUpdate {
	return newUpdate(ExportPlaylist, step, total, "✓ %s (%d files)", name, files)
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return newUpdate(ExportPlaylist, step, total, "✗ %s: %v", name, err)
}
