// package tasks runs playlist syncs and bulk exports.
//
// The core abstraction is [SyncEngine], which owns the lifecycle of sync edges and pushes a
// source playlist onto its target. Long-running batch operations emit progress updates via
// channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/mirror"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/sync/errgroup"
)

// staleAfter is how long an IN_PROGRESS run may go without an update before another run may take over.
const staleAfter = 10 * time.Minute

// resolveLimit bounds the search hits considered when resolving a track on another provider.
const resolveLimit = 5

// SyncEngine manages sync edges between two playlists owned by the same user.
type SyncEngine struct {
	registry  *services.Registry
	mirror    *mirror.Mirror
	playlists *repositories.PlaylistRepository
	syncs     *repositories.SyncRepository
	logger    *log.Logger
	now       func() time.Time
}

// NewSyncEngine creates a SyncEngine over db.
func NewSyncEngine(db *sql.DB, registry *services.Registry, m *mirror.Mirror, logger *log.Logger) *SyncEngine {
	if logger == nil {
		logger = log.Default()
	}
	return &SyncEngine{
		registry:  registry,
		mirror:    m,
		playlists: repositories.NewPlaylistRepository(db),
		syncs:     repositories.NewSyncRepository(db),
		logger:    shared.WithLogger(logger, "component", "sync"),
		now:       time.Now,
	}
}

// CreateSync records a sync from sourceID to targetID. Both playlists must belong to userID.
func (e *SyncEngine) CreateSync(ctx context.Context, userID, sourceID, targetID string, opts models.SyncOptions) (*models.PlaylistSync, error) {
	if sourceID == "" || targetID == "" {
		return nil, fmt.Errorf("%w: source and target playlist ids", shared.ErrMissingArgument)
	}
	if sourceID == targetID {
		return nil, fmt.Errorf("%w: a playlist cannot sync to itself", shared.ErrInvalidArgument)
	}

	g, _ := errgroup.WithContext(ctx)
	for _, id := range []string{sourceID, targetID} {
		g.Go(func() error {
			_, err := e.playlists.GetForUser(id, userID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sync := models.NewPlaylistSync(userID, sourceID, targetID, opts)
	if err := e.syncs.Create(sync); err != nil {
		return nil, err
	}

	e.logger.Info("sync created", "user", userID, "sync", sync.ID, "source", sourceID, "target", targetID)
	return sync, nil
}

// GetUserSyncs lists the user's syncs with source and target summaries, most recently updated first.
func (e *SyncEngine) GetUserSyncs(ctx context.Context, userID string) ([]models.SyncWithPlaylists, error) {
	return e.syncs.ListForUser(userID)
}

// DeleteSync removes a sync owned by userID.
func (e *SyncEngine) DeleteSync(ctx context.Context, userID, syncID string) error {
	if err := e.syncs.Delete(syncID, userID); err != nil {
		return err
	}
	e.logger.Info("sync deleted", "user", userID, "sync", syncID)
	return nil
}

// PerformSync makes the target playlist match the source on the target's provider.
//
// The outcome is recorded on the sync row. Any failure after the run starts leaves the row FAILED
// with its message and is returned wrapped in [shared.ErrSyncFailed].
func (e *SyncEngine) PerformSync(ctx context.Context, userID, syncID string) (*models.SyncResult, error) {
	sync, err := e.syncs.GetForUser(syncID, userID)
	if err != nil {
		return nil, err
	}

	if err := e.syncs.Start(sync, e.now().Add(-staleAfter)); err != nil {
		return nil, err
	}

	logger := shared.WithLogger(e.logger, "sync", sync.ID, "user", userID)
	logger.Info("sync started")

	result, target, err := e.run(ctx, sync)
	if err != nil {
		return nil, e.fail(logger, sync, err)
	}

	syncedAt := e.now()
	if err := e.syncs.UpdateStatus(sync, models.SyncSuccess, &syncedAt, ""); err != nil {
		return nil, e.fail(logger, sync, fmt.Errorf("failed to record success: %w", err))
	}

	if _, err := e.mirror.PullPlaylistDetail(ctx, userID, target.ID); err != nil {
		logger.Warn("failed to refresh target after sync", "playlist", target.ID, "error", err)
	}

	logger.Info("sync complete",
		"tracks", result.SyncedTracks,
		"new", result.NewTracks,
		"removed", result.RemovedTracks,
		"skipped", result.Skipped,
	)
	return result, nil
}

// fail records err on the sync row and wraps it in [shared.ErrSyncFailed].
func (e *SyncEngine) fail(logger *log.Logger, sync *models.PlaylistSync, err error) error {
	if uerr := e.syncs.UpdateStatus(sync, models.SyncFailed, nil, err.Error()); uerr != nil {
		logger.Error("failed to record sync failure", "error", uerr)
	}
	logger.Warn("sync failed", "error", err)
	return fmt.Errorf("%w: %w", shared.ErrSyncFailed, err)
}

// run pushes the mirrored source tracks onto the target and reports the difference.
//
// The source is read from the local mirror, so only the target's provider needs a connection.
func (e *SyncEngine) run(ctx context.Context, sync *models.PlaylistSync) (*models.SyncResult, *models.Playlist, error) {
	source, err := e.playlists.GetForUser(sync.SourceID, sync.UserID)
	if err != nil {
		return nil, nil, err
	}
	target, err := e.playlists.GetForUser(sync.TargetID, sync.UserID)
	if err != nil {
		return nil, nil, err
	}

	targetProvider, err := e.registry.Get(target.Service)
	if err != nil {
		return nil, nil, err
	}
	targetToken, err := targetProvider.GetValidAccessToken(ctx, sync.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("target %s: %w", target.Service.Slug(), err)
	}

	src, err := e.mirror.LocalPlaylist(ctx, sync.UserID, source.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load source playlist: %w", err)
	}
	if len(src.Tracks) == 0 && src.TrackCount > 0 {
		// Listed but never pulled; an empty push would wipe the target.
		if src, err = e.mirror.PullPlaylistDetail(ctx, sync.UserID, source.ID); err != nil {
			return nil, nil, fmt.Errorf("source tracks are not mirrored, pull the source playlist first: %w", err)
		}
	}
	before, err := e.mirror.PullPlaylistDetail(ctx, sync.UserID, target.ID, services.WithAccessToken(targetToken))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load target playlist: %w", err)
	}

	ids, skipped, err := e.resolve(ctx, targetProvider, sync.UserID, src.Tracks, targetToken)
	if err != nil {
		return nil, nil, err
	}

	if err := targetProvider.ReplacePlaylistTracks(ctx, sync.UserID, target.ServiceID, ids, services.WithAccessToken(targetToken)); err != nil {
		return nil, nil, err
	}

	result := diff(before.ServiceIDs(), ids)
	result.SyncID = sync.ID
	result.Skipped = skipped
	return result, target, nil
}

// resolve maps source tracks to native ids on the target provider.
//
// Tracks already on the target's provider keep their id. Others are searched for by "name artist",
// preferring a hit whose normalized title and artist match, then the first hit. Tracks with no hit are skipped.
func (e *SyncEngine) resolve(ctx context.Context, target services.MusicProvider, userID string, tracks []models.Track, token string) ([]string, int, error) {
	ids := make([]string, 0, len(tracks))
	skipped := 0

	for _, t := range tracks {
		if t.Service == target.Type() {
			ids = append(ids, t.ServiceID)
			continue
		}

		query := strings.TrimSpace(t.Name + " " + t.Artist)
		if query == "" {
			skipped++
			continue
		}

		res, err := target.Search(ctx, userID, models.SearchQuery{
			Query: query,
			Types: []models.SearchType{models.SearchTrack},
			Limit: resolveLimit,
		}, services.WithAccessToken(token))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to resolve %q: %w", query, err)
		}

		if id := bestMatch(t, res.Tracks); id != "" {
			ids = append(ids, id)
		} else {
			e.logger.Debug("no match on target", "track", query, "provider", target.Type().Slug())
			skipped++
		}
	}
	return ids, skipped, nil
}

func bestMatch(t models.Track, hits []models.ServiceTrack) string {
	if len(hits) == 0 {
		return ""
	}
	key := shared.NormalizeTrackKey(t.Name, t.Artist)
	for _, h := range hits {
		if shared.NormalizeTrackKey(h.Name, h.Artist) == key {
			return h.ID
		}
	}
	return hits[0].ID
}

// diff counts the ids added and removed going from before to after.
func diff(before, after []string) *models.SyncResult {
	old := make(map[string]bool, len(before))
	for _, id := range before {
		old[id] = true
	}
	next := make(map[string]bool, len(after))
	for _, id := range after {
		next[id] = true
	}

	result := &models.SyncResult{SyncedTracks: len(after)}
	for id := range next {
		if !old[id] {
			result.NewTracks++
		}
	}
	for id := range old {
		if !next[id] {
			result.RemovedTracks++
		}
	}
	return result
}

// sendProgress sends an update without blocking when no one is listening.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
