package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/tunesync/internal/models"
	"golang.org/x/time/rate"
)

// SyncAllOpts configures a batch run of every sync a user owns.
type SyncAllOpts struct {
	NumWorkers int     // Concurrent runs (default: 3, max: 10)
	RateLimit  float64 // Runs started per second (default: 2)
}

// SyncRun is the outcome of one sync within [SyncEngine.SyncAll].
type SyncRun struct {
	SyncID string
	Name   string
	Result *models.SyncResult
	Err    error
}

func (r SyncRun) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.SyncID
}

// SyncAllResult summarizes a batch run.
type SyncAllResult struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int // Already running when the batch started
	Runs      []SyncRun
}

// SyncAll runs every sync owned by userID through a bounded worker pool.
//
// Each sync is marked PENDING before any worker starts. Syncs still pending when ctx is
// cancelled are marked FAILED. Individual failures are reported in the result, not as an error.
func (e *SyncEngine) SyncAll(ctx context.Context, userID string, progress chan<- ProgressUpdate, opts SyncAllOpts) (*SyncAllResult, error) {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 3
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 2.0
	}

	ids, err := e.syncs.ListIDsForUser(userID)
	if err != nil {
		return nil, err
	}

	result := &SyncAllResult{Total: len(ids), Runs: make([]SyncRun, 0, len(ids))}
	sendProgress(progress, queueSyncsUpdate(len(ids)))

	queued := make([]*models.PlaylistSync, 0, len(ids))
	for _, id := range ids {
		s, err := e.syncs.GetForUser(id, userID)
		if err != nil {
			return nil, err
		}
		if !s.Status.CanStart() {
			result.Skipped++
			e.logger.Debug("sync already running, skipping", "sync", s.ID)
			continue
		}
		if err := e.syncs.UpdateStatus(s, models.SyncPending, nil, ""); err != nil {
			return nil, err
		}
		queued = append(queued, s)
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan *models.PlaylistSync)
	results := make(chan SyncRun, len(queued))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.syncWorker(ctx, &wg, userID, jobs, results)
	}

	go func() {
		defer close(jobs)
		for i, s := range queued {
			if err := limiter.Wait(ctx); err != nil {
				e.cancelPending(queued[i:])
				return
			}
			select {
			case jobs <- s:
			case <-ctx.Done():
				e.cancelPending(queued[i:])
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for run := range results {
		completed++
		result.Runs = append(result.Runs, run)
		if run.Err != nil {
			result.Failed++
			sendProgress(progress, syncFailedUpdate(completed, len(queued), run))
		} else {
			result.Succeeded++
			sendProgress(progress, syncCompletedUpdate(completed, len(queued), run))
		}
	}

	// Syncs that never reached a worker.
	result.Failed += len(queued) - completed

	e.logger.Info("sync batch complete",
		"user", userID,
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("sync batch interrupted: %w", err)
	}
	return result, nil
}

// syncWorker runs syncs from jobs until the channel closes.
func (e *SyncEngine) syncWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	userID string,
	jobs <-chan *models.PlaylistSync,
	results chan<- SyncRun,
) {
	defer wg.Done()

	for s := range jobs {
		res, err := e.PerformSync(ctx, userID, s.ID)
		results <- SyncRun{SyncID: s.ID, Name: s.Name, Result: res, Err: err}
	}
}

// cancelPending marks syncs that never started as failed.
func (e *SyncEngine) cancelPending(pending []*models.PlaylistSync) {
	for _, s := range pending {
		if err := e.syncs.UpdateStatus(s, models.SyncFailed, nil, "cancelled before start"); err != nil {
			e.logger.Error("failed to mark sync cancelled", "sync", s.ID, "error", err)
		}
	}
}
