package tasks

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/formatter"
	"github.com/desertthunder/tunesync/internal/mirror"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/time/rate"
)

// ExportOpts contains configuration for bulk playlist exports.
type ExportOpts struct {
	Format     string  // Export format: json, csv, markdown, txt
	OutputDir  string  // Base output directory (default: tunesync_export_{epoch})
	NumWorkers int     // Concurrent workers (default: 5, max: 10)
	RateLimit  float64 // Playlist loads per second (default: 5)
	Refresh    bool    // Pull each playlist from its provider before writing it
	Covers     bool    // Download cover images for markdown exports
}

// ExportResult summarizes a bulk export.
type ExportResult struct {
	formatter.Manifest
	ManifestPath string
}

type exportJob struct {
	playlist *models.PlaylistWithTracks
}

// Exporter writes mirrored playlists to disk.
type Exporter struct {
	mirror *mirror.Mirror
	client *http.Client
	logger *log.Logger
}

// NewExporter creates an Exporter. client is used to download cover images.
func NewExporter(m *mirror.Mirror, client *http.Client, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Exporter{mirror: m, client: client, logger: shared.WithLogger(logger, "component", "export")}
}

// ExportPlaylists exports the user's playlists concurrently with rate limiting and progress tracking.
//
// Partial failures are recorded in the manifest written to {OutputDir}/export_manifest.json.
func (x *Exporter) ExportPlaylists(
	ctx context.Context,
	progress chan<- ProgressUpdate,
	userID string,
	ids []string,
	opts ExportOpts,
) (*ExportResult, error) {
	if opts.Format == "" {
		opts.Format = "json"
	}
	if !formatter.ValidFormat(opts.Format) {
		return nil, fmt.Errorf("%w: export format %q", shared.ErrInvalidFlag, opts.Format)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("tunesync_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 5
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &ExportResult{Manifest: formatter.Manifest{
		ExportedAt:      time.Now().UTC(),
		Format:          opts.Format,
		OutputDirectory: opts.OutputDir,
		TotalPlaylists:  len(ids),
		Playlists:       make([]formatter.ManifestEntry, 0, len(ids)),
	}}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan exportJob, len(ids))
	results := make(chan formatter.ManifestEntry, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go x.exportWorker(ctx, &wg, jobs, results, opts)
	}

	go func() {
		defer close(jobs)
		for i, id := range ids {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			sendProgress(progress, fetchPlaylistUpdate(i+1, len(ids), id))

			playlist, err := x.load(ctx, userID, id, opts.Refresh)
			if err != nil {
				results <- formatter.Entry(id, fmt.Sprintf("Unknown (%s)", id), nil, fmt.Errorf("failed to load playlist: %w", err))
				continue
			}
			jobs <- exportJob{playlist: playlist}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for entry := range results {
		completed++
		result.Playlists = append(result.Playlists, entry)

		if entry.Error == "" {
			result.SuccessfulExports++
			sendProgress(progress, exportCompletedUpdate(completed, len(ids), entry.PlaylistName, len(entry.Files)))
		} else {
			result.FailedExports++
			sendProgress(progress, exportFailedUpdate(completed, len(ids), entry.PlaylistName, fmt.Errorf("%s", entry.Error)))
		}
	}

	result.FailedExports += len(ids) - completed

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(&result.Manifest, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("export interrupted: %w", err)
	}
	return result, nil
}

func (x *Exporter) load(ctx context.Context, userID, id string, refresh bool) (*models.PlaylistWithTracks, error) {
	if refresh {
		return x.mirror.PullPlaylistDetail(ctx, userID, id)
	}
	return x.mirror.LocalPlaylist(ctx, userID, id)
}

// exportWorker is a worker goroutine that exports playlists from the jobs channel.
func (x *Exporter) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan exportJob,
	results chan<- formatter.ManifestEntry,
	opts ExportOpts,
) {
	defer wg.Done()

	for job := range jobs {
		files, err := x.exportOne(ctx, job.playlist, opts)
		results <- formatter.Entry(job.playlist.ID, job.playlist.Name, files, err)
	}
}

// exportOne writes a single playlist in the requested format.
func (x *Exporter) exportOne(ctx context.Context, p *models.PlaylistWithTracks, opts ExportOpts) ([]string, error) {
	switch opts.Format {
	case "csv":
		res, err := formatter.WriteCSVExport(p, filepath.Join(opts.OutputDir, p.ID))
		if err != nil {
			return nil, fmt.Errorf("CSV export failed: %w", err)
		}
		return []string{res.TracksFile, res.MetadataFile}, nil

	case "markdown":
		var cover []byte
		if opts.Covers && p.ImageURL != "" {
			data, err := formatter.DownloadImage(ctx, x.client, p.ImageURL)
			if err != nil {
				x.logger.Warn("cover download failed", "playlist", p.ID, "error", err)
			} else {
				cover = data
			}
		}

		res, err := formatter.WriteMarkdownExport(p, filepath.Join(opts.OutputDir, p.ID), cover)
		if err != nil {
			return nil, fmt.Errorf("markdown export failed: %w", err)
		}
		if res.Warning != nil {
			x.logger.Warn("markdown export warning", "playlist", p.ID, "error", res.Warning)
		}
		return res.Files, nil

	case "txt":
		path, err := formatter.WriteTextExport(p, filepath.Join(opts.OutputDir, p.ID+"_tracks.txt"))
		if err != nil {
			return nil, fmt.Errorf("text export failed: %w", err)
		}
		return []string{path}, nil

	default:
		path, err := formatter.WriteJSONExport(p, filepath.Join(opts.OutputDir, p.ID+".json"))
		if err != nil {
			return nil, fmt.Errorf("JSON export failed: %w", err)
		}
		return []string{path}, nil
	}
}
