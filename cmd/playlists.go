package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PlaylistsPull refreshes the local mirror with every playlist of a provider.
func (r *Runner) PlaylistsPull(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}
	p, err := r.provider(cmd.Args().First())
	if err != nil {
		return err
	}

	r.logger.Info("pulling playlists", "provider", p.Type())
	playlists, err := r.mirror.PullPlaylists(ctx, user.ID, p.Type())
	if err != nil {
		return err
	}

	return r.emit(cmd, playlists, func() {
		r.writePlain("%s\n", r.palette.OK(fmt.Sprintf("Pulled %d playlists from %s", len(playlists), p.Name())))
		if len(playlists) > 0 {
			r.writeTable(playlistHeaders, playlistRows(playlists))
		}
	})
}

// PlaylistsList prints mirrored playlists without contacting any provider.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	var service models.ProviderType
	if s := cmd.String("service"); s != "" {
		if service, err = models.ParseProviderType(s); err != nil {
			return fmt.Errorf("%w: --service %s", shared.ErrInvalidFlag, s)
		}
	}

	playlists, err := r.mirror.ListPlaylists(ctx, user.ID, service)
	if err != nil {
		return err
	}

	return r.emit(cmd, playlists, func() {
		if len(playlists) == 0 {
			r.writePlain("%s\n", r.palette.Warn("No mirrored playlists, run: tunesync playlists pull <provider>"))
			return
		}
		r.writeTable(playlistHeaders, playlistRows(playlists))
	})
}

// PlaylistsShow prints a mirrored playlist with its tracks. --refresh pulls it first.
func (r *Runner) PlaylistsShow(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	var playlist *models.PlaylistWithTracks
	if cmd.Bool("refresh") {
		playlist, err = r.mirror.PullPlaylistDetail(ctx, user.ID, id)
	} else {
		playlist, err = r.mirror.LocalPlaylist(ctx, user.ID, id)
	}
	if err != nil {
		return err
	}

	return r.emit(cmd, playlist, func() {
		r.writePlainHeader(playlist.Name)
		if playlist.Description != "" {
			r.writePlain("%s\n", r.palette.Help(playlist.Description))
		}
		r.writePlain("%s · %s · %d tracks\n", playlist.Service.Slug(), shared.VisibilityString(playlist.Public), len(playlist.Tracks))
		if len(playlist.Tracks) > 0 {
			r.writeTable([]string{"#", "Title", "Artist", "Album", "Length", "ID"}, trackRows(playlist.Tracks))
		}
	})
}

// PlaylistsExport writes mirrored playlists to disk. Without ids every mirrored playlist is exported.
func (r *Runner) PlaylistsExport(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		var service models.ProviderType
		if s := cmd.String("service"); s != "" {
			if service, err = models.ParseProviderType(s); err != nil {
				return fmt.Errorf("%w: --service %s", shared.ErrInvalidFlag, s)
			}
		}
		playlists, err := r.mirror.ListPlaylists(ctx, user.ID, service)
		if err != nil {
			return err
		}
		for _, p := range playlists {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		r.writePlain("%s\n", r.palette.Warn("Nothing to export"))
		return nil
	}

	progress, wait := r.progressPrinter()
	result, err := r.exporter.ExportPlaylists(ctx, progress, user.ID, ids, tasks.ExportOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
		RateLimit:  cmd.Float("rate"),
		Refresh:    cmd.Bool("refresh"),
		Covers:     cmd.Bool("covers"),
	})
	wait()
	if result == nil {
		return err
	}

	summary := fmt.Sprintf("Exported %d/%d playlists to %s", result.SuccessfulExports, result.TotalPlaylists, result.OutputDirectory)
	if result.FailedExports > 0 {
		r.writePlain("%s\n", r.palette.Warn(summary))
		for _, entry := range result.Playlists {
			if entry.Error != "" {
				r.writePlain("  %s: %s\n", entry.PlaylistName, entry.Error)
			}
		}
	} else {
		r.writePlain("%s\n", r.palette.OK(summary))
	}
	if result.ManifestPath != "" {
		r.writePlain("Manifest: %s\n", result.ManifestPath)
	}
	return err
}

// PlaylistsCreate creates a playlist on a provider and mirrors it.
func (r *Runner) PlaylistsCreate(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}
	p, err := r.provider(cmd.Args().First())
	if err != nil {
		return err
	}

	playlist, err := r.mirror.CreatePlaylist(ctx, user.ID, p.Type(), models.NewPlaylistInput{
		Name:        cmd.String("name"),
		Description: cmd.String("description"),
		Public:      cmd.Bool("public"),
	})
	if err != nil {
		return err
	}

	return r.emit(cmd, playlist, func() {
		r.writePlain("%s\n", r.palette.OK(fmt.Sprintf("Created %q on %s (%s)", playlist.Name, p.Name(), playlist.ID)))
	})
}

// PlaylistsAdd appends provider track ids to a mirrored playlist and re-pulls it.
func (r *Runner) PlaylistsAdd(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	args := cmd.Args().Slice()
	if len(args) < 2 {
		return fmt.Errorf("%w: playlist id and at least one track id", shared.ErrMissingArgument)
	}

	playlist, err := r.mirror.AddTracks(ctx, user.ID, args[0], args[1:])
	if err != nil {
		return err
	}

	return r.emit(cmd, playlist, func() {
		r.writePlain("%s\n", r.palette.OK(fmt.Sprintf("Added %d tracks to %q, now %d tracks", len(args)-1, playlist.Name, len(playlist.Tracks))))
	})
}

// Search queries a provider catalog.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	args := cmd.Args().Slice()
	if len(args) < 2 {
		return fmt.Errorf("%w: provider and query", shared.ErrMissingArgument)
	}
	p, err := r.provider(args[0])
	if err != nil {
		return err
	}

	types, err := models.ParseSearchTypes(cmd.String("type"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
	}

	results, err := p.Search(ctx, user.ID, models.SearchQuery{
		Query: strings.Join(args[1:], " "),
		Types: types,
		Limit: cmd.Int("limit"),
		Page:  cmd.String("page"),
	})
	if err != nil {
		return err
	}

	return r.emit(cmd, results, func() {
		if len(results.Tracks) > 0 {
			r.writePlainHeader("Tracks")
			r.writeTable([]string{"ID", "Title", "Artist", "Album", "Length"}, serviceTrackRows(results.Tracks))
		}
		if len(results.Playlists) > 0 {
			r.writePlainHeader("Playlists")
			rows := make([][]string, 0, len(results.Playlists))
			for _, pl := range results.Playlists {
				rows = append(rows, []string{pl.ID, pl.Name, pl.OwnerID, strconv.Itoa(pl.TrackCount)})
			}
			r.writeTable([]string{"ID", "Name", "Owner", "Tracks"}, rows)
		}
		if len(results.Tracks) == 0 && len(results.Playlists) == 0 {
			r.writePlain("%s\n", r.palette.Warn("No results"))
		}
		if results.NextPage != "" {
			r.writePlain("%s\n", r.palette.Help("More results: --page "+results.NextPage))
		}
	})
}

// Recommend lists tracks related to the seed track ids.
func (r *Runner) Recommend(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	args := cmd.Args().Slice()
	if len(args) < 2 {
		return fmt.Errorf("%w: provider and at least one seed track id", shared.ErrMissingArgument)
	}
	p, err := r.provider(args[0])
	if err != nil {
		return err
	}

	tracks, err := p.GetRecommendations(ctx, user.ID, args[1:], cmd.Int("limit"))
	if err != nil {
		return err
	}

	return r.emit(cmd, tracks, func() {
		if len(tracks) == 0 {
			r.writePlain("%s\n", r.palette.Warn("No recommendations"))
			return
		}
		r.writeTable([]string{"ID", "Title", "Artist", "Album", "Length"}, serviceTrackRows(tracks))
	})
}

// progressPrinter prints updates until the returned func is called, which waits for the printer to drain.
func (r *Runner) progressPrinter() (chan<- tasks.ProgressUpdate, func()) {
	progress := make(chan tasks.ProgressUpdate, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for u := range progress {
			r.writePlain("%s\n", r.palette.Progress(u.Step, u.Total, u.Message))
		}
	}()
	return progress, func() {
		close(progress)
		wg.Wait()
	}
}

var playlistHeaders = []string{"ID", "Service", "Name", "Tracks", "Visibility"}

func playlistRows(playlists []*models.Playlist) [][]string {
	rows := make([][]string, 0, len(playlists))
	for _, p := range playlists {
		rows = append(rows, []string{p.ID, p.Service.Slug(), p.Name, strconv.Itoa(p.TrackCount), shared.VisibilityString(p.Public)})
	}
	return rows
}

func trackRows(tracks []models.Track) [][]string {
	rows := make([][]string, 0, len(tracks))
	for i, t := range tracks {
		rows = append(rows, []string{strconv.Itoa(i + 1), t.Name, t.Artist, t.Album, shared.FormatDuration(t.DurationMs), t.ServiceID})
	}
	return rows
}

func serviceTrackRows(tracks []models.ServiceTrack) [][]string {
	rows := make([][]string, 0, len(tracks))
	for _, t := range tracks {
		rows = append(rows, []string{t.ID, t.Name, t.Artist, t.Album, shared.FormatDuration(t.DurationMs)})
	}
	return rows
}
