package main

import (
	"context"
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
	"github.com/desertthunder/tunesync/internal/ui"
	"github.com/urfave/cli/v3"
)

// SyncCreate links two mirrored playlists so the target follows the source.
func (r *Runner) SyncCreate(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	opts := models.SyncOptions{Name: cmd.String("name")}
	args := cmd.Args().Slice()

	var sync *models.PlaylistSync
	switch len(args) {
	case 0:
		sync, err = r.pickSync(ctx, user.ID, opts)
	case 2:
		sync, err = r.engine.CreateSync(ctx, user.ID, args[0], args[1], opts)
	default:
		return fmt.Errorf("%w: source and target playlist ids", shared.ErrMissingArgument)
	}
	if err != nil {
		return err
	}
	if sync == nil {
		r.writePlain("%s\n", r.palette.Warn("No sync created"))
		return nil
	}

	return r.emit(cmd, sync, func() {
		r.writePlain("%s\n", r.palette.OK("Created sync "+sync.ID))
		r.writePlain("%s\n", r.palette.Help("Run it with: tunesync sync run "+sync.ID))
	})
}

// pickSync lets the user choose both playlists in the interactive picker.
//
// Logging is muted while the picker owns the terminal.
func (r *Runner) pickSync(ctx context.Context, userID string, opts models.SyncOptions) (*models.PlaylistSync, error) {
	level := r.logger.GetLevel()
	r.logger.SetLevel(log.FatalLevel)
	defer r.logger.SetLevel(level)

	picker := ui.NewModel(ctx, userID, r.mirror, r.engine, opts)
	if _, err := tea.NewProgram(picker, tea.WithContext(ctx)).Run(); err != nil {
		return nil, fmt.Errorf("error running picker: %w", err)
	}
	return picker.Created(), picker.Err()
}

// SyncRun performs one sync and prints what changed on the target.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("%w: sync id", shared.ErrMissingArgument)
	}

	r.logger.Info("running sync", "sync", id)
	result, err := r.engine.PerformSync(ctx, user.ID, id)
	if err != nil {
		return err
	}

	return r.emit(cmd, result, func() {
		r.writePlain("%s\n", r.palette.OK(fmt.Sprintf("Synced %d tracks (+%d new, -%d removed)", result.SyncedTracks, result.NewTracks, result.RemovedTracks)))
		if result.Skipped > 0 {
			r.writePlain("%s\n", r.palette.Warn(fmt.Sprintf("%d tracks had no match on the target provider", result.Skipped)))
		}
	})
}

// SyncRunAll runs every sync of the user through the worker pool.
func (r *Runner) SyncRunAll(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	var progress chan<- tasks.ProgressUpdate
	wait := func() {}
	if !cmd.Bool("json") {
		progress, wait = r.progressPrinter()
	}

	result, err := r.engine.SyncAll(ctx, user.ID, progress, tasks.SyncAllOpts{
		NumWorkers: cmd.Int("workers"),
		RateLimit:  cmd.Float("rate"),
	})
	wait()
	if result == nil {
		return err
	}

	type run struct {
		SyncID string             `json:"syncId"`
		Name   string             `json:"name,omitempty"`
		Result *models.SyncResult `json:"result,omitempty"`
		Error  string             `json:"error,omitempty"`
	}
	runs := make([]run, 0, len(result.Runs))
	for _, rr := range result.Runs {
		entry := run{SyncID: rr.SyncID, Name: rr.Name, Result: rr.Result}
		if rr.Err != nil {
			entry.Error = shared.SafeMessage(rr.Err)
		}
		runs = append(runs, entry)
	}
	summary := map[string]any{
		"total":     result.Total,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
		"runs":      runs,
	}

	if emitErr := r.emit(cmd, summary, func() {
		line := fmt.Sprintf("%d/%d syncs succeeded, %d failed, %d skipped", result.Succeeded, result.Total, result.Failed, result.Skipped)
		if result.Failed > 0 {
			r.writePlain("%s\n", r.palette.Warn(line))
		} else {
			r.writePlain("%s\n", r.palette.OK(line))
		}
	}); emitErr != nil {
		return emitErr
	}
	return err
}

// SyncList prints the user's syncs with their playlists and status.
func (r *Runner) SyncList(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	syncs, err := r.engine.GetUserSyncs(ctx, user.ID)
	if err != nil {
		return err
	}

	return r.emit(cmd, syncs, func() {
		if len(syncs) == 0 {
			r.writePlain("%s\n", r.palette.Warn("No syncs, run: tunesync sync create <source-id> <target-id>"))
			return
		}
		rows := make([][]string, 0, len(syncs))
		for _, s := range syncs {
			last := "never"
			if s.LastSyncedAt != nil {
				last = s.LastSyncedAt.Local().Format("2006-01-02 15:04")
			}
			rows = append(rows, []string{
				s.ID,
				s.Name,
				fmt.Sprintf("%s (%s)", s.Source.Name, s.Source.Service.Slug()),
				fmt.Sprintf("%s (%s)", s.Target.Name, s.Target.Service.Slug()),
				strconv.Itoa(s.Source.TrackCount),
				r.palette.Status(string(s.Status)),
				last,
			})
		}
		r.writeTable([]string{"ID", "Name", "Source", "Target", "Tracks", "Status", "Last synced"}, rows)
	})
}

// SyncDelete removes a sync. The playlists are left untouched.
func (r *Runner) SyncDelete(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("%w: sync id", shared.ErrMissingArgument)
	}

	if err := r.engine.DeleteSync(ctx, user.ID, id); err != nil {
		return err
	}
	r.writePlain("%s\n", r.palette.OK("Deleted sync "+id))
	return nil
}
