package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/statestore"
	tu "github.com/desertthunder/tunesync/internal/testing"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

type cliFixture struct {
	runner  *Runner
	out     *bytes.Buffer
	db      *sql.DB
	spotify *tu.FakeProvider
	youtube *tu.FakeProvider
	user    *models.User
	browser func(string) error
}

func setupCLI(t *testing.T) *cliFixture {
	t.Helper()

	db := tu.NewTestDB(t)
	user := models.NewUser("listener@example.com", "Listener")
	if err := repositories.NewUserRepository(db).Create(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	spotify := tu.NewFakeProvider(models.Spotify)
	spotify.Connect(user.ID)
	spotify.AddPlaylist("sp-1", "Morning", tu.FakeTracks("A", "B", "C")...)
	spotify.AddPlaylist("sp-2", "Evening", tu.FakeTracks("X", "Y")...)
	youtube := tu.NewFakeProvider(models.YouTube)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	config := shared.DefaultConfig()
	config.Credentials.Spotify.RedirectURI = "http://127.0.0.1:0/callback"

	logger := shared.NewLogger(io.Discard)
	f := &cliFixture{out: &bytes.Buffer{}, db: db, spotify: spotify, youtube: youtube, user: user}
	f.runner = NewRunner(RunnerOpts{
		Config:      config,
		DB:          db,
		Registry:    services.NewRegistry(spotify, youtube),
		States:      statestore.New(rdb, logger),
		HTTPClient:  http.DefaultClient,
		Logger:      logger,
		Output:      f.out,
		OpenBrowser: func(u string) error { return f.browser(u) },
	})
	f.browser = func(string) error { return nil }
	return f
}

// run executes the CLI as the fixture user and returns what it printed.
func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	f.out.Reset()
	err := f.runner.app().Run(context.Background(), append([]string{"tunesync", "--user", f.user.ID}, args...))
	return f.out.String(), err
}

func (f *cliFixture) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := f.run(t, args...)
	if err != nil {
		t.Fatalf("%v failed: %v\n%s", args, err, out)
	}
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", out, err)
	}
	return v
}

// pulled mirrors the fake Spotify playlists and returns local ids keyed by provider id.
func (f *cliFixture) pulled(t *testing.T) map[string]string {
	t.Helper()
	playlists := decode[[]models.Playlist](t, f.mustRun(t, "playlists", "pull", "spotify", "--json"))

	ids := make(map[string]string)
	for _, p := range playlists {
		ids[p.ServiceID] = p.ID
	}
	return ids
}

func TestUserCommands(t *testing.T) {
	t.Run("create and list", func(t *testing.T) {
		f := setupCLI(t)

		created := decode[models.User](t, f.mustRun(t, "user", "create", "--email", "second@example.com", "--name", "Second", "--json"))
		if created.ID == "" || created.Email != "second@example.com" {
			t.Fatalf("unexpected user %+v", created)
		}

		users := decode[[]models.User](t, f.mustRun(t, "user", "list", "--json"))
		if len(users) != 2 {
			t.Errorf("expected 2 users, got %d", len(users))
		}

		out := f.mustRun(t, "user", "list")
		if !strings.Contains(out, "second@example.com") {
			t.Errorf("expected table to list the new user, got %s", out)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := setupCLI(t)

		_, err := f.run(t, "user", "create", "--email", "listener@example.com")
		if !errors.Is(err, shared.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("user resolved by email", func(t *testing.T) {
		f := setupCLI(t)
		f.out.Reset()

		err := f.runner.app().Run(context.Background(), []string{"tunesync", "--user", "listener@example.com", "playlists", "list", "--json"})
		if err != nil {
			t.Fatalf("expected email lookup to work, got %v", err)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		f := setupCLI(t)
		t.Setenv("TUNESYNC_USER", "")

		err := f.runner.app().Run(context.Background(), []string{"tunesync", "playlists", "list"})
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		f := setupCLI(t)

		err := f.runner.app().Run(context.Background(), []string{"tunesync", "--user", "nobody", "playlists", "list"})
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestServiceCommands(t *testing.T) {
	t.Run("services lists providers with connections", func(t *testing.T) {
		f := setupCLI(t)

		expiry := time.Now().Add(time.Hour)
		conn := models.NewServiceConnection(f.user.ID, models.Spotify, &oauth2.Token{
			AccessToken:  "access",
			RefreshToken: "refresh",
			Expiry:       expiry,
		}, "spotify-account")
		if err := repositories.NewConnectionRepository(f.db).Upsert(conn); err != nil {
			t.Fatalf("failed to store connection: %v", err)
		}

		statuses := decode[[]serviceStatus](t, f.mustRun(t, "services", "--json"))
		if len(statuses) != 2 {
			t.Fatalf("expected 2 providers, got %d", len(statuses))
		}
		for _, s := range statuses {
			switch s.Type {
			case models.Spotify:
				if !s.Connected || s.Account != "spotify-account" {
					t.Errorf("expected spotify connected, got %+v", s)
				}
			case models.YouTube:
				if s.Connected {
					t.Errorf("expected youtube disconnected, got %+v", s)
				}
			}
		}
	})

	t.Run("test connection", func(t *testing.T) {
		f := setupCLI(t)

		out := f.mustRun(t, "services", "test", "spotify")
		if !strings.Contains(out, "connected as Fake Account") {
			t.Errorf("unexpected output %s", out)
		}

		_, err := f.run(t, "services", "test", "youtube")
		if !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		f := setupCLI(t)

		_, err := f.run(t, "services", "test", "tidal")
		if !errors.Is(err, shared.ErrUnsupportedProvider) {
			t.Errorf("expected ErrUnsupportedProvider, got %v", err)
		}
	})

	t.Run("connect completes the browser flow", func(t *testing.T) {
		f := setupCLI(t)
		f.youtube.Disconnect(context.Background(), f.user.ID)
		f.runner.config.Credentials.YouTube.RedirectURI = "http://127.0.0.1:0/youtube/callback"

		callback := regexp.MustCompile(`http://127\.0\.0\.1:\d+/youtube/callback`)
		f.browser = func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			target := callback.FindString(f.out.String())
			if target == "" {
				t.Errorf("callback address not printed: %s", f.out.String())
				return nil
			}

			q := url.Values{"state": {u.Query().Get("state")}, "code": {"granted"}}
			resp, err := http.Get(target + "?" + q.Encode())
			if err != nil {
				t.Errorf("callback request failed: %v", err)
				return nil
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected callback 200, got %d", resp.StatusCode)
			}
			return nil
		}

		out := f.mustRun(t, "connect", "youtube", "--timeout", "5s")
		if !strings.Contains(out, "connected successfully") {
			t.Errorf("expected success message, got %s", out)
		}

		token, err := f.youtube.GetValidAccessToken(context.Background(), f.user.ID)
		if err != nil || token != "token-granted" {
			t.Errorf("expected token from exchanged code, got %q, %v", token, err)
		}
	})

	t.Run("connect reports a denied authorization", func(t *testing.T) {
		f := setupCLI(t)

		f.browser = func(authURL string) error {
			u, _ := url.Parse(authURL)
			target := regexp.MustCompile(`http://127\.0\.0\.1:\d+/callback`).FindString(f.out.String())
			q := url.Values{"state": {u.Query().Get("state")}, "error": {"access_denied"}}
			resp, err := http.Get(target + "?" + q.Encode())
			if err == nil {
				resp.Body.Close()
			}
			return nil
		}

		_, err := f.run(t, "connect", "spotify", "--timeout", "5s")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected denied authorization to fail, got %v", err)
		}
	})

	t.Run("connect times out", func(t *testing.T) {
		f := setupCLI(t)

		_, err := f.run(t, "connect", "spotify", "--timeout", "50ms")
		if err == nil || !strings.Contains(err.Error(), "timed out") {
			t.Errorf("expected timeout, got %v", err)
		}
	})

	t.Run("disconnect", func(t *testing.T) {
		f := setupCLI(t)

		f.mustRun(t, "disconnect", "spotify")
		if _, err := f.spotify.GetValidAccessToken(context.Background(), f.user.ID); !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected spotify disconnected, got %v", err)
		}
		f.mustRun(t, "disconnect", "spotify")
	})
}

func TestPlaylistCommands(t *testing.T) {
	t.Run("pull and list", func(t *testing.T) {
		f := setupCLI(t)
		ids := f.pulled(t)

		if len(ids) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(ids))
		}

		listed := decode[[]models.Playlist](t, f.mustRun(t, "playlists", "list", "--service", "spotify", "--json"))
		if len(listed) != 2 {
			t.Errorf("expected 2 mirrored playlists, got %d", len(listed))
		}

		none := decode[[]models.Playlist](t, f.mustRun(t, "playlists", "list", "--service", "youtube", "--json"))
		if len(none) != 0 {
			t.Errorf("expected no youtube playlists, got %d", len(none))
		}

		out := f.mustRun(t, "playlists", "list")
		if !strings.Contains(out, "Morning") || !strings.Contains(out, "Evening") {
			t.Errorf("expected playlist table, got %s", out)
		}
	})

	t.Run("invalid service filter", func(t *testing.T) {
		f := setupCLI(t)

		_, err := f.run(t, "playlists", "list", "--service", "tidal")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("show with refresh", func(t *testing.T) {
		f := setupCLI(t)
		ids := f.pulled(t)

		detail := decode[models.PlaylistWithTracks](t, f.mustRun(t, "playlists", "show", ids["sp-1"], "--refresh", "--json"))
		if got := detail.ServiceIDs(); strings.Join(got, ",") != "A,B,C" {
			t.Errorf("expected tracks A,B,C, got %v", got)
		}

		out := f.mustRun(t, "playlists", "show", ids["sp-1"])
		for _, want := range []string{"Morning", "Song A", "Artist C", "3:00"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in %s", want, out)
			}
		}
	})

	t.Run("show another user's playlist", func(t *testing.T) {
		f := setupCLI(t)
		ids := f.pulled(t)

		other := models.NewUser("other@example.com", "Other")
		if err := repositories.NewUserRepository(f.db).Create(other); err != nil {
			t.Fatal(err)
		}
		err := f.runner.app().Run(context.Background(), []string{"tunesync", "--user", other.ID, "playlists", "show", ids["sp-1"]})
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("create and add tracks", func(t *testing.T) {
		f := setupCLI(t)

		created := decode[models.Playlist](t, f.mustRun(t, "playlists", "create", "spotify", "--name", "Road Trip", "--public", "--json"))
		if created.ID == "" || created.Name != "Road Trip" || !created.Public {
			t.Fatalf("unexpected playlist %+v", created)
		}

		detail := decode[models.PlaylistWithTracks](t, f.mustRun(t, "playlists", "add", created.ID, "A", "B", "--json"))
		if len(detail.Tracks) != 2 {
			t.Errorf("expected 2 tracks, got %d", len(detail.Tracks))
		}
		if got := f.spotify.TrackIDs(created.ServiceID); strings.Join(got, ",") != "A,B" {
			t.Errorf("expected provider playlist A,B, got %v", got)
		}
	})

	t.Run("add needs track ids", func(t *testing.T) {
		f := setupCLI(t)

		_, err := f.run(t, "playlists", "add", "only-playlist")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("export every mirrored playlist", func(t *testing.T) {
		f := setupCLI(t)
		ids := f.pulled(t)
		f.mustRun(t, "playlists", "show", ids["sp-1"], "--refresh", "--json")

		dir := t.TempDir()
		out := f.mustRun(t, "playlists", "export", "--format", "csv", "--output", dir, "--rate", "100")
		if !strings.Contains(out, "Exported 2/2 playlists") {
			t.Errorf("expected summary, got %s", out)
		}

		tu.AssertFileExists(t, filepath.Join(dir, "export_manifest.json"))
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		csvs := 0
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), "_tracks.csv") {
				csvs++
			}
		}
		if csvs != 2 {
			t.Errorf("expected 2 csv files, got %d", csvs)
		}
	})

	t.Run("export with unknown id reports failure", func(t *testing.T) {
		f := setupCLI(t)
		ids := f.pulled(t)

		dir := t.TempDir()
		out := f.mustRun(t, "playlists", "export", ids["sp-2"], "missing", "--format", "txt", "--output", dir, "--rate", "100")
		if !strings.Contains(out, "Exported 1/2 playlists") || !strings.Contains(out, "Unknown (missing)") {
			t.Errorf("expected partial failure summary, got %s", out)
		}
	})

	t.Run("export rejects unknown format", func(t *testing.T) {
		f := setupCLI(t)
		f.pulled(t)

		_, err := f.run(t, "playlists", "export", "--format", "xml", "--output", t.TempDir())
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})
}

func TestCatalogCommands(t *testing.T) {
	t.Run("search", func(t *testing.T) {
		f := setupCLI(t)
		f.spotify.SetCatalog(tu.FakeTracks("A", "B", "C")...)

		results := decode[models.SearchResults](t, f.mustRun(t, "search", "spotify", "song", "--limit", "2", "--json"))
		if len(results.Tracks) != 2 || results.NextPage != "2" {
			t.Errorf("expected first page of 2 with a cursor, got %+v", results)
		}

		out := f.mustRun(t, "search", "spotify", "song", "--limit", "2", "--page", "2")
		if !strings.Contains(out, "Song C") || strings.Contains(out, "More results") {
			t.Errorf("expected last page, got %s", out)
		}
	})

	t.Run("search validates input", func(t *testing.T) {
		f := setupCLI(t)

		if _, err := f.run(t, "search", "spotify"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if _, err := f.run(t, "search", "spotify", "x", "--type", "album"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("recommend excludes seeds", func(t *testing.T) {
		f := setupCLI(t)
		f.spotify.SetCatalog(tu.FakeTracks("A", "B", "C")...)

		tracks := decode[[]models.ServiceTrack](t, f.mustRun(t, "recommend", "spotify", "A", "--json"))
		if len(tracks) != 2 || tracks[0].ID != "B" {
			t.Errorf("expected B and C, got %+v", tracks)
		}
	})
}

func TestSyncCommands(t *testing.T) {
	t.Run("create, run, list and delete", func(t *testing.T) {
		f := setupCLI(t)
		ids := f.pulled(t)

		sync := decode[models.PlaylistSync](t, f.mustRun(t, "sync", "create", ids["sp-1"], ids["sp-2"], "--name", "morning-to-evening", "--json"))
		if sync.Status != models.SyncNeverSynced {
			t.Errorf("expected NEVER_SYNCED, got %s", sync.Status)
		}

		result := decode[models.SyncResult](t, f.mustRun(t, "sync", "run", sync.ID, "--json"))
		if result.SyncedTracks != 3 || result.NewTracks != 3 || result.RemovedTracks != 2 {
			t.Errorf("unexpected counts %+v", result)
		}
		if got := f.spotify.TrackIDs("sp-2"); strings.Join(got, ",") != "A,B,C" {
			t.Errorf("expected target A,B,C, got %v", got)
		}

		listed := decode[[]models.SyncWithPlaylists](t, f.mustRun(t, "sync", "list", "--json"))
		if len(listed) != 1 || listed[0].Status != models.SyncSuccess || listed[0].LastSyncedAt == nil {
			t.Fatalf("expected one successful sync, got %+v", listed)
		}

		out := f.mustRun(t, "sync", "list")
		if !strings.Contains(out, "morning-to-evening") || !strings.Contains(out, "SUCCESS") {
			t.Errorf("expected sync table, got %s", out)
		}

		f.mustRun(t, "sync", "delete", sync.ID)
		if _, err := f.run(t, "sync", "run", sync.ID); !errors.Is(err, shared.ErrSyncNotFound) {
			t.Errorf("expected ErrSyncNotFound after delete, got %v", err)
		}
	})

	t.Run("create validation", func(t *testing.T) {
		f := setupCLI(t)
		ids := f.pulled(t)

		if _, err := f.run(t, "sync", "create", ids["sp-1"]); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if _, err := f.run(t, "sync", "create", ids["sp-1"], ids["sp-1"]); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("failed run is reported", func(t *testing.T) {
		f := setupCLI(t)
		ids := f.pulled(t)
		sync := decode[models.PlaylistSync](t, f.mustRun(t, "sync", "create", ids["sp-1"], ids["sp-2"], "--json"))

		f.spotify.FailReplace = errors.New("quota exceeded")
		_, err := f.run(t, "sync", "run", sync.ID)
		if !errors.Is(err, shared.ErrSyncFailed) {
			t.Errorf("expected ErrSyncFailed, got %v", err)
		}

		listed := decode[[]models.SyncWithPlaylists](t, f.mustRun(t, "sync", "list", "--json"))
		if listed[0].Status != models.SyncFailed || listed[0].ErrorMessage == nil {
			t.Errorf("expected FAILED with message, got %+v", listed[0])
		}
	})

	t.Run("run-all", func(t *testing.T) {
		f := setupCLI(t)
		ids := f.pulled(t)
		f.mustRun(t, "sync", "create", ids["sp-1"], ids["sp-2"])
		f.mustRun(t, "sync", "create", ids["sp-2"], ids["sp-1"])

		out := f.mustRun(t, "sync", "run-all", "--rate", "100")
		if !strings.Contains(out, "2/2 syncs succeeded") {
			t.Errorf("expected summary, got %s", out)
		}
		if !strings.Contains(out, "[2/2]") {
			t.Errorf("expected progress lines, got %s", out)
		}

		summary := decode[map[string]any](t, f.mustRun(t, "sync", "run-all", "--rate", "100", "--json"))
		if summary["total"] != float64(2) || summary["succeeded"] != float64(2) {
			t.Errorf("unexpected summary %+v", summary)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	dbPath := filepath.Join(dir, "tunesync.db")
	t.Setenv("TUNESYNC_DATABASE_PATH", dbPath)

	runCLI := func(t *testing.T, args ...string) (string, error) {
		t.Helper()
		out := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{ConfigPath: configPath, Output: out, Logger: shared.NewLogger(io.Discard)})
		err := runner.app().Run(context.Background(), append([]string{"tunesync"}, args...))
		return out.String(), err
	}

	t.Run("setup creates config and database", func(t *testing.T) {
		out, err := runCLI(t, "setup")
		if err != nil {
			t.Fatalf("setup failed: %v\n%s", err, out)
		}
		tu.AssertFileExists(t, configPath)
		tu.AssertFileExists(t, dbPath)
		if !strings.Contains(out, "Database ready") {
			t.Errorf("unexpected output %s", out)
		}
	})

	t.Run("setup is repeatable", func(t *testing.T) {
		if out, err := runCLI(t, "setup"); err != nil {
			t.Fatalf("second setup failed: %v\n%s", err, out)
		}
	})

	t.Run("db status, rollback and migrate", func(t *testing.T) {
		type status struct {
			Version int  `json:"version"`
			Applied bool `json:"applied"`
		}

		out, err := runCLI(t, "db", "status", "--json")
		if err != nil {
			t.Fatal(err)
		}
		statuses := decode[[]status](t, out)
		if len(statuses) == 0 || !statuses[0].Applied {
			t.Fatalf("expected applied migrations, got %s", out)
		}

		if _, err := runCLI(t, "db", "rollback"); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}
		out, _ = runCLI(t, "db", "status", "--json")
		if decode[[]status](t, out)[0].Applied {
			t.Errorf("expected migration rolled back, got %s", out)
		}

		if _, err := runCLI(t, "db", "migrate"); err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
		out, _ = runCLI(t, "db", "status", "--json")
		if !decode[[]status](t, out)[0].Applied {
			t.Errorf("expected migration re-applied, got %s", out)
		}
	})
}
