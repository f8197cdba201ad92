package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/desertthunder/tunesync/internal/mirror"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/statestore"
	"github.com/desertthunder/tunesync/internal/tasks"
	tu "github.com/desertthunder/tunesync/internal/testing"
	"github.com/redis/go-redis/v9"
)

type apiFixture struct {
	router  *BasicRouter
	db      *sql.DB
	spotify *tu.FakeProvider
	mirror  *mirror.Mirror
	user    *models.User
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	db := setupTestDB(t)
	users := repositories.NewUserRepository(db)
	user := models.NewUser("listener@example.com", "Listener")
	if err := users.Create(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	spotify := tu.NewFakeProvider(models.Spotify)
	spotify.Connect(user.ID)
	spotify.AddPlaylist("sp-1", "Morning", tu.FakeTracks("A", "B", "C")...)
	spotify.AddPlaylist("sp-2", "Evening", tu.FakeTracks("X", "Y")...)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := shared.NewLogger(io.Discard)
	registry := services.NewRegistry(spotify)
	m := mirror.New(db, registry, logger)

	api := NewAPI(APIDeps{
		Registry: registry,
		States:   statestore.New(rdb, logger),
		Users:    users,
		Mirror:   m,
		Engine:   tasks.NewSyncEngine(db, registry, m, logger),
		Logger:   logger,
	})

	router := NewBasicRouter()
	router.Use(Recoverer(logger), RequestLogger(logger))
	api.Register(router)

	return &apiFixture{router: router, db: db, spotify: spotify, mirror: m, user: user}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return f.doAs(t, f.user.ID, method, path, body)
}

func (f *apiFixture) doAs(t *testing.T, userID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// pulled mirrors the fake's playlists and returns their local ids keyed by native id.
func (f *apiFixture) pulled(t *testing.T) map[string]string {
	t.Helper()

	playlists, err := f.mirror.PullPlaylists(context.Background(), f.user.ID, models.Spotify)
	if err != nil {
		t.Fatalf("PullPlaylists failed: %v", err)
	}
	ids := make(map[string]string, len(playlists))
	for _, p := range playlists {
		ids[p.ServiceID] = p.ID
	}
	return ids
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestAPIIdentity(t *testing.T) {
	f := setupAPI(t)

	tests := []struct {
		name   string
		user   string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"unknown user", "nobody", http.StatusUnauthorized},
		{"known user", f.user.ID, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.doAs(t, tt.user, http.MethodGet, "/services", "")
			expectStatus(t, rec, tt.status)
		})
	}
}

func TestAPIServices(t *testing.T) {
	t.Run("lists supported providers", func(t *testing.T) {
		f := setupAPI(t)

		rec := f.do(t, http.MethodGet, "/services", "")
		expectStatus(t, rec, http.StatusOK)

		body := decode[struct {
			Services []models.ProviderInfo `json:"services"`
		}](t, rec)
		if len(body.Services) != 1 || body.Services[0].Type != models.Spotify {
			t.Errorf("unexpected services %+v", body.Services)
		}
	})

	t.Run("unsupported provider", func(t *testing.T) {
		f := setupAPI(t)
		rec := f.do(t, http.MethodGet, "/services/deezer/auth-url", "")
		expectStatus(t, rec, http.StatusNotFound)
	})

	t.Run("wrong method", func(t *testing.T) {
		f := setupAPI(t)
		rec := f.do(t, http.MethodPut, "/services", "")
		expectStatus(t, rec, http.StatusMethodNotAllowed)
	})
}

func TestAPIConnect(t *testing.T) {
	t.Run("auth url then callback", func(t *testing.T) {
		f := setupAPI(t)

		rec := f.do(t, http.MethodGet, "/services/spotify/auth-url", "")
		expectStatus(t, rec, http.StatusOK)
		body := decode[map[string]string](t, rec)
		if body["state"] == "" || !strings.Contains(body["url"], "state="+body["state"]) {
			t.Fatalf("auth url must embed the state: %+v", body)
		}

		callback := "/services/spotify/callback?code=abc&state=" + url.QueryEscape(body["state"])
		rec = f.doAs(t, "", http.MethodGet, callback, "")
		expectStatus(t, rec, http.StatusOK)
		result := decode[models.CallbackResult](t, rec)
		if !result.Success {
			t.Errorf("expected success, got %+v", result)
		}

		token, err := f.spotify.GetValidAccessToken(context.Background(), f.user.ID)
		if err != nil || token != "token-abc" {
			t.Errorf("callback should connect the state's user, got %q %v", token, err)
		}

		rec = f.doAs(t, "", http.MethodGet, callback, "")
		expectStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("unknown state", func(t *testing.T) {
		f := setupAPI(t)
		rec := f.doAs(t, "", http.MethodGet, "/services/spotify/callback?code=abc&state=forged", "")
		expectStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("denied consent burns the state", func(t *testing.T) {
		f := setupAPI(t)
		state := decode[map[string]string](t, f.do(t, http.MethodGet, "/services/spotify/auth-url", ""))["state"]

		rec := f.doAs(t, "", http.MethodGet, "/services/spotify/callback?error=access_denied&state="+state, "")
		expectStatus(t, rec, http.StatusBadRequest)

		rec = f.doAs(t, "", http.MethodGet, "/services/spotify/callback?code=abc&state="+state, "")
		expectStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("disconnect then test connection", func(t *testing.T) {
		f := setupAPI(t)

		rec := f.do(t, http.MethodGet, "/services/spotify/test-connection", "")
		expectStatus(t, rec, http.StatusOK)

		rec = f.do(t, http.MethodDelete, "/services/spotify", "")
		expectStatus(t, rec, http.StatusNoContent)

		rec = f.do(t, http.MethodGet, "/services/spotify/test-connection", "")
		expectStatus(t, rec, http.StatusNotFound)

		rec = f.do(t, http.MethodDelete, "/services/spotify", "")
		expectStatus(t, rec, http.StatusNoContent)
	})
}

func TestAPISearch(t *testing.T) {
	f := setupAPI(t)
	f.spotify.SetCatalog(tu.FakeTracks("1", "2", "3")...)

	t.Run("pages", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/services/spotify/search?q=song&limit=2", "")
		expectStatus(t, rec, http.StatusOK)
		first := decode[models.SearchResults](t, rec)
		if len(first.Tracks) != 2 || first.NextPage != "2" || first.Total != 3 {
			t.Fatalf("unexpected first page %+v", first)
		}

		rec = f.do(t, http.MethodGet, "/services/spotify/search?q=song&limit=2&page="+first.NextPage, "")
		expectStatus(t, rec, http.StatusOK)
		second := decode[models.SearchResults](t, rec)
		if len(second.Tracks) != 1 || second.NextPage != "" {
			t.Errorf("unexpected second page %+v", second)
		}
	})

	t.Run("bad input", func(t *testing.T) {
		for _, path := range []string{
			"/services/spotify/search?q=song&type=album",
			"/services/spotify/search?q=song&limit=-1",
			"/services/spotify/search?q=",
			"/services/spotify/recommendations",
		} {
			rec := f.do(t, http.MethodGet, path, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", path, rec.Code)
			}
		}
	})

	t.Run("recommendations", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/services/spotify/recommendations?seed=1&limit=5", "")
		expectStatus(t, rec, http.StatusOK)
		body := decode[struct {
			Tracks []models.ServiceTrack `json:"tracks"`
		}](t, rec)
		if len(body.Tracks) != 2 {
			t.Errorf("expected seeds to be excluded, got %+v", body.Tracks)
		}
	})
}

func TestAPIPlaylists(t *testing.T) {
	t.Run("pull and read", func(t *testing.T) {
		f := setupAPI(t)

		rec := f.do(t, http.MethodPost, "/services/spotify/playlists/pull", "")
		expectStatus(t, rec, http.StatusOK)
		pulled := decode[struct {
			Playlists []models.Playlist `json:"playlists"`
		}](t, rec)
		if len(pulled.Playlists) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(pulled.Playlists))
		}
		id := pulled.Playlists[0].ID

		rec = f.do(t, http.MethodPost, "/playlists/"+id+"/pull", "")
		expectStatus(t, rec, http.StatusOK)

		rec = f.do(t, http.MethodGet, "/playlists/"+id, "")
		expectStatus(t, rec, http.StatusOK)
		detail := decode[models.PlaylistWithTracks](t, rec)
		if strings.Join(detail.ServiceIDs(), ",") != "A,B,C" {
			t.Errorf("unexpected tracks %v", detail.ServiceIDs())
		}

		rec = f.do(t, http.MethodGet, "/playlists?service=spotify", "")
		expectStatus(t, rec, http.StatusOK)
	})

	t.Run("add tracks", func(t *testing.T) {
		f := setupAPI(t)
		ids := f.pulled(t)

		rec := f.do(t, http.MethodPost, "/playlists/"+ids["sp-2"]+"/tracks", `{"trackIds":["Z"]}`)
		expectStatus(t, rec, http.StatusOK)
		if got := strings.Join(f.spotify.TrackIDs("sp-2"), ","); got != "X,Y,Z" {
			t.Errorf("provider playlist = %s", got)
		}

		rec = f.do(t, http.MethodPost, "/playlists/"+ids["sp-2"]+"/tracks", `{"trackIds":[]}`)
		expectStatus(t, rec, http.StatusBadRequest)

		rec = f.do(t, http.MethodPost, "/playlists/"+ids["sp-2"]+"/tracks", `{"tracks":["Z"]}`)
		expectStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("create", func(t *testing.T) {
		f := setupAPI(t)

		rec := f.do(t, http.MethodPost, "/services/spotify/playlists", `{"name":"Road Trip","public":true}`)
		expectStatus(t, rec, http.StatusCreated)
		created := decode[models.Playlist](t, rec)
		if created.ID == "" || created.Name != "Road Trip" || !created.Public {
			t.Errorf("unexpected playlist %+v", created)
		}

		rec = f.do(t, http.MethodPost, "/services/spotify/playlists", `{"name":""}`)
		expectStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("foreign playlist is not found", func(t *testing.T) {
		f := setupAPI(t)
		ids := f.pulled(t)

		other := models.NewUser("other@example.com", "Other")
		if err := repositories.NewUserRepository(f.db).Create(other); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		rec := f.doAs(t, other.ID, http.MethodGet, "/playlists/"+ids["sp-1"], "")
		expectStatus(t, rec, http.StatusNotFound)
	})
}

func TestAPISyncs(t *testing.T) {
	t.Run("lifecycle", func(t *testing.T) {
		f := setupAPI(t)
		ids := f.pulled(t)
		body := `{"sourceId":"` + ids["sp-1"] + `","targetId":"` + ids["sp-2"] + `","name":"copy"}`

		rec := f.do(t, http.MethodPost, "/syncs", body)
		expectStatus(t, rec, http.StatusCreated)
		sync := decode[models.PlaylistSync](t, rec)
		if sync.Status != models.SyncNeverSynced {
			t.Errorf("expected NEVER_SYNCED, got %s", sync.Status)
		}

		rec = f.do(t, http.MethodPost, "/syncs", body)
		expectStatus(t, rec, http.StatusConflict)

		rec = f.do(t, http.MethodPost, "/syncs/"+sync.ID+"/run", "")
		expectStatus(t, rec, http.StatusOK)
		result := decode[models.SyncResult](t, rec)
		if result.SyncedTracks != 3 || result.NewTracks != 3 || result.RemovedTracks != 2 {
			t.Errorf("unexpected result %+v", result)
		}

		rec = f.do(t, http.MethodGet, "/syncs", "")
		expectStatus(t, rec, http.StatusOK)
		list := decode[struct {
			Syncs []models.SyncWithPlaylists `json:"syncs"`
		}](t, rec)
		if len(list.Syncs) != 1 || list.Syncs[0].Status != models.SyncSuccess {
			t.Errorf("unexpected syncs %+v", list.Syncs)
		}

		rec = f.do(t, http.MethodDelete, "/syncs/"+sync.ID, "")
		expectStatus(t, rec, http.StatusNoContent)
		rec = f.do(t, http.MethodDelete, "/syncs/"+sync.ID, "")
		expectStatus(t, rec, http.StatusNotFound)
	})

	t.Run("rejects bad edges", func(t *testing.T) {
		f := setupAPI(t)
		ids := f.pulled(t)

		tests := []struct {
			name   string
			body   string
			status int
		}{
			{"self reference", `{"sourceId":"` + ids["sp-1"] + `","targetId":"` + ids["sp-1"] + `"}`, http.StatusBadRequest},
			{"missing target", `{"sourceId":"` + ids["sp-1"] + `"}`, http.StatusBadRequest},
			{"unknown playlist", `{"sourceId":"` + ids["sp-1"] + `","targetId":"nope"}`, http.StatusNotFound},
			{"malformed", `{`, http.StatusBadRequest},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := f.do(t, http.MethodPost, "/syncs", tt.body)
				expectStatus(t, rec, tt.status)
			})
		}
	})

	t.Run("failed run hides provider details", func(t *testing.T) {
		f := setupAPI(t)
		ids := f.pulled(t)
		f.spotify.FailReplace = errors.New("secret upstream payload")

		rec := f.do(t, http.MethodPost, "/syncs", `{"sourceId":"`+ids["sp-1"]+`","targetId":"`+ids["sp-2"]+`"}`)
		expectStatus(t, rec, http.StatusCreated)
		sync := decode[models.PlaylistSync](t, rec)

		rec = f.do(t, http.MethodPost, "/syncs/"+sync.ID+"/run", "")
		expectStatus(t, rec, http.StatusInternalServerError)
		if strings.Contains(rec.Body.String(), "secret") {
			t.Errorf("response leaked upstream details: %s", rec.Body.String())
		}
		if body := decode[errorBody](t, rec); body.Error != shared.ErrSyncFailed.Error() {
			t.Errorf("unexpected error body %q", body.Error)
		}
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", shared.ErrPlaylistNotFound, http.StatusNotFound},
		{"not connected", shared.ErrNotConnected, http.StatusNotFound},
		{"invalid", shared.ErrMissingArgument, http.StatusBadRequest},
		{"replay", shared.ErrReplayOrExpired, http.StatusBadRequest},
		{"conflict", shared.ErrAlreadyExists, http.StatusConflict},
		{"upstream", shared.NewUpstreamError("spotify", "search", errors.New("boom")), http.StatusInternalServerError},
		{"sync failed over not found", errors.Join(shared.ErrSyncFailed, shared.ErrNotConnected), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
