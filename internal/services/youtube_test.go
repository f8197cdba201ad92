package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

type fakeItem struct {
	id      string
	videoID string
}

// fakeYouTube serves the subset of the YouTube Data API v3 the adapter uses.
// Items without a video id stand in for non-video playlist entries.
type fakeYouTube struct {
	*httptest.Server
	mu        sync.Mutex
	playlists map[string][]fakeItem
	nextItem  int
	inserted  []string
	privacy   string
	failSeed  bool
	searchQ   string
}

func newFakeYouTube(t *testing.T) *fakeYouTube {
	t.Helper()

	f := &fakeYouTube{playlists: map[string][]fakeItem{}}
	f.seed("PL1", "X", "", "Y")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{{
				"id": "UC-channel",
				"snippet": map[string]any{
					"title":      "My Channel",
					"thumbnails": map[string]any{"default": map[string]any{"url": "https://img.example/ch.jpg"}},
				},
			}},
		})
	})
	mux.HandleFunc("GET /youtube/v3/playlists", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if id := q.Get("id"); id != "" {
			items := []map[string]any{}
			if tracks, ok := f.items(id); ok {
				items = append(items, youtubePlaylistJSON(id, len(tracks)))
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
			return
		}

		if q.Get("pageToken") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"items":         []map[string]any{youtubePlaylistJSON("PL1", 2)},
				"nextPageToken": "page-2",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{youtubePlaylistJSON("PL2", 0)}})
	})
	mux.HandleFunc("POST /youtube/v3/playlists", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Snippet struct {
				Title       string `json:"title"`
				Description string `json:"description"`
			} `json:"snippet"`
			Status struct {
				PrivacyStatus string `json:"privacyStatus"`
			} `json:"status"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.playlists["PLnew"] = nil
		f.privacy = body.Status.PrivacyStatus
		f.mu.Unlock()

		playlist := youtubePlaylistJSON("PLnew", 0)
		playlist["snippet"].(map[string]any)["title"] = body.Snippet.Title
		playlist["status"] = map[string]any{"privacyStatus": body.Status.PrivacyStatus}
		writeJSON(w, http.StatusOK, playlist)
	})
	mux.HandleFunc("GET /youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		tracks, ok := f.items(q.Get("playlistId"))
		if !ok {
			googleError(w, http.StatusNotFound, "playlistNotFound")
			return
		}

		start, _ := strconv.Atoi(q.Get("pageToken"))
		size, _ := strconv.Atoi(q.Get("maxResults"))
		end := min(start+size, len(tracks))

		items := []map[string]any{}
		for _, item := range tracks[start:end] {
			if item.videoID == "" {
				items = append(items, map[string]any{
					"id":      item.id,
					"snippet": map[string]any{"title": "Channel entry", "resourceId": map[string]any{"kind": "youtube#channel"}},
				})
				continue
			}
			items = append(items, map[string]any{
				"id": item.id,
				"snippet": map[string]any{
					"title":                  "Video " + item.videoID,
					"videoOwnerChannelTitle": "Channel " + item.videoID,
					"resourceId":             map[string]any{"kind": "youtube#video", "videoId": item.videoID},
				},
			})
		}

		body := map[string]any{"items": items}
		if end < len(tracks) {
			body["nextPageToken"] = strconv.Itoa(end)
		}
		writeJSON(w, http.StatusOK, body)
	})
	mux.HandleFunc("POST /youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Snippet struct {
				PlaylistID string `json:"playlistId"`
				ResourceID struct {
					VideoID string `json:"videoId"`
				} `json:"resourceId"`
			} `json:"snippet"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		if body.Snippet.ResourceID.VideoID == "bad" {
			googleError(w, http.StatusBadRequest, "videoNotFound")
			return
		}

		f.mu.Lock()
		f.nextItem++
		id := "item-" + strconv.Itoa(f.nextItem)
		f.playlists[body.Snippet.PlaylistID] = append(f.playlists[body.Snippet.PlaylistID], fakeItem{id: id, videoID: body.Snippet.ResourceID.VideoID})
		f.inserted = append(f.inserted, body.Snippet.ResourceID.VideoID)
		f.mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]any{"id": id})
	})
	mux.HandleFunc("DELETE /youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")

		f.mu.Lock()
		defer f.mu.Unlock()
		for pl, items := range f.playlists {
			for i, item := range items {
				if item.id == id {
					f.playlists[pl] = append(items[:i:i], items[i+1:]...)
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
		}
		googleError(w, http.StatusNotFound, "playlistItemNotFound")
	})
	mux.HandleFunc("GET /youtube/v3/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		f.mu.Lock()
		f.searchQ = q.Get("q")
		f.mu.Unlock()

		items := []map[string]any{
			youtubeSearchJSON("youtube#video", "V1"),
			youtubeSearchJSON("youtube#video", "SEED"),
			youtubeSearchJSON("youtube#video", "V2"),
		}
		if strings.Contains(q.Get("type"), "playlist") {
			items = append(items, youtubeSearchJSON("youtube#playlist", "PLhit"))
		}

		body := map[string]any{"items": items, "pageInfo": map[string]any{"totalResults": 120}}
		if q.Get("pageToken") == "" {
			body["nextPageToken"] = "CAoQAA"
		}
		writeJSON(w, http.StatusOK, body)
	})
	mux.HandleFunc("GET /youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fail := f.failSeed
		f.mu.Unlock()

		if fail {
			googleError(w, http.StatusForbidden, "quotaExceeded")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{{
				"id":      r.URL.Query().Get("id"),
				"snippet": map[string]any{"title": "Seed Song", "channelTitle": "Seed Artist"},
			}},
		})
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeYouTube) seed(playlistID string, videoIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range videoIDs {
		f.nextItem++
		f.playlists[playlistID] = append(f.playlists[playlistID], fakeItem{id: "item-" + strconv.Itoa(f.nextItem), videoID: v})
	}
}

func (f *fakeYouTube) items(playlistID string) ([]fakeItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items, ok := f.playlists[playlistID]
	return append([]fakeItem(nil), items...), ok
}

func (f *fakeYouTube) videos(playlistID string) []string {
	items, _ := f.items(playlistID)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.videoID != "" {
			ids = append(ids, item.videoID)
		}
	}
	return ids
}

func googleError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": reason,
			"errors":  []map[string]any{{"reason": reason, "message": reason}},
		},
	})
}

func youtubePlaylistJSON(id string, count int) map[string]any {
	return map[string]any{
		"id": id,
		"snippet": map[string]any{
			"title":       "Playlist " + id,
			"description": "about " + id,
			"channelId":   "UC-channel",
			"thumbnails":  map[string]any{"default": map[string]any{"url": "https://img.example/" + id + ".jpg"}},
		},
		"contentDetails": map[string]any{"itemCount": count},
		"status":         map[string]any{"privacyStatus": "public"},
	}
}

func youtubeSearchJSON(kind, id string) map[string]any {
	ident := map[string]any{"kind": kind}
	if kind == "youtube#playlist" {
		ident["playlistId"] = id
	} else {
		ident["videoId"] = id
	}
	return map[string]any{
		"id":      ident,
		"snippet": map[string]any{"title": "Title " + id, "channelTitle": "Channel " + id, "channelId": "UC-" + id},
	}
}

func newTestYouTube(t *testing.T, store *memoryStore) (*YouTubeProvider, *fakeYouTube, *tokenServer) {
	t.Helper()

	api := newFakeYouTube(t)
	auth := newTokenServer(t)

	p, err := NewYouTubeProvider(testCredentials(), testDeps(store), WithAPIURL(api.URL), WithAuthEndpoint(auth.endpoint()))
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return p, api, auth
}

func TestYouTubeProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("NewYouTubeProvider requires credentials", func(t *testing.T) {
		creds := testCredentials()
		creds.ClientSecret = ""
		if _, err := NewYouTubeProvider(creds, testDeps(newMemoryStore())); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Fatalf("expected missing credentials, got %v", err)
		}
	})

	t.Run("GetAuthURL requests offline access", func(t *testing.T) {
		p, err := NewYouTubeProvider(testCredentials(), testDeps(newMemoryStore()))
		if err != nil {
			t.Fatalf("failed to create provider: %v", err)
		}

		u, err := url.Parse(p.GetAuthURL("abc"))
		if err != nil {
			t.Fatalf("invalid auth URL: %v", err)
		}
		if u.Host != "accounts.google.com" {
			t.Errorf("expected Google host, got %s", u.Host)
		}

		q := u.Query()
		if q.Get("access_type") != "offline" || q.Get("prompt") != "consent" || q.Get("state") != "abc" {
			t.Errorf("unexpected auth params %v", q)
		}
		if !strings.Contains(q.Get("scope"), "youtube.force-ssl") {
			t.Errorf("expected force-ssl scope, got %s", q.Get("scope"))
		}
	})

	t.Run("HandleCallback", func(t *testing.T) {
		store := newMemoryStore()
		p, _, _ := newTestYouTube(t, store)

		result, err := p.HandleCallback(ctx, "xyz", "u1")
		if err != nil {
			t.Fatalf("callback failed: %v", err)
		}
		if result.Message != "YouTube connected successfully" || result.Profile.Name != "My Channel" {
			t.Errorf("unexpected result %+v", result)
		}

		conn, err := store.Get("u1", models.YouTube)
		if err != nil {
			t.Fatalf("connection not stored: %v", err)
		}
		if conn.AccessToken != "access-xyz" || conn.ServiceUserID != "UC-channel" {
			t.Errorf("unexpected connection %+v", conn)
		}
	})

	t.Run("GetUserProfile", func(t *testing.T) {
		p, _, _ := newTestYouTube(t, newMemoryStore())

		profile, err := p.GetUserProfile(ctx, "token")
		if err != nil {
			t.Fatalf("profile failed: %v", err)
		}
		if profile.ID != "UC-channel" || profile.Email != "" || profile.ImageURL != "https://img.example/ch.jpg" {
			t.Errorf("unexpected profile %+v", profile)
		}
	})

	t.Run("GetPlaylists follows page tokens", func(t *testing.T) {
		p, _, _ := newTestYouTube(t, connectedStore(models.YouTube))

		playlists, err := p.GetPlaylists(ctx, "u1")
		if err != nil {
			t.Fatalf("playlists failed: %v", err)
		}
		if len(playlists) != 2 || playlists[0].ID != "PL1" || playlists[1].ID != "PL2" {
			t.Fatalf("unexpected playlists %+v", playlists)
		}
		if !playlists[0].Public || playlists[0].TrackCount != 2 || playlists[0].OwnerID != "UC-channel" {
			t.Errorf("unexpected normalization %+v", playlists[0])
		}
	})

	t.Run("GetPlaylistDetails", func(t *testing.T) {
		p, _, _ := newTestYouTube(t, connectedStore(models.YouTube))

		details, err := p.GetPlaylistDetails(ctx, "u1", "PL1")
		if err != nil {
			t.Fatalf("details failed: %v", err)
		}
		if len(details.Tracks) != 2 {
			t.Fatalf("expected non-video entries to be skipped, got %d", len(details.Tracks))
		}

		track := details.Tracks[0]
		if track.ID != "X" || track.Artist != "Channel X" || track.ExternalURL != "https://www.youtube.com/watch?v=X" {
			t.Errorf("unexpected track %+v", track)
		}
		if track.DurationMs != 0 {
			t.Errorf("expected no duration, got %d", track.DurationMs)
		}
	})

	t.Run("GetPlaylistDetails pages items", func(t *testing.T) {
		p, api, _ := newTestYouTube(t, connectedStore(models.YouTube))

		ids := make([]string, 120)
		for i := range ids {
			ids[i] = "v" + strconv.Itoa(i)
		}
		api.seed("PLbig", ids...)

		details, err := p.GetPlaylistDetails(ctx, "u1", "PLbig")
		if err != nil {
			t.Fatalf("details failed: %v", err)
		}
		if len(details.Tracks) != 120 || details.Tracks[119].ID != "v119" {
			t.Errorf("expected 120 ordered tracks, got %d", len(details.Tracks))
		}
	})

	t.Run("GetPlaylistDetails unknown playlist", func(t *testing.T) {
		p, _, _ := newTestYouTube(t, connectedStore(models.YouTube))

		if _, err := p.GetPlaylistDetails(ctx, "u1", "nope"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Fatalf("expected playlist not found, got %v", err)
		}
	})

	t.Run("CreatePlaylist", func(t *testing.T) {
		tests := []struct {
			name    string
			public  bool
			privacy string
		}{
			{"defaults to private", false, "private"},
			{"public when requested", true, "public"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p, api, _ := newTestYouTube(t, connectedStore(models.YouTube))

				created, err := p.CreatePlaylist(ctx, "u1", models.NewPlaylistInput{Name: "Synced", Public: tt.public})
				if err != nil {
					t.Fatalf("create failed: %v", err)
				}
				if api.privacy != tt.privacy {
					t.Errorf("expected %s, got %s", tt.privacy, api.privacy)
				}
				if created.ID != "PLnew" || created.Name != "Synced" || created.Public != tt.public || created.TrackCount != 0 {
					t.Errorf("unexpected playlist %+v", created)
				}
			})
		}
	})

	t.Run("AddTracksToPlaylist keeps order", func(t *testing.T) {
		p, api, _ := newTestYouTube(t, connectedStore(models.YouTube))

		if err := p.AddTracksToPlaylist(ctx, "u1", "PL1", []string{"A", "B"}); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if got := strings.Join(api.videos("PL1"), ","); got != "X,Y,A,B" {
			t.Errorf("expected X,Y,A,B, got %s", got)
		}
	})

	t.Run("AddTracksToPlaylist stops at first failure", func(t *testing.T) {
		p, api, _ := newTestYouTube(t, connectedStore(models.YouTube))

		err := p.AddTracksToPlaylist(ctx, "u1", "PL1", []string{"A", "bad", "C"})
		if !errors.Is(err, shared.ErrUpstream) {
			t.Fatalf("expected upstream error, got %v", err)
		}
		if got := strings.Join(api.inserted, ","); got != "A" {
			t.Errorf("expected only A inserted, got %s", got)
		}
	})

	t.Run("ReplacePlaylistTracks", func(t *testing.T) {
		p, api, _ := newTestYouTube(t, connectedStore(models.YouTube))

		if err := p.ReplacePlaylistTracks(ctx, "u1", "PL1", []string{"A", "B", "C"}); err != nil {
			t.Fatalf("replace failed: %v", err)
		}
		if got := strings.Join(api.videos("PL1"), ","); got != "A,B,C" {
			t.Errorf("expected A,B,C, got %s", got)
		}

		if err := p.ReplacePlaylistTracks(ctx, "u1", "PL1", nil); err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		if got := api.videos("PL1"); len(got) != 0 {
			t.Errorf("expected empty playlist, got %v", got)
		}
	})

	t.Run("Search", func(t *testing.T) {
		p, _, _ := newTestYouTube(t, connectedStore(models.YouTube))

		results, err := p.Search(ctx, "u1", models.SearchQuery{
			Query: "lofi",
			Types: []models.SearchType{models.SearchTrack, models.SearchPlaylist},
		})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(results.Tracks) != 3 || len(results.Playlists) != 1 {
			t.Fatalf("unexpected results %+v", results)
		}
		if results.NextPage != "CAoQAA" || results.Total != 120 {
			t.Errorf("unexpected paging %q/%d", results.NextPage, results.Total)
		}
		if results.Playlists[0].ID != "PLhit" {
			t.Errorf("unexpected playlist hit %+v", results.Playlists[0])
		}

		next, err := p.Search(ctx, "u1", models.SearchQuery{Query: "lofi", Page: results.NextPage})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if next.NextPage != "" {
			t.Errorf("expected last page, got %q", next.NextPage)
		}
	})

	t.Run("GetRecommendations", func(t *testing.T) {
		p, api, _ := newTestYouTube(t, connectedStore(models.YouTube))

		tracks, err := p.GetRecommendations(ctx, "u1", []string{"SEED"}, 1)
		if err != nil {
			t.Fatalf("recommendations failed: %v", err)
		}
		if len(tracks) != 1 || tracks[0].ID != "V1" {
			t.Errorf("expected [V1], got %+v", tracks)
		}
		if api.searchQ != "Seed Song Seed Artist" {
			t.Errorf("unexpected seed query %q", api.searchQ)
		}

		tracks, _ = p.GetRecommendations(ctx, "u1", []string{"SEED"}, 10)
		for _, track := range tracks {
			if track.ID == "SEED" {
				t.Error("seed should be excluded")
			}
		}
	})

	t.Run("GetRecommendations degrades to empty", func(t *testing.T) {
		p, api, _ := newTestYouTube(t, connectedStore(models.YouTube))
		api.failSeed = true

		tracks, err := p.GetRecommendations(ctx, "u1", []string{"SEED"}, 10)
		if err != nil || tracks == nil || len(tracks) != 0 {
			t.Errorf("expected empty list, got %v (%v)", tracks, err)
		}
	})
}
