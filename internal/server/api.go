package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/mirror"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
	"github.com/go-playground/validator/v10"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// StateStore issues and redeems single-use OAuth state tokens.
type StateStore interface {
	Create(ctx context.Context, userID string) (string, error)
	Pop(ctx context.Context, state string) (string, error)
}

// APIDeps are the collaborators of [API].
type APIDeps struct {
	Registry *services.Registry
	States   StateStore
	Users    UserChecker
	Mirror   *mirror.Mirror
	Engine   *tasks.SyncEngine
	Logger   *log.Logger
}

// API serves the JSON endpoints over providers, playlists and syncs.
type API struct {
	registry *services.Registry
	states   StateStore
	users    UserChecker
	mirror   *mirror.Mirror
	engine   *tasks.SyncEngine
	validate *validator.Validate
	logger   *log.Logger
}

// NewAPI creates an API from deps.
func NewAPI(deps APIDeps) *API {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &API{
		registry: deps.Registry,
		states:   deps.States,
		users:    deps.Users,
		mirror:   deps.Mirror,
		engine:   deps.Engine,
		validate: validator.New(),
		logger:   shared.WithLogger(logger, "component", "api"),
	}
}

// Register adds every API route to r. All routes except the OAuth callback require [UserHeader].
func (a *API) Register(r Router) {
	user := RequireUser(a.users)
	authed := func(h http.HandlerFunc) http.Handler { return user(h) }

	r.Handle(http.MethodGet, "/services", authed(a.listServices))
	r.Handle(http.MethodGet, "/services/{provider}/auth-url", authed(a.authURL))
	r.Handle(http.MethodGet, "/services/{provider}/callback", http.HandlerFunc(a.callback))
	r.Handle(http.MethodDelete, "/services/{provider}", authed(a.disconnect))
	r.Handle(http.MethodGet, "/services/{provider}/test-connection", authed(a.testConnection))
	r.Handle(http.MethodGet, "/services/{provider}/search", authed(a.search))
	r.Handle(http.MethodGet, "/services/{provider}/recommendations", authed(a.recommendations))
	r.Handle(http.MethodPost, "/services/{provider}/playlists/pull", authed(a.pullPlaylists))
	r.Handle(http.MethodPost, "/services/{provider}/playlists", authed(a.createPlaylist))

	r.Handle(http.MethodGet, "/playlists", authed(a.listPlaylists))
	r.Handle(http.MethodGet, "/playlists/{id}", authed(a.getPlaylist))
	r.Handle(http.MethodPost, "/playlists/{id}/pull", authed(a.pullPlaylist))
	r.Handle(http.MethodPost, "/playlists/{id}/tracks", authed(a.addTracks))

	r.Handle(http.MethodGet, "/syncs", authed(a.listSyncs))
	r.Handle(http.MethodPost, "/syncs", authed(a.createSync))
	r.Handle(http.MethodPost, "/syncs/{id}/run", authed(a.runSync))
	r.Handle(http.MethodDelete, "/syncs/{id}", authed(a.deleteSync))
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps an error category to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrSyncFailed):
		return http.StatusInternalServerError
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrReplayOrExpired):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := shared.SafeMessage(err)

	switch {
	case errors.Is(err, shared.ErrSyncFailed):
		a.logger.Error("sync failed", "path", r.URL.Path, "error", err)
		msg = shared.ErrSyncFailed.Error()
	case status >= http.StatusInternalServerError:
		a.logger.Error("request failed", "path", r.URL.Path, "error", err)
		msg = "internal error"
	default:
		a.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", shared.ErrInvalidArgument, err)
	}
	return nil
}

func (a *API) provider(r *http.Request) (services.MusicProvider, error) {
	return a.registry.Lookup(r.PathValue("provider"))
}

func queryInt(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", shared.ErrInvalidFlag, name)
	}
	return n, nil
}

func (a *API) listServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": a.registry.Supported()})
}

func (a *API) authURL(w http.ResponseWriter, r *http.Request) {
	p, err := a.provider(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	state, err := a.states.Create(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": p.GetAuthURL(state), "state": state})
}

func (a *API) callback(w http.ResponseWriter, r *http.Request) {
	p, err := a.provider(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	result, err := completeCallback(r.Context(), a.states, p, r.URL.Query())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) disconnect(w http.ResponseWriter, r *http.Request) {
	p, err := a.provider(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := p.Disconnect(r.Context(), UserID(r.Context())); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) testConnection(w http.ResponseWriter, r *http.Request) {
	p, err := a.provider(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	token, err := p.GetValidAccessToken(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	profile, err := p.GetUserProfile(r.Context(), token)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true, "profile": profile})
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	p, err := a.provider(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	types, err := models.ParseSearchTypes(q.Get("type"))
	if err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err))
		return
	}
	limit, err := queryInt(q, "limit", 0)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	results, err := p.Search(r.Context(), UserID(r.Context()), models.SearchQuery{
		Query: q.Get("q"),
		Types: types,
		Limit: limit,
		Page:  q.Get("page"),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *API) recommendations(w http.ResponseWriter, r *http.Request) {
	p, err := a.provider(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	var seeds []string
	for _, s := range strings.Split(q.Get("seed"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			seeds = append(seeds, s)
		}
	}
	if len(seeds) == 0 {
		a.writeError(w, r, fmt.Errorf("%w: seed", shared.ErrMissingArgument))
		return
	}
	limit, err := queryInt(q, "limit", 0)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	tracks, err := p.GetRecommendations(r.Context(), UserID(r.Context()), seeds, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

func (a *API) pullPlaylists(w http.ResponseWriter, r *http.Request) {
	p, err := a.provider(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	playlists, err := a.mirror.PullPlaylists(r.Context(), UserID(r.Context()), p.Type())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func (a *API) createPlaylist(w http.ResponseWriter, r *http.Request) {
	p, err := a.provider(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var in models.NewPlaylistInput
	if err := decodeJSON(w, r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	playlist, err := a.mirror.CreatePlaylist(r.Context(), UserID(r.Context()), p.Type(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, playlist)
}

func (a *API) listPlaylists(w http.ResponseWriter, r *http.Request) {
	var provider models.ProviderType
	if raw := r.URL.Query().Get("service"); raw != "" {
		p, err := a.registry.Lookup(raw)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		provider = p.Type()
	}

	playlists, err := a.mirror.ListPlaylists(r.Context(), UserID(r.Context()), provider)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if playlists == nil {
		playlists = []*models.Playlist{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func (a *API) getPlaylist(w http.ResponseWriter, r *http.Request) {
	playlist, err := a.mirror.LocalPlaylist(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (a *API) pullPlaylist(w http.ResponseWriter, r *http.Request) {
	playlist, err := a.mirror.PullPlaylistDetail(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

type addTracksRequest struct {
	TrackIDs []string `json:"trackIds" validate:"required,min=1,dive,required"`
}

func (a *API) addTracks(w http.ResponseWriter, r *http.Request) {
	var req addTracksRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err))
		return
	}

	playlist, err := a.mirror.AddTracks(r.Context(), UserID(r.Context()), r.PathValue("id"), req.TrackIDs)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (a *API) listSyncs(w http.ResponseWriter, r *http.Request) {
	syncs, err := a.engine.GetUserSyncs(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"syncs": syncs})
}

type createSyncRequest struct {
	SourceID string `json:"sourceId" validate:"required"`
	TargetID string `json:"targetId" validate:"required"`
	Name     string `json:"name" validate:"max=150"`
}

func (a *API) createSync(w http.ResponseWriter, r *http.Request) {
	var req createSyncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err))
		return
	}

	sync, err := a.engine.CreateSync(r.Context(), UserID(r.Context()), req.SourceID, req.TargetID, models.SyncOptions{Name: req.Name})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sync)
}

func (a *API) runSync(w http.ResponseWriter, r *http.Request) {
	result, err := a.engine.PerformSync(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) deleteSync(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.DeleteSync(r.Context(), UserID(r.Context()), r.PathValue("id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
