package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/statestore"
	tu "github.com/desertthunder/tunesync/internal/testing"
	"github.com/redis/go-redis/v9"
)

type staticUsers map[string]bool

func (s staticUsers) Exists(id string) (bool, error) { return s[id], nil }

func TestRouterMiddlewareOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	router := NewBasicRouter()
	router.Use(mark("first"), mark("second"))
	router.Handle(http.MethodGet, "/items/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler:"+r.PathValue("id"))
	}))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))

	if got := strings.Join(order, ","); got != "first,second,handler:42" {
		t.Errorf("unexpected order %s", got)
	}
}

func TestRouterRoutes(t *testing.T) {
	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	router := NewBasicRouter()
	router.Handle(http.MethodPost, "/syncs", noop)
	router.Handle("get", "/syncs/{id}", noop)
	router.Handle("", "/health", noop)

	want := []string{"/health", "GET /syncs/{id}", "POST /syncs"}
	if got := router.Routes(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Routes() = %v, want %v", got, want)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/syncs", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for wrong method, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected any method on /health, got %d", rec.Code)
	}
}

func TestRequireUser(t *testing.T) {
	var seen string
	handler := RequireUser(staticUsers{"u1": true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserHeader, " u1 ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || seen != "u1" {
		t.Errorf("expected u1 to pass, got %d %q", rec.Code, seen)
	}
	if UserID(context.Background()) != "" {
		t.Error("a bare context carries no user")
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := shared.NewLogger(&buf)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	out := buf.String()
	if !strings.Contains(out, "/brew") || !strings.Contains(out, "418") {
		t.Errorf("log line missing path or status: %s", out)
	}
}

func TestRecoverer(t *testing.T) {
	var buf bytes.Buffer
	handler := Recoverer(shared.NewLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "kaboom") {
		t.Error("panic value leaked to the client")
	}
}

func TestOAuthHandler(t *testing.T) {
	setup := func(t *testing.T) (*OAuthHandler, *statestore.Store) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })

		states := statestore.New(rdb, nil)
		return NewOAuthHandler(tu.NewFakeProvider(models.Spotify), states, ""), states
	}

	t.Run("completes once", func(t *testing.T) {
		h, states := setup(t)
		state, err := states.Create(context.Background(), "u1")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		if got := h.Routes(); len(got) != 1 || got[0] != "GET /callback" {
			t.Errorf("unexpected routes %v", got)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state="+state, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		res := <-h.Result()
		if res.Error() != nil || res.Result == nil || !res.Result.Success {
			t.Errorf("unexpected result %+v", res)
		}

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state="+state, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("second callback should be rejected, got %d", rec.Code)
		}
	})

	t.Run("reports failures", func(t *testing.T) {
		h, _ := setup(t)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=forged", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}

		res := <-h.Result()
		if res.Error() == nil {
			t.Error("expected an error result")
		}
	})
}
