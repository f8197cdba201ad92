package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
)

// completeCallback redeems the state of an OAuth redirect and hands the code to the provider
// on behalf of the user who requested the authorization URL.
func completeCallback(ctx context.Context, states StateStore, p services.MusicProvider, q url.Values) (*models.CallbackResult, error) {
	state := q.Get("state")
	if state == "" {
		return nil, fmt.Errorf("%w: state", shared.ErrMissingArgument)
	}

	userID, err := states.Pop(ctx, state)
	if err != nil {
		return nil, err
	}

	if reason := q.Get("error"); reason != "" {
		return nil, fmt.Errorf("%w: authorization denied: %s", shared.ErrInvalidArgument, reason)
	}

	code := q.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: code", shared.ErrMissingArgument)
	}
	return p.HandleCallback(ctx, code, userID)
}

// OAuthResult is what a local login callback produced.
type OAuthResult struct {
	Result *models.CallbackResult
	err    error
}

func (o *OAuthResult) Error() error {
	return o.err
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; display: flex; align-items: center;
       justify-content: center; height: 100vh; margin: 0; background: #f5f5f5; }
main { text-align: center; background: white; padding: 2rem; border-radius: 8px; }
h1 { color: {{.Color}}; margin: 0 0 1rem 0; }
p { color: #666; margin: 0; }
</style>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
<p>{{.Detail}}</p>
<p>You can close this window and return to the terminal.</p>
</main>
</body>
</html>
`))

type callbackView struct {
	Title  string
	Detail string
	Color  template.CSS
}

// OAuthHandler serves the redirect URI of a provider for a single CLI login.
//
// Only the first request is processed; its outcome is delivered once on [OAuthHandler.Result].
type OAuthHandler struct {
	provider services.MusicProvider
	states   StateStore
	path     string
	hit      atomic.Bool
	results  chan OAuthResult
}

// NewOAuthHandler creates a handler for the callback path of provider. The path defaults to /callback.
func NewOAuthHandler(provider services.MusicProvider, states StateStore, path string) *OAuthHandler {
	if path == "" {
		path = "/callback"
	}
	return &OAuthHandler{
		provider: provider,
		states:   states,
		path:     path,
		results:  make(chan OAuthResult, 1),
	}
}

func (h *OAuthHandler) Routes() []string {
	return []string{"GET " + h.path}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.hit.CompareAndSwap(false, true) {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}

	result, err := completeCallback(r.Context(), h.states, h.provider, r.URL.Query())
	h.results <- OAuthResult{Result: result, err: err}
	close(h.results)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		w.WriteHeader(statusFor(err))
		callbackPage.Execute(w, callbackView{Title: "Authorization failed", Detail: shared.SafeMessage(err), Color: "#d93025"})
		return
	}
	callbackPage.Execute(w, callbackView{Title: "✓ " + result.Message, Color: "#1db954"})
}

// Result delivers exactly one result, then is closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}
