package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/server"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Connect performs the OAuth flow for a provider.
//
// Issues a state for the user, starts a local server on the configured redirect URI, opens the
// browser on the authorization URL and waits for the callback to complete the handshake.
func (r *Runner) Connect(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}
	p, err := r.provider(cmd.Args().First())
	if err != nil {
		return err
	}

	redirect, err := url.Parse(r.credentials(p.Type()).RedirectURI)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("%w: redirect_uri for %s", shared.ErrMissingCredentials, p.Name())
	}

	states, err := r.stateStore(ctx)
	if err != nil {
		return err
	}
	state, err := states.Create(ctx, user.ID)
	if err != nil {
		return err
	}

	handler := server.NewOAuthHandler(p, states, redirect.Path)
	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger))
	router.Handler(handler)

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("failed to listen for the OAuth callback: %w", err)
	}
	srv := server.New(ln.Addr().String(), router)

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Debug("starting OAuth callback server", "addr", srv.Addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := p.GetAuthURL(state)
	r.writePlain("→ Listening for the callback on http://%s%s\n", srv.Addr, redirect.Path)
	r.writePlain("→ Opening browser for %s authorization...\n", p.Name())
	if err := r.openBrowser(authURL); err != nil {
		r.logger.Warn("failed to open browser automatically", "error", err)
		r.writePlain("%s\n", r.palette.Warn("Could not open browser automatically."))
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	timeout := cmd.Duration("timeout")
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return fmt.Errorf("authorization timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := result.Error(); err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	r.writePlain("%s\n", r.palette.OK(result.Result.Message))
	if profile := result.Result.Profile; profile != nil {
		r.writePlain("Account: %s (%s)\n", profile.Name, profile.ID)
	}
	return nil
}

func (r *Runner) credentials(t models.ProviderType) shared.OAuthCredentials {
	switch t {
	case models.Spotify:
		return r.config.Credentials.Spotify
	case models.YouTube:
		return r.config.Credentials.YouTube
	default:
		return shared.OAuthCredentials{}
	}
}

// Disconnect removes the stored connection. Disconnecting twice is not an error.
func (r *Runner) Disconnect(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}
	p, err := r.provider(cmd.Args().First())
	if err != nil {
		return err
	}

	if err := p.Disconnect(ctx, user.ID); err != nil {
		return err
	}
	r.writePlain("%s\n", r.palette.OK(p.Name()+" disconnected"))
	return nil
}

type serviceStatus struct {
	models.ProviderInfo
	Connected bool       `json:"connected"`
	Account   string     `json:"account,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Services lists registered providers. With --user, each is annotated with the user's connection.
func (r *Runner) Services(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	byType := map[models.ProviderType]*models.ServiceConnection{}
	withUser := cmd.String("user") != ""
	if withUser {
		user, err := r.currentUser(cmd)
		if err != nil {
			return err
		}
		conns, err := r.connections.ListByUser(user.ID)
		if err != nil {
			return err
		}
		for _, c := range conns {
			byType[c.Service] = c
		}
	}

	statuses := make([]serviceStatus, 0)
	for _, info := range r.registry.Supported() {
		s := serviceStatus{ProviderInfo: info}
		if c, ok := byType[info.Type]; ok {
			s.Connected = true
			s.Account = c.ServiceUserID
			s.ExpiresAt = c.ExpiresAt
		}
		statuses = append(statuses, s)
	}

	return r.emit(cmd, statuses, func() {
		if len(statuses) == 0 {
			r.writePlain("%s\n", r.palette.Warn("No providers configured, add credentials to the config file"))
			return
		}

		headers := []string{"Provider", "Name"}
		if withUser {
			headers = append(headers, "Connected", "Account")
		}
		rows := make([][]string, 0, len(statuses))
		for _, s := range statuses {
			row := []string{s.Type.Slug(), s.Name}
			if withUser {
				connected := "no"
				if s.Connected {
					connected = "yes"
				}
				row = append(row, connected, s.Account)
			}
			rows = append(rows, row)
		}
		r.writeTable(headers, rows)
	})
}

// TestConnection resolves a valid token, refreshing it if needed, and fetches the account profile with it.
func (r *Runner) TestConnection(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}
	p, err := r.provider(cmd.Args().First())
	if err != nil {
		return err
	}

	profile, err := testConnection(ctx, p, user.ID)
	if err != nil {
		return err
	}

	return r.emit(cmd, map[string]any{"connected": true, "profile": profile}, func() {
		r.writePlain("%s\n", r.palette.OK(fmt.Sprintf("%s connected as %s (%s)", p.Name(), profile.Name, profile.ID)))
	})
}

func testConnection(ctx context.Context, p services.MusicProvider, userID string) (*models.ServiceProfile, error) {
	token, err := p.GetValidAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.GetUserProfile(ctx, token)
}
