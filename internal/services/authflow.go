package services

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/oauth2"
)

// authFlow implements the OAuth and credential half of [MusicProvider] for one provider.
// Adapters embed it and add their REST calls.
type authFlow struct {
	provider   models.ProviderType
	config     *oauth2.Config
	authParams []oauth2.AuthCodeOption
	deps       Deps
	tokens     *TokenRefresher
	logger     *log.Logger
}

func newAuthFlow(provider models.ProviderType, creds shared.OAuthCredentials, scopes []string, endpoint oauth2.Endpoint, deps Deps, authParams ...oauth2.AuthCodeOption) (*authFlow, error) {
	switch {
	case creds.ClientID == "":
		return nil, fmt.Errorf("%w: %s client_id", shared.ErrMissingCredentials, provider.Slug())
	case creds.ClientSecret == "":
		return nil, fmt.Errorf("%w: %s client_secret", shared.ErrMissingCredentials, provider.Slug())
	case creds.RedirectURI == "":
		return nil, fmt.Errorf("%w: %s redirect_uri", shared.ErrMissingCredentials, provider.Slug())
	case deps.Connections == nil:
		return nil, fmt.Errorf("%w: %s adapter needs a connection store", shared.ErrConfiguration, provider.Slug())
	}

	deps = deps.withDefaults()
	endpoint.AuthStyle = oauth2.AuthStyleInHeader

	f := &authFlow{
		provider: provider,
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		authParams: authParams,
		deps:       deps,
		logger:     shared.WithLogger(deps.Logger, "provider", provider.Slug()),
	}
	f.tokens = NewTokenRefresher(provider, deps.Connections, f.RefreshAccessToken, deps.Logger, deps.Now)
	return f, nil
}

// Type returns the provider identifier.
func (f *authFlow) Type() models.ProviderType {
	return f.provider
}

// GetAuthURL returns the provider's consent page URL carrying state.
func (f *authFlow) GetAuthURL(state string) string {
	return f.config.AuthCodeURL(state, f.authParams...)
}

// oauthContext makes the oauth2 package use the shared outbound client.
func (f *authFlow) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.deps.HTTPClient)
}

func (f *authFlow) exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: code", shared.ErrMissingArgument)
	}

	token, err := f.config.Exchange(f.oauthContext(ctx), code)
	if err != nil {
		return nil, shared.NewUpstreamError(f.provider.Slug(), "exchange", err)
	}
	return token, nil
}

// RefreshAccessToken performs the refresh_token grant.
func (f *authFlow) RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	source := f.config.TokenSource(f.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, shared.NewUpstreamError(f.provider.Slug(), "refresh", err)
	}
	return token, nil
}

// GetValidAccessToken returns a non-expiring token for userID. See [TokenRefresher.ValidAccessToken].
func (f *authFlow) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	return f.tokens.ValidAccessToken(ctx, userID)
}

// Disconnect deletes the user's connection. A missing connection is not an error.
func (f *authFlow) Disconnect(ctx context.Context, userID string) error {
	if err := f.deps.Connections.Delete(userID, f.provider); err != nil {
		return err
	}
	f.logger.Info("disconnected", "user", userID)
	return nil
}

func (f *authFlow) accessToken(ctx context.Context, userID string, opts []CallOption) (string, error) {
	if o := applyCallOptions(opts); o.accessToken != "" {
		return o.accessToken, nil
	}
	return f.GetValidAccessToken(ctx, userID)
}

type profileFunc func(ctx context.Context, accessToken string) (*models.ServiceProfile, error)

// completeCallback exchanges code, fetches the profile and upserts the connection in one statement.
// Any failure leaves a previously stored connection untouched.
func (f *authFlow) completeCallback(ctx context.Context, code, userID, name string, profile profileFunc) (*models.CallbackResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}

	token, err := f.exchange(ctx, code)
	if err != nil {
		f.logger.Error("code exchange failed", "user", userID, "error", err)
		return nil, err
	}

	p, err := profile(ctx, token.AccessToken)
	if err != nil {
		f.logger.Error("profile fetch failed", "user", userID, "error", err)
		return nil, err
	}

	conn := models.NewServiceConnection(userID, f.provider, token, p.ID)
	if err := f.deps.Connections.Upsert(conn); err != nil {
		return nil, fmt.Errorf("failed to store %s connection: %w", f.provider.Slug(), err)
	}

	f.logger.Info("connected", "user", userID, "account", p.ID)
	return &models.CallbackResult{
		Success: true,
		Profile: p,
		Message: fmt.Sprintf("%s connected successfully", name),
	}, nil
}
