package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// RefreshWindow is how close to expiry a stored token may get before it is refreshed.
const RefreshWindow = 5 * time.Minute

// RefreshFunc trades a refresh token for a new token at one provider.
type RefreshFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// TokenRefresher hands out valid access tokens for one provider, refreshing stored credentials
// when they are within [RefreshWindow] of expiring.
//
// Concurrent callers needing a refresh for the same user share a single provider round trip.
type TokenRefresher struct {
	provider models.ProviderType
	store    ConnectionStore
	refresh  RefreshFunc
	now      func() time.Time
	logger   *log.Logger
	group    singleflight.Group
}

// NewTokenRefresher creates a [TokenRefresher] for provider backed by store.
func NewTokenRefresher(provider models.ProviderType, store ConnectionStore, refresh RefreshFunc, logger *log.Logger, now func() time.Time) *TokenRefresher {
	if logger == nil {
		logger = log.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &TokenRefresher{
		provider: provider,
		store:    store,
		refresh:  refresh,
		now:      now,
		logger:   shared.WithLogger(logger, "component", "tokens", "provider", provider.Slug()),
	}
}

// ValidAccessToken returns the stored access token for userID, refreshing it first when it expires
// within [RefreshWindow] (inclusive). A refresh that returns no refresh token keeps the stored one.
//
// Errors:
//   - [shared.ErrNotConnected] when the user has no connection
//   - [shared.ErrNoExpiry] when no expiry was recorded
//   - [shared.ErrNoRefreshToken] when a refresh is due but impossible
//   - [*shared.UpstreamError] when the provider rejects the refresh
func (r *TokenRefresher) ValidAccessToken(ctx context.Context, userID string) (string, error) {
	conn, err := r.store.Get(userID, r.provider)
	if err != nil {
		return "", err
	}

	if conn.ExpiresAt == nil {
		return "", fmt.Errorf("%w: %s connection for user %s", shared.ErrNoExpiry, r.provider.Slug(), userID)
	}

	if !conn.NeedsRefresh(r.now(), RefreshWindow) {
		return conn.AccessToken, nil
	}

	token, err, _ := r.group.Do(r.provider.String()+":"+userID, func() (any, error) {
		return r.refreshConnection(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (r *TokenRefresher) refreshConnection(ctx context.Context, userID string) (string, error) {
	// Another caller may have refreshed between our read and entering the flight.
	conn, err := r.store.Get(userID, r.provider)
	if err != nil {
		return "", err
	}
	if conn.ExpiresAt != nil && !conn.NeedsRefresh(r.now(), RefreshWindow) {
		return conn.AccessToken, nil
	}

	if conn.RefreshToken == "" {
		return "", fmt.Errorf("%w: %s connection for user %s", shared.ErrNoRefreshToken, r.provider.Slug(), userID)
	}

	token, err := r.refresh(ctx, conn.RefreshToken)
	if err != nil {
		r.logger.Warn("token refresh rejected", "user", userID, "error", err)
		if errors.Is(err, shared.ErrUpstream) || errors.Is(err, shared.ErrConfiguration) {
			return "", err
		}
		return "", shared.NewUpstreamError(r.provider.Slug(), "refresh", err)
	}

	conn.ApplyToken(token)
	if err := r.store.UpdateTokens(conn); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	r.logger.Debug("token refreshed", "user", userID, "expires", conn.ExpiresAt)
	return conn.AccessToken, nil
}
