// Package services implements the provider layer: a uniform [MusicProvider] contract, one adapter
// per provider and a [Registry] for looking them up.
//
// # Adapters
//
// [SpotifyProvider] wraps github.com/zmb3/spotify/v2. [YouTubeProvider] wraps the generated
// google.golang.org/api/youtube/v3 client. Both embed the same OAuth flow (golang.org/x/oauth2)
// and talk to their provider through the shared rate-limited client from [shared.NewHTTPClient].
//
// # Tokens
//
// Stored credentials are handed out by a [TokenRefresher], which refreshes a token that expires
// within [RefreshWindow] and persists the result before returning it. Concurrent refreshes for the
// same user and provider share one round trip.
//
// # Errors
//
// Every provider failure is returned as a [*shared.UpstreamError] naming the provider and the
// operation. Lookups that find nothing wrap [shared.ErrNotFound]. Recommendations are the one
// exception: their failures are logged and an empty list is returned.
package services
