// Package server provides HTTP routing, middleware, the JSON API and the OAuth callback handler.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so "GET /syncs/{id}" style
// routes work and a wrong method gets 405.
//
// # Identity
//
// tunesync does not authenticate end users itself. An upstream proxy sets [UserHeader] and
// [RequireUser] rejects requests whose header is missing or names an unknown user.
// The OAuth callback is the only route without it: the user comes from the redeemed state token.
//
// # Errors
//
// Handlers map error categories to statuses: not found is 404, invalid input and expired state
// are 400, duplicates are 409. Everything else is a 500 with a generic message, so provider
// payloads never reach the client.
//
// # OAuth Callback Handler
//
// [OAuthHandler] serves a provider's redirect URI for the CLI connect command. A temporary server
// handles exactly one callback, sends the outcome through a channel and shuts down.
package server
