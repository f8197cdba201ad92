package shared

import (
	"errors"
	"fmt"
)

var (
	// Error categories surfaced to callers
	ErrNotFound        = fmt.Errorf("not found")
	ErrAccessDenied    = fmt.Errorf("access denied") // ownership failures surface as ErrNotFound instead
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrAlreadyExists   = fmt.Errorf("already exists")
	ErrUpstream        = fmt.Errorf("upstream provider error")
	ErrConfiguration   = fmt.Errorf("configuration error")
	ErrReplayOrExpired = fmt.Errorf("state token expired or already used")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("%w: configuration not found", ErrConfiguration)
	ErrInvalidConfig      = fmt.Errorf("%w: invalid configuration", ErrConfiguration)
	ErrMissingCredentials = fmt.Errorf("%w: missing credentials", ErrConfiguration)

	// Token vault errors
	ErrNotConnected   = fmt.Errorf("%w: service not connected", ErrNotFound)
	ErrNoExpiry       = fmt.Errorf("%w: token expiry not recorded", ErrConfiguration)
	ErrNoRefreshToken = fmt.Errorf("%w: no refresh token available", ErrConfiguration)

	// Domain errors
	ErrUnsupportedProvider = fmt.Errorf("%w: unsupported provider", ErrNotFound)
	ErrUserNotFound        = fmt.Errorf("%w: user", ErrNotFound)
	ErrPlaylistNotFound    = fmt.Errorf("%w: playlist", ErrNotFound)
	ErrTrackNotFound       = fmt.Errorf("%w: track", ErrNotFound)
	ErrSyncNotFound        = fmt.Errorf("%w: sync", ErrNotFound)
	ErrSyncFailed          = fmt.Errorf("sync failed")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("%w: missing required argument", ErrInvalidArgument)
	ErrInvalidFlag     = fmt.Errorf("%w: invalid flag value", ErrInvalidArgument)
)

// UpstreamError wraps a failure returned by a provider API with the provider and operation that produced it.
//
// It matches [ErrUpstream] with [errors.Is] and unwraps to the underlying cause.
type UpstreamError struct {
	Provider string
	Op       string
	Err      error
}

// NewUpstreamError wraps err for the given provider and operation. A nil err returns nil.
func NewUpstreamError(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Provider: provider, Op: op, Err: err}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// SafeMessage returns a message suitable for end users.
//
// Validation and lookup failures keep their text, everything else collapses to a generic message
// so that provider payloads never leak.
func SafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrReplayOrExpired):
		return err.Error()
	default:
		return "internal error"
	}
}
