package shared

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// NewHTTPClient builds the client used for every outbound provider call.
//
// Requests are bounded by the configured timeout, follow at most MaxRedirects redirects
// and are paced by a [rate.Limiter] shared by all requests made through the client.
func NewHTTPClient(cfg HTTPConfig) *http.Client {
	return NewHTTPClientWithTransport(cfg, http.DefaultTransport)
}

// NewHTTPClientWithTransport is [NewHTTPClient] with an explicit base transport.
func NewHTTPClientWithTransport(cfg HTTPConfig, base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}

	maxRedirects := cfg.MaxRedirects
	transport := base
	if cfg.RequestsPerSecond > 0 {
		transport = &limitedTransport{
			base:    base,
			limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		}
	}

	return &http.Client{
		Timeout:   cfg.Timeout(),
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// limitedTransport waits on a [rate.Limiter] before each round trip.
type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
