package services

import (
	"fmt"
	"slices"
	"sync"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// Registry maps each [models.ProviderType] to its [MusicProvider].
type Registry struct {
	mu        sync.RWMutex
	providers map[models.ProviderType]MusicProvider
}

// NewRegistry creates a registry holding providers.
func NewRegistry(providers ...MusicProvider) *Registry {
	r := &Registry{providers: make(map[models.ProviderType]MusicProvider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// NewRegistryFromConfig builds an adapter for every provider whose credentials are configured.
// A provider with a client id but incomplete credentials fails the whole startup.
func NewRegistryFromConfig(cfg *shared.Config, deps Deps) (*Registry, error) {
	r := NewRegistry()

	if creds := cfg.Credentials.Spotify; creds.ClientID != "" {
		p, err := NewSpotifyProvider(creds, deps)
		if err != nil {
			return nil, err
		}
		r.Register(p)
	}

	if creds := cfg.Credentials.YouTube; creds.ClientID != "" {
		p, err := NewYouTubeProvider(creds, deps)
		if err != nil {
			return nil, err
		}
		r.Register(p)
	}

	return r, nil
}

// Register adds p, replacing any provider of the same type.
func (r *Registry) Register(p MusicProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Type()] = p
}

// Get returns the provider for t or [shared.ErrUnsupportedProvider].
func (r *Registry) Get(t models.ProviderType) (MusicProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnsupportedProvider, t)
	}
	return p, nil
}

// Lookup parses name (any case) and returns its provider.
func (r *Registry) Lookup(name string) (MusicProvider, error) {
	t, err := models.ParseProviderType(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnsupportedProvider, name)
	}
	return r.Get(t)
}

// Types returns the registered provider types in sorted order.
func (r *Registry) Types() []models.ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.ProviderType, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Supported lists the registered providers for display.
func (r *Registry) Supported() []models.ProviderInfo {
	infos := []models.ProviderInfo{}
	for _, t := range r.Types() {
		p, err := r.Get(t)
		if err != nil {
			continue
		}
		infos = append(infos, models.ProviderInfo{Type: t, Name: p.Name()})
	}
	return infos
}
