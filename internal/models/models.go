package models

import (
	"fmt"
	"strings"
	"time"
)

// Model is implemented by every persistent entity.
type Model interface {
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// Base holds the identity and timestamps shared by persistent entities.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stamp sets CreatedAt (when unset) and UpdatedAt to now.
func (b *Base) Stamp(now time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// ProviderType identifies a music provider. The set is closed.
type ProviderType string

const (
	Spotify ProviderType = "SPOTIFY"
	YouTube ProviderType = "YOUTUBE"
)

// ProviderTypes lists every known provider.
var ProviderTypes = []ProviderType{Spotify, YouTube}

// ParseProviderType accepts a provider name in any case ("spotify", "YOUTUBE").
func ParseProviderType(s string) (ProviderType, error) {
	p := ProviderType(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return p, nil
}

// Valid reports whether p is one of [ProviderTypes].
func (p ProviderType) Valid() bool {
	for _, known := range ProviderTypes {
		if p == known {
			return true
		}
	}
	return false
}

func (p ProviderType) String() string { return string(p) }

// Slug is the lower-case form used in logs and URLs.
func (p ProviderType) Slug() string { return strings.ToLower(string(p)) }
