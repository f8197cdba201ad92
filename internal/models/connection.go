package models

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// ServiceConnection holds the OAuth credentials linking one user to one provider.
type ServiceConnection struct {
	Base
	UserID        string       `json:"userId"`
	Service       ProviderType `json:"service"`
	AccessToken   string       `json:"-"`
	RefreshToken  string       `json:"-"`
	ExpiresAt     *time.Time   `json:"expiresAt,omitempty"`
	ServiceUserID string       `json:"serviceUserId"`
}

// NewServiceConnection builds a connection from a freshly exchanged token.
func NewServiceConnection(userID string, service ProviderType, token *oauth2.Token, serviceUserID string) *ServiceConnection {
	conn := &ServiceConnection{UserID: userID, Service: service, ServiceUserID: serviceUserID}
	conn.ApplyToken(token)
	return conn
}

// ApplyToken copies token into the connection.
//
// An empty refresh token keeps the stored one, since providers commonly omit it on refresh.
func (c *ServiceConnection) ApplyToken(token *oauth2.Token) {
	if token == nil {
		return
	}
	c.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		c.RefreshToken = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		c.ExpiresAt = &expiry
	}
}

// NeedsRefresh reports whether the access token expires within window of now. The boundary is inclusive.
func (c *ServiceConnection) NeedsRefresh(now time.Time, window time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !c.ExpiresAt.After(now.Add(window))
}

// Token returns the connection as an [oauth2.Token].
func (c *ServiceConnection) Token() *oauth2.Token {
	token := &oauth2.Token{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken, TokenType: "Bearer"}
	if c.ExpiresAt != nil {
		token.Expiry = *c.ExpiresAt
	}
	return token
}

func (c *ServiceConnection) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if !c.Service.Valid() {
		return fmt.Errorf("invalid service %q", c.Service)
	}
	if c.AccessToken == "" {
		return fmt.Errorf("access token is required")
	}
	return nil
}
