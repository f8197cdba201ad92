package models

import (
	"fmt"
	"strings"
)

// User is the identity anchor for connections, playlists and syncs.
type User struct {
	Base
	Sequence int    `json:"-"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// NewUser creates a user that has not been persisted yet.
func NewUser(email, name string) *User {
	return &User{Email: strings.TrimSpace(email), Name: strings.TrimSpace(name)}
}

func (u *User) Validate() error {
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		return fmt.Errorf("invalid email %q", u.Email)
	}
	return nil
}
