package users

import (
	"time"

	"github.com/tagboard/tagboard/internal/access"
)

// User represents a registered account.
type User struct {
	ID               int64
	Name             string
	PasswordSalt     string
	PasswordHash     string
	Rank             access.Rank
	EmailConfirmed   string
	EmailUnconfirmed string
	EmailToken       string
	StaffConfirmed   bool
	Banned           bool
	JoinedAt         time.Time
	LastLoginAt      time.Time
}

// Identity snapshots the user as an acting principal.
func (u *User) Identity() access.Identity {
	if u == nil {
		return access.AnonymousIdentity()
	}
	return access.Identity{
		Name:           u.Name,
		Rank:           u.Rank,
		Banned:         u.Banned,
		StaffConfirmed: u.StaffConfirmed,
		EmailConfirmed: u.EmailConfirmed != "",
	}
}

// IsNew reports whether the user has not been persisted yet.
func (u *User) IsNew() bool {
	return u.ID == 0
}

// Clone returns a copy safe to mutate.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}
