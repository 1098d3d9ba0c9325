package account

import (
	"workspaced/internal/visibility"
)

// User binds a resolved account to one request. It is created by the
// identity middleware and discarded when the response is sent; the
// variable store behind Get/Set/Unset/Has is the account session, so
// values persist across that identity's requests.
type User struct {
	acct  *Account
	rules visibility.Rules
}

// NewUser wraps a resolved account with the global dot-file default of
// the configuration generation the request resolved against.
func NewUser(acct *Account, globalWithDot bool) *User {
	return &User{
		acct: acct,
		rules: visibility.Rules{
			Include:       acct.Files(),
			Exclude:       acct.Exclude(),
			WithDot:       acct.WithDot(),
			GlobalWithDot: globalWithDot,
		},
	}
}

// Account returns the backing account.
func (u *User) Account() *Account { return u.acct }

// Name returns the account name, "" for the guest.
func (u *User) Name() string { return u.acct.Name() }

// IsGuest reports whether the request is anonymous.
func (u *User) IsGuest() bool { return u.acct.IsGuest() }

// Can reports a capability of the backing account.
func (u *User) Can(c Capability) bool { return u.acct.Can(c) }

// Get reads a user variable.
func (u *User) Get(key string) (any, bool) { return u.acct.session.getVar(key) }

// Set writes a user variable.
func (u *User) Set(key string, v any) { u.acct.session.setVar(key, v) }

// Unset removes a user variable.
func (u *User) Unset(key string) { u.acct.session.unsetVar(key) }

// Has reports whether a user variable exists.
func (u *User) Has(key string) bool {
	_, ok := u.acct.session.getVar(key)
	return ok
}

// IsDirVisible reports whether a workspace-relative directory may be
// disclosed to this user.
func (u *User) IsDirVisible(rel string) bool {
	return u.rules.Visible(rel, true)
}

// IsFileVisible reports whether a workspace-relative file may be
// disclosed to this user.
func (u *User) IsFileVisible(rel string) bool {
	return u.rules.Visible(rel, false)
}
