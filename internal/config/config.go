// Package config defines the JSON-friendly configuration shapes for
// workspaced. A Configuration value is an immutable snapshot: the
// server swaps whole snapshots on reload and never mutates one that is
// already serving requests.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
)

// Configuration is the root of the config file.
type Configuration struct {
	// Root is the workspace directory served over HTTP (required).
	Root string `json:"root"`

	// StateDir stores upload parts, the blob store, and thumbnails.
	// Default: <root>/.workspaced
	StateDir string `json:"stateDir,omitempty"`

	// Realm is the Basic-Auth realm used in WWW-Authenticate challenges.
	Realm string `json:"realm,omitempty"`

	// WithDot shows dot-prefixed entries to accounts that do not set
	// their own withDot override.
	WithDot bool `json:"withDot,omitempty"`

	// Compress enables gzip response bodies when the client supports
	// them. Default: true.
	Compress *bool `json:"compress,omitempty"`

	// Guest controls anonymous access: false disables it, true or
	// omitted enables a default-permission guest, an object configures
	// a custom guest account.
	Guest GuestSetting `json:"guest,omitempty"`

	// Users are the named accounts matched by Basic-Auth credentials.
	Users []UserAccount `json:"users,omitempty"`

	// Endpoints binds URL patterns to registered endpoint modules.
	// Declaration order in the file breaks matching ties.
	Endpoints EndpointList `json:"endpoints,omitempty"`

	// Validator, when set, names a registered validator module invoked
	// before every endpoint dispatch.
	Validator *ValidatorRef `json:"validator,omitempty"`

	// Globals is arbitrary configuration data handed to endpoint
	// modules as a per-invocation copy.
	Globals map[string]any `json:"globals,omitempty"`
}

// Account is the permission set of one identity.
type Account struct {
	// Capability flags. An unset flag defaults to false, except
	// canOpen which defaults to true.
	CanOpen     *bool `json:"canOpen,omitempty"`
	CanWrite    *bool `json:"canWrite,omitempty"`
	CanCreate   *bool `json:"canCreate,omitempty"`
	CanDelete   *bool `json:"canDelete,omitempty"`
	CanExecute  *bool `json:"canExecute,omitempty"`
	CanClose    *bool `json:"canClose,omitempty"`
	CanActivate *bool `json:"canActivate,omitempty"`

	// Files are include globs; empty means the whole workspace.
	Files []string `json:"files,omitempty"`
	// Exclude globs reject unconditionally.
	Exclude []string `json:"exclude,omitempty"`

	// WithDot overrides the global dot-file policy for this account.
	WithDot *bool `json:"withDot,omitempty"`

	// IsActive false disables the account entirely.
	IsActive *bool `json:"isActive,omitempty"`

	// Values is free-form data exposed to endpoint modules.
	Values map[string]any `json:"values,omitempty"`
}

// Active reports whether the account may authorize anything at all.
func (a *Account) Active() bool {
	return a.IsActive == nil || *a.IsActive
}

// UserAccount is a named account matched against Basic-Auth
// credentials. Exactly one of Password (plaintext, constant-time
// compare) or Bcrypt (hash from the passwd subcommand) must be set.
type UserAccount struct {
	Account
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
	Bcrypt   string `json:"bcrypt,omitempty"`
}

// GuestSetting is the tri-state guest knob: absent/true, false, or a
// full Account object.
type GuestSetting struct {
	// Disabled is true only when the config says "guest": false.
	Disabled bool
	// Account is the custom guest policy, nil for the default guest.
	Account *Account
}

func (g *GuestSetting) UnmarshalJSON(b []byte) error {
	var enabled bool
	if err := json.Unmarshal(b, &enabled); err == nil {
		g.Disabled = !enabled
		g.Account = nil
		return nil
	}
	var acct Account
	if err := json.Unmarshal(b, &acct); err != nil {
		return fmt.Errorf("guest: expected bool or account object: %w", err)
	}
	g.Disabled = false
	g.Account = &acct
	return nil
}

func (g GuestSetting) MarshalJSON() ([]byte, error) {
	if g.Account != nil {
		return json.Marshal(g.Account)
	}
	return json.Marshal(!g.Disabled)
}

// Endpoint binds a URL pattern (the key in the endpoints object) to a
// registered module.
type Endpoint struct {
	// Pattern is filled from the endpoints object key, e.g.
	// "/users/{id}". Not part of the value's JSON shape.
	Pattern string `json:"-"`

	// Script names the registered endpoint module.
	Script string `json:"script"`

	// Options is free-form data handed to every invocation.
	Options any `json:"options,omitempty"`

	// State seeds the endpoint's persistent state on first use.
	State any `json:"state,omitempty"`

	// IsActive false removes the endpoint from routing.
	IsActive *bool `json:"isActive,omitempty"`
}

// Active reports whether the endpoint participates in routing.
func (e *Endpoint) Active() bool {
	return e.IsActive == nil || *e.IsActive
}

// ValidatorRef names the global validator module and its options.
type ValidatorRef struct {
	Script  string `json:"script"`
	Options any    `json:"options,omitempty"`
}

// Normalize fills defaults, resolves Root to an absolute path, and
// rejects shapes that cannot serve.
func (c *Configuration) Normalize() error {
	if c.Root == "" {
		return errors.New("config: root is required")
	}
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("config: resolve root: %w", err)
	}
	c.Root = abs
	if c.StateDir == "" {
		c.StateDir = filepath.Join(c.Root, ".workspaced")
	}
	if c.Realm == "" {
		c.Realm = "workspaced"
	}
	seen := make(map[string]bool, len(c.Users))
	for i := range c.Users {
		u := &c.Users[i]
		if u.Name == "" {
			return fmt.Errorf("config: users[%d]: name is required", i)
		}
		if seen[u.Name] {
			return fmt.Errorf("config: duplicate user %q", u.Name)
		}
		seen[u.Name] = true
		if (u.Password == "") == (u.Bcrypt == "") {
			return fmt.Errorf("config: user %q: exactly one of password or bcrypt is required", u.Name)
		}
	}
	for i := range c.Endpoints {
		e := &c.Endpoints[i]
		if e.Script == "" {
			return fmt.Errorf("config: endpoint %q: script is required", e.Pattern)
		}
	}
	if c.Validator != nil && c.Validator.Script == "" {
		return errors.New("config: validator: script is required")
	}
	return nil
}

// CompressEnabled resolves the Compress default.
func (c *Configuration) CompressEnabled() bool {
	return c.Compress == nil || *c.Compress
}
