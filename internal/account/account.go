// Package account holds the resolved identity model: accounts built
// from configuration, per-account session data that survives requests,
// and the per-request User wrapper handed to handlers.
package account

import (
	"sync"

	"workspaced/internal/config"
)

// Capability is one class of operation an account may be granted.
type Capability int

const (
	CapOpen Capability = iota + 1
	CapWrite
	CapCreate
	CapDelete
	CapExecute
	CapClose
	CapActivate
)

func (c Capability) String() string {
	switch c {
	case CapOpen:
		return "open"
	case CapWrite:
		return "write"
	case CapCreate:
		return "create"
	case CapDelete:
		return "delete"
	case CapExecute:
		return "execute"
	case CapClose:
		return "close"
	case CapActivate:
		return "activate"
	default:
		return "unknown"
	}
}

// Account is one resolved identity: the configuration shape plus the
// session attached to it. Accounts are rebuilt on every configuration
// swap; sessions survive swaps, keyed by account name.
type Account struct {
	name    string // "" for the guest
	guest   bool
	cfg     config.Account
	session *Session
}

// Name returns the account name, or "" for the guest.
func (a *Account) Name() string { return a.name }

// IsGuest reports whether this is the anonymous guest account.
func (a *Account) IsGuest() bool { return a.guest }

// Active reports whether the account may authorize anything.
func (a *Account) Active() bool { return a.cfg.Active() }

// Values returns the account's free-form configuration data.
func (a *Account) Values() map[string]any { return a.cfg.Values }

// Files returns the account's include globs.
func (a *Account) Files() []string { return a.cfg.Files }

// Exclude returns the account's exclude globs.
func (a *Account) Exclude() []string { return a.cfg.Exclude }

// WithDot returns the account's dot-file override, nil to defer to the
// global default.
func (a *Account) WithDot() *bool { return a.cfg.WithDot }

// Session returns the account's mutable cross-request session.
func (a *Account) Session() *Session { return a.session }

// Can reports whether the account holds a capability. An inactive
// account holds none, whatever its flags say. Unset flags default to
// open-only.
func (a *Account) Can(c Capability) bool {
	if !a.cfg.Active() {
		return false
	}
	var flag *bool
	switch c {
	case CapOpen:
		flag = a.cfg.CanOpen
	case CapWrite:
		flag = a.cfg.CanWrite
	case CapCreate:
		flag = a.cfg.CanCreate
	case CapDelete:
		flag = a.cfg.CanDelete
	case CapExecute:
		flag = a.cfg.CanExecute
	case CapClose:
		flag = a.cfg.CanClose
	case CapActivate:
		flag = a.cfg.CanActivate
	default:
		return false
	}
	if flag != nil {
		return *flag
	}
	return c == CapOpen
}

// Session carries the mutable per-account data that outlives a single
// request: audit globals (last authentication outcome and time) and the
// user variable store exposed through User.Get/Set/Unset/Has. Both maps
// are guarded; handlers touch them only through methods.
type Session struct {
	mu      sync.Mutex
	globals map[string]any
	vars    map[string]any
}

func newSession() *Session {
	return &Session{
		globals: make(map[string]any),
		vars:    make(map[string]any),
	}
}

// SetGlobal stashes an audit/session value on the account.
func (s *Session) SetGlobal(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals[key] = v
}

// Global reads an audit/session value.
func (s *Session) Global(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.globals[key]
	return v, ok
}

func (s *Session) setVar(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[key] = v
}

func (s *Session) getVar(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[key]
	return v, ok
}

func (s *Session) unsetVar(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, key)
}
