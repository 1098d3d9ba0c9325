package account

import (
	"sync"

	"workspaced/internal/config"
)

// Store is the durable half of the account model: the session registry.
// Configuration reloads rebuild accounts, but sessions are keyed by
// account name and survive, so a reload does not log anyone out or
// drop their variables.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore returns an empty session registry.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Build resolves one configuration generation into a Directory. The
// server swaps whole generations atomically; in-flight requests keep
// the directory they resolved against.
func (s *Store) Build(cfg *config.Configuration) *Directory {
	d := &Directory{
		cfg:   cfg,
		users: make(map[string]*Account, len(cfg.Users)),
		creds: make(map[string]config.UserAccount, len(cfg.Users)),
	}
	if !cfg.Guest.Disabled {
		var acctCfg config.Account
		if cfg.Guest.Account != nil {
			acctCfg = *cfg.Guest.Account
		}
		d.guest = &Account{
			guest:   true,
			cfg:     acctCfg,
			session: s.session(""),
		}
	}
	for _, u := range cfg.Users {
		d.users[u.Name] = &Account{
			name:    u.Name,
			cfg:     u.Account,
			session: s.session(u.Name),
		}
		d.creds[u.Name] = u
	}
	return d
}

func (s *Store) session(name string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[name]
	if !ok {
		sess = newSession()
		s.sessions[name] = sess
	}
	return sess
}

// Directory is the account set of one configuration generation.
type Directory struct {
	cfg   *config.Configuration
	guest *Account // nil when guest access is disabled
	users map[string]*Account
	creds map[string]config.UserAccount
}

// Config returns the configuration this directory was built from.
func (d *Directory) Config() *config.Configuration { return d.cfg }

// Guest returns the guest account, or nil when anonymous access is
// disabled.
func (d *Directory) Guest() *Account { return d.guest }

// Lookup returns the named account. Names match exactly.
func (d *Directory) Lookup(name string) (*Account, bool) {
	a, ok := d.users[name]
	return a, ok
}
