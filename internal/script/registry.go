// Package script runs the endpoint modules bound to configured URL
// patterns. A module is a compiled-in set of per-HTTP-method handlers
// registered under a name; configuration binds patterns to names, and
// binding is validated once per configuration generation so a typo in
// the config fails at reload time, not on the first request.
package script

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// HandlerFunc handles one HTTP method of an endpoint module. A non-nil
// return value becomes the envelope data unless the handler already
// set data or raw content; a returned error becomes a script-failure
// envelope (or a bad-request envelope when it wraps ErrBadRequest).
type HandlerFunc func(a *Args) (any, error)

// ValidatorFunc approves or rejects a request before dispatch.
// Returning false or an error short-circuits the pipeline with a
// forbidden envelope.
type ValidatorFunc func(v *ValidatorArgs) (bool, error)

// Module maps lower-case HTTP method names ("get", "post", ...) to
// handlers. A missing method means 405 for that endpoint.
type Module map[string]HandlerFunc

// Registry holds the modules available for configuration to bind.
type Registry struct {
	mu         sync.Mutex
	modules    map[string]Module
	validators map[string]ValidatorFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules:    make(map[string]Module),
		validators: make(map[string]ValidatorFunc),
	}
}

// Register adds an endpoint module under a name. Method keys are
// normalized to lower case. Registering an empty module or reusing a
// name is a programming error.
func (r *Registry) Register(name string, m Module) error {
	if name == "" {
		return errors.New("script: module name is empty")
	}
	if len(m) == 0 {
		return fmt.Errorf("script: module %q has no handlers", name)
	}
	norm := make(Module, len(m))
	for method, h := range m {
		if h == nil {
			return fmt.Errorf("script: module %q: nil handler for %q", name, method)
		}
		norm[strings.ToLower(method)] = h
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.modules[name]; dup {
		return fmt.Errorf("script: module %q already registered", name)
	}
	r.modules[name] = norm
	return nil
}

// MustRegister is Register that panics, for init-time wiring.
func (r *Registry) MustRegister(name string, m Module) {
	if err := r.Register(name, m); err != nil {
		panic(err)
	}
}

// RegisterValidator adds a validator module under a name.
func (r *Registry) RegisterValidator(name string, v ValidatorFunc) error {
	if name == "" {
		return errors.New("script: validator name is empty")
	}
	if v == nil {
		return fmt.Errorf("script: validator %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.validators[name]; dup {
		return fmt.Errorf("script: validator %q already registered", name)
	}
	r.validators[name] = v
	return nil
}

// Module looks up a registered endpoint module.
func (r *Registry) Module(name string) (Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[name]
	return m, ok
}

// Validator looks up a registered validator.
func (r *Registry) Validator(name string) (ValidatorFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.validators[name]
	return v, ok
}

// Names lists registered module names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.modules))
	for n := range r.modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
