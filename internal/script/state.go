package script

import "sync"

// Map is a guarded associative store shared between endpoint
// invocations. The guard protects the map structure only: values are
// handed out by reference, and value-level coordination between
// concurrently running handlers is the module author's business.
type Map struct {
	mu sync.Mutex
	m  map[string]any
}

// NewMap returns an empty store.
func NewMap() *Map {
	return &Map{m: make(map[string]any)}
}

// Get reads a key.
func (m *Map) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[key]
	return v, ok
}

// Set writes a key.
func (m *Map) Set(key string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = v
}

// Delete removes a key.
func (m *Map) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
}

// Has reports whether a key exists.
func (m *Map) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.m[key]
	return ok
}

// Len returns the number of keys.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.m)
}

// Stores are the injected shared-state scopes handed to invocations.
//
//   - Global is shared by all endpoint modules.
//   - Workspace is shared by every module in the process, validator
//     included.
//   - Per-endpoint state is private to one endpoint pattern and is
//     persisted across invocations of that pattern, reloads included.
type Stores struct {
	Global    *Map
	Workspace *Map

	mu        sync.Mutex
	endpoints map[string]*endpointState
}

// endpointState carries one endpoint's persistent state plus the lock
// that serializes its invocations.
type endpointState struct {
	run    sync.Mutex // held for the whole invocation
	mu     sync.Mutex // guards val/seeded
	val    any
	seeded bool
}

// NewStores returns empty shared-state scopes.
func NewStores() *Stores {
	return &Stores{
		Global:    NewMap(),
		Workspace: NewMap(),
		endpoints: make(map[string]*endpointState),
	}
}

func (s *Stores) endpoint(pattern string) *endpointState {
	s.mu.Lock()
	defer s.mu.Unlock()
	es, ok := s.endpoints[pattern]
	if !ok {
		es = &endpointState{}
		s.endpoints[pattern] = es
	}
	return es
}

// load reads the endpoint's current persistent state, seeding it from
// the configured initial value on first use.
func (es *endpointState) load(seed any) any {
	es.mu.Lock()
	defer es.mu.Unlock()
	if !es.seeded {
		es.val = deepCopy(seed)
		es.seeded = true
	}
	return es.val
}

func (es *endpointState) store(v any) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.val = v
	es.seeded = true
}
