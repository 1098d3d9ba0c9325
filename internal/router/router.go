// Package router matches request paths against configured endpoint
// patterns. Patterns are compiled once per configuration generation;
// requests only walk the compiled table.
//
// Precedence is fixed and deterministic: the structurally matching
// pattern with the most literal (non-placeholder) segments wins, and
// among equals the one declared earlier in the configuration wins.
package router

import (
	"fmt"
	"sort"
	"strings"

	"workspaced/internal/config"
)

type segment struct {
	literal string
	param   string // set when the segment is a {name} placeholder
}

// Route is one compiled endpoint pattern.
type Route struct {
	Endpoint *config.Endpoint
	segments []segment
	literals int
	declared int
}

// Pattern returns the source pattern of the route.
func (r *Route) Pattern() string { return r.Endpoint.Pattern }

// Match is a successful routing decision.
type Match struct {
	Route  *Route
	Params map[string]string
}

// Table is the compiled, precedence-ordered route set of one
// configuration generation.
type Table struct {
	routes []*Route
}

// Compile builds the table from the configured endpoints. Inactive
// endpoints are dropped here so requests never consider them.
// Patterns must be absolute ("/..."), with placeholders only as whole
// segments: "/users/{id}" is valid, "/users/x{id}" is not.
func Compile(endpoints config.EndpointList) (*Table, error) {
	t := &Table{}
	for i := range endpoints {
		ep := &endpoints[i]
		if !ep.Active() {
			continue
		}
		r, err := compileRoute(ep, i)
		if err != nil {
			return nil, err
		}
		t.routes = append(t.routes, r)
	}
	sort.SliceStable(t.routes, func(a, b int) bool {
		if t.routes[a].literals != t.routes[b].literals {
			return t.routes[a].literals > t.routes[b].literals
		}
		return t.routes[a].declared < t.routes[b].declared
	})
	return t, nil
}

func compileRoute(ep *config.Endpoint, declared int) (*Route, error) {
	pat := ep.Pattern
	if !strings.HasPrefix(pat, "/") {
		return nil, fmt.Errorf("router: pattern %q must start with /", pat)
	}
	r := &Route{Endpoint: ep, declared: declared}
	seen := map[string]bool{}
	for _, raw := range splitPath(pat) {
		if name, ok := paramName(raw); ok {
			if name == "" {
				return nil, fmt.Errorf("router: pattern %q has an unnamed placeholder", pat)
			}
			if seen[name] {
				return nil, fmt.Errorf("router: pattern %q repeats placeholder %q", pat, name)
			}
			seen[name] = true
			r.segments = append(r.segments, segment{param: name})
			continue
		}
		if raw == "" {
			return nil, fmt.Errorf("router: pattern %q has an empty segment", pat)
		}
		if strings.ContainsAny(raw, "{}") {
			return nil, fmt.Errorf("router: pattern %q: placeholders must span a whole segment", pat)
		}
		r.segments = append(r.segments, segment{literal: raw})
		r.literals++
	}
	return r, nil
}

// Lookup finds the winning route for a path, or reports no match so
// the caller falls back to the filesystem surface.
func (t *Table) Lookup(path string) (*Match, bool) {
	segs := splitPath(path)
	for _, r := range t.routes {
		if params, ok := r.match(segs); ok {
			return &Match{Route: r, Params: params}, true
		}
	}
	return nil, false
}

// Len returns the number of active routes.
func (t *Table) Len() int { return len(t.routes) }

func (r *Route) match(segs []string) (map[string]string, bool) {
	if len(segs) != len(r.segments) {
		return nil, false
	}
	var params map[string]string
	for i, s := range r.segments {
		if s.param != "" {
			if segs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[s.param] = segs[i]
			continue
		}
		if s.literal != segs[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func paramName(seg string) (string, bool) {
	if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}
