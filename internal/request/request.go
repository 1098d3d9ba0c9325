// Package request carries the immutable per-request snapshot handed to
// filesystem handlers and endpoint modules.
package request

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"workspaced/internal/account"
	"workspaced/internal/config"
)

// Context is built once per request after identity resolution and
// never mutated afterwards. The raw Request/Writer handles are exposed
// for body streaming; everything else is a parsed snapshot.
type Context struct {
	// ID is the request correlation ID (also sent as
	// X-Workspaced-Request-Id).
	ID string

	// ClientHost and ClientPort identify the peer.
	ClientHost string
	ClientPort string

	// Config is the configuration generation this request resolved
	// against. It stays consistent for the whole request even if the
	// server reloads mid-flight.
	Config *config.Configuration

	// Method is the HTTP method, upper-case.
	Method string

	// URL is the parsed request URL.
	URL *url.URL

	// Query holds the parsed GET parameters.
	Query url.Values

	// Time is when the request entered the pipeline.
	Time time.Time

	// User is the resolved identity.
	User *account.User

	// Raw transport handles.
	Request *http.Request
	Writer  http.ResponseWriter
}

// New snapshots an HTTP request. user may not be nil.
func New(id string, cfg *config.Configuration, user *account.User, w http.ResponseWriter, r *http.Request) *Context {
	host, port, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return &Context{
		ID:         id,
		ClientHost: host,
		ClientPort: port,
		Config:     cfg,
		Method:     r.Method,
		URL:        r.URL,
		Query:      r.URL.Query(),
		Time:       time.Now(),
		User:       user,
		Request:    r,
		Writer:     w,
	}
}
