// Package httpserver assembles the request pipeline: identity
// resolution, endpoint routing, script invocation, and the filesystem
// surface, all rendered through the uniform response envelope.
package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/webdav"

	"workspaced/internal/account"
	"workspaced/internal/config"
	"workspaced/internal/dedup"
	"workspaced/internal/envelope"
	"workspaced/internal/fsutil"
	"workspaced/internal/request"
	"workspaced/internal/router"
	"workspaced/internal/script"
	"workspaced/internal/upload"
)

// Options configures a Server.
type Options struct {
	Config   *config.Configuration
	Registry *script.Registry
	Logger   zerolog.Logger
}

// Server is the request pipeline. Everything derived from one
// configuration file lives in a generation; Reload swaps generations
// atomically and in-flight requests keep the one they started with.
type Server struct {
	registry *script.Registry
	sessions *account.Store
	engine   *script.Engine
	log      zerolog.Logger

	gen atomic.Pointer[generation]
}

// generation is one consistent configuration snapshot: accounts,
// compiled routes, bound modules, and the storage helpers rooted at
// the configured workspace.
type generation struct {
	cfg     *config.Configuration
	dir     *account.Directory
	table   *router.Table
	binding *script.Binding
	blobs   *dedup.Store
	uploads *upload.Manager
	dav     *webdav.Handler
}

// New builds a server for the initial configuration.
func New(opts Options) (*Server, error) {
	reg := opts.Registry
	if reg == nil {
		reg = script.NewRegistry()
	}
	s := &Server{
		registry: reg,
		sessions: account.NewStore(),
		engine:   script.NewEngine(reg, script.NewStores()),
		log:      opts.Logger,
	}
	if err := s.Reload(opts.Config); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload validates and installs a new configuration generation. On
// error nothing is swapped and the previous generation keeps serving.
func (s *Server) Reload(cfg *config.Configuration) error {
	table, err := router.Compile(cfg.Endpoints)
	if err != nil {
		return err
	}
	binding, err := s.engine.Bind(cfg)
	if err != nil {
		return err
	}
	blobs, err := dedup.New(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	uploads, err := upload.New(cfg.Root, cfg.StateDir, blobs)
	if err != nil {
		return fmt.Errorf("upload manager: %w", err)
	}
	g := &generation{
		cfg:     cfg,
		dir:     s.sessions.Build(cfg),
		table:   table,
		binding: binding,
		blobs:   blobs,
		uploads: uploads,
		dav: &webdav.Handler{
			Prefix:     "/dav",
			FileSystem: webdav.Dir(cfg.Root),
			LockSystem: webdav.NewMemLS(),
		},
	}
	s.gen.Store(g)
	s.log.Info().
		Int("endpoints", table.Len()).
		Int("users", len(cfg.Users)).
		Bool("guest", !cfg.Guest.Disabled).
		Str("root", cfg.Root).
		Msg("configuration installed")
	return nil
}

// Engine exposes the script engine (for registration-time checks and
// tests).
func (s *Server) Engine() *script.Engine { return s.engine }

// Handler builds the HTTP routing surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	// Login helper for browsers: triggers the BasicAuth prompt.
	r.Get("/login", func(w http.ResponseWriter, req *http.Request) {
		g := s.gen.Load()
		if _, err := g.dir.Resolve(req); err != nil {
			s.challenge(w, g)
			return
		}
		http.Redirect(w, req, "/api/", http.StatusFound)
	})

	r.Handle("/dav", http.HandlerFunc(s.handleDAV))
	r.Handle("/dav/*", http.HandlerFunc(s.handleDAV))

	r.Get("/thumb", s.withIdentity(s.handleThumb))
	r.Get("/search", s.withIdentity(s.handleSearch))

	r.Post("/uploads", s.withIdentity(s.handleUploadCreate))
	r.Get("/uploads/{id}", s.withIdentity(s.handleUploadStatus))
	r.Patch("/uploads/{id}", s.withIdentity(s.handleUploadPatch))
	r.Post("/uploads/{id}/finish", s.withIdentity(s.handleUploadFinish))

	api := s.withIdentity(s.handleAPI)
	r.Handle("/api", api)
	r.Handle("/api/*", api)

	return r
}

// pipelineFunc is a handler running after successful identity
// resolution.
type pipelineFunc func(g *generation, rc *request.Context)

// withIdentity resolves the caller to exactly one account or rejects
// with a 401/403 envelope before any routing happens.
func (s *Server) withIdentity(next pipelineFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g := s.gen.Load()
		acct, err := g.dir.Resolve(r)
		if err != nil {
			s.rejectIdentity(w, r, g, err)
			return
		}
		user := account.NewUser(acct, g.cfg.WithDot)
		rc := request.New(requestID(r), g.cfg, user, w, r)
		w.Header().Set("X-Request-Id", rc.ID)
		next(g, rc)
	}
}

func (s *Server) rejectIdentity(w http.ResponseWriter, r *http.Request, g *generation, err error) {
	if err == account.ErrForbidden {
		s.respond(w, r, envelope.Error(envelope.CodeForbidden, "account is not active"))
		return
	}
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", g.cfg.Realm))
	s.respond(w, r, envelope.Error(envelope.CodeUnauthorized, "authentication required"))
}

func (s *Server) challenge(w http.ResponseWriter, g *generation) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", g.cfg.Realm))
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// handleAPI is the core dispatch: custom endpoints first, filesystem
// fallback second.
func (s *Server) handleAPI(g *generation, rc *request.Context) {
	w, r := rc.Writer, rc.Request
	apiPath := strings.TrimPrefix(rc.URL.Path, "/api")
	if apiPath == "" {
		apiPath = "/"
	}

	if m, ok := g.table.Lookup(apiPath); ok {
		s.dispatchEndpoint(g, rc, m, apiPath)
		return
	}

	rel := fsutil.CleanRelPath(apiPath)
	switch rc.Method {
	case http.MethodGet, http.MethodHead:
		s.fsGet(g, rc, rel)
	case http.MethodPut, http.MethodPost:
		s.fsWrite(g, rc, rel)
	case http.MethodDelete:
		s.fsDelete(g, rc, rel)
	default:
		s.respond(w, r, envelope.Error(envelope.CodeMethodNotAllowed,
			fmt.Sprintf("method %s not supported on filesystem paths", rc.Method)))
	}
}

func (s *Server) dispatchEndpoint(g *generation, rc *request.Context, m *router.Match, apiPath string) {
	w, r := rc.Writer, rc.Request
	if !rc.User.Can(account.CapExecute) {
		s.respond(w, r, envelope.Error(envelope.CodeForbidden, "account may not execute endpoints"))
		return
	}
	ok, err := g.binding.Validate(apiPath, rc)
	if err != nil {
		s.log.Warn().Err(err).Str("path", apiPath).Msg("validator error")
	}
	if !ok {
		s.respond(w, r, envelope.Error(envelope.CodeForbidden, "request rejected by validator"))
		return
	}
	out := g.binding.Invoke(m.Route.Endpoint, m.Params, rc)
	s.respondOutcome(w, r, out)
}

// logRequests tags every request with a correlation ID and logs its
// completion.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		r.Header.Set(requestIDHeader, id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info().
			Str("id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("dur", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

const requestIDHeader = "X-Workspaced-Request-Id"

func requestID(r *http.Request) string {
	if id := r.Header.Get(requestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}
