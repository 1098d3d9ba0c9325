package httpserver

import (
	"net/http"
	"os"
	"path"
	"strings"

	"workspaced/internal/account"
	"workspaced/internal/fsutil"
)

// handleDAV serves the workspace over WebDAV under /dav/, enforcing
// the same capability and visibility gates as the API surface. WebDAV
// clients expect plain HTTP errors, not envelopes.
func (s *Server) handleDAV(w http.ResponseWriter, r *http.Request) {
	g := s.gen.Load()
	acct, err := g.dir.Resolve(r)
	if err != nil {
		s.challenge(w, g)
		return
	}
	user := account.NewUser(acct, g.cfg.WithDot)

	rel := davRelPath(r.URL.Path)
	visible := user.IsDirVisible(rel)
	if abs, err := fsutil.JoinWithinRoot(g.cfg.Root, rel); err == nil {
		if st, err := os.Stat(abs); err == nil && !st.IsDir() {
			visible = user.IsFileVisible(rel)
		}
	}

	switch r.Method {
	case "GET", "HEAD", "OPTIONS", "PROPFIND":
		if !user.Can(account.CapOpen) || !visible {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	default:
		if !user.Can(account.CapWrite) || !visible {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	g.dav.ServeHTTP(w, r)
}

// davRelPath maps /dav/foo/bar onto the workspace-relative foo/bar.
func davRelPath(urlPath string) string {
	p := strings.TrimPrefix(urlPath, "/dav")
	p = path.Clean("/" + p)
	return fsutil.CleanRelPath(p)
}
