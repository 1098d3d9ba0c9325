package httpserver

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"workspaced/internal/account"
	"workspaced/internal/dedup"
	"workspaced/internal/envelope"
	"workspaced/internal/fsutil"
	"workspaced/internal/request"
)

// listEntry is one row of a directory listing.
type listEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"` // workspace-relative
	Type  string `json:"type"` // "dir" or "file"
	Size  int64  `json:"size"`
	Mtime int64  `json:"mtime"`
	Mime  string `json:"mime,omitempty"`
}

// fsGet lists a directory or streams a file. Entries the account may
// not see are absent from listings; a direct request for an invisible
// path reads as not-found, so visibility never leaks existence.
func (s *Server) fsGet(g *generation, rc *request.Context, rel string) {
	w, r := rc.Writer, rc.Request
	if !rc.User.Can(account.CapOpen) {
		s.respond(w, r, envelope.Error(envelope.CodeForbidden, "account may not read files"))
		return
	}
	abs, err := fsutil.JoinWithinRoot(g.cfg.Root, rel)
	if err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeBadRequest, "bad path"))
		return
	}
	st, err := os.Stat(abs)
	if err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeNotFound, "no such file or directory"))
		return
	}

	if st.IsDir() {
		if !rc.User.IsDirVisible(rel) {
			s.respond(w, r, envelope.Error(envelope.CodeNotFound, "no such file or directory"))
			return
		}
		s.listDir(g, rc, rel, abs)
		return
	}

	if !rc.User.IsFileVisible(rel) {
		s.respond(w, r, envelope.Error(envelope.CodeNotFound, "no such file or directory"))
		return
	}
	f, err := os.Open(abs)
	if err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeInternalError, "open failed"))
		return
	}
	defer f.Close()
	if ct := contentTypeForName(st.Name()); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if rc.Query.Get("dl") == "1" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", st.Name()))
	}
	http.ServeContent(w, r, st.Name(), st.ModTime(), f)
}

func (s *Server) listDir(g *generation, rc *request.Context, rel, abs string) {
	w, r := rc.Writer, rc.Request
	ents, err := os.ReadDir(abs)
	if err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeInternalError, "read directory failed"))
		return
	}
	entries := make([]listEntry, 0, len(ents))
	for _, e := range ents {
		childRel := fsutil.JoinRel(rel, e.Name())
		if e.IsDir() {
			if !rc.User.IsDirVisible(childRel) {
				continue
			}
		} else if !rc.User.IsFileVisible(childRel) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		le := listEntry{
			Name:  e.Name(),
			Path:  childRel,
			Type:  "file",
			Size:  info.Size(),
			Mtime: info.ModTime().Unix(),
		}
		if e.IsDir() {
			le.Type = "dir"
			le.Size = 0
		} else {
			le.Mime = contentTypeForName(e.Name())
		}
		entries = append(entries, le)
	}
	sort.Slice(entries, func(i, j int) bool {
		if (entries[i].Type == "dir") != (entries[j].Type == "dir") {
			return entries[i].Type == "dir"
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	s.respond(w, r, envelope.OK(map[string]any{
		"path":    rel,
		"entries": entries,
	}))
}

// fsWrite stores the request body at the path. A trailing slash means
// "create this directory". New files need canCreate, overwrites need
// canWrite, directories need canCreate.
func (s *Server) fsWrite(g *generation, rc *request.Context, rel string) {
	w, r := rc.Writer, rc.Request
	if rel == "" {
		s.respond(w, r, envelope.Error(envelope.CodeBadRequest, "cannot write the workspace root"))
		return
	}
	abs, err := fsutil.JoinWithinRoot(g.cfg.Root, rel)
	if err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeBadRequest, "bad path"))
		return
	}

	if strings.HasSuffix(rc.URL.Path, "/") {
		if !rc.User.Can(account.CapCreate) {
			s.respond(w, r, envelope.Error(envelope.CodeForbidden, "account may not create entries"))
			return
		}
		if !rc.User.IsDirVisible(rel) {
			s.respond(w, r, envelope.Error(envelope.CodeNotFound, "no such file or directory"))
			return
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			s.respond(w, r, envelope.Error(envelope.CodeInternalError, "mkdir failed"))
			return
		}
		s.respond(w, r, envelope.OK(map[string]any{"path": rel, "type": "dir"}))
		return
	}

	st, statErr := os.Stat(abs)
	switch {
	case statErr == nil && st.IsDir():
		s.respond(w, r, envelope.Error(envelope.CodeBadRequest, "path is a directory"))
		return
	case statErr == nil:
		if !rc.User.Can(account.CapWrite) {
			s.respond(w, r, envelope.Error(envelope.CodeForbidden, "account may not write files"))
			return
		}
	default:
		if !rc.User.Can(account.CapCreate) {
			s.respond(w, r, envelope.Error(envelope.CodeForbidden, "account may not create files"))
			return
		}
	}
	if !rc.User.IsFileVisible(rel) {
		s.respond(w, r, envelope.Error(envelope.CodeNotFound, "no such file or directory"))
		return
	}

	sha, blob, size, err := g.blobs.PutReader(r.Context(), r.Body)
	if err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeInternalError, "store body failed"))
		return
	}
	if err := dedup.LinkOrCopy(blob, abs); err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeInternalError, "write failed"))
		return
	}
	s.respond(w, r, envelope.OK(map[string]any{
		"path":   rel,
		"sha256": sha,
		"size":   size,
	}))
}

// fsDelete removes a file or directory tree.
func (s *Server) fsDelete(g *generation, rc *request.Context, rel string) {
	w, r := rc.Writer, rc.Request
	if !rc.User.Can(account.CapDelete) {
		s.respond(w, r, envelope.Error(envelope.CodeForbidden, "account may not delete entries"))
		return
	}
	if rel == "" {
		s.respond(w, r, envelope.Error(envelope.CodeBadRequest, "cannot delete the workspace root"))
		return
	}
	abs, err := fsutil.JoinWithinRoot(g.cfg.Root, rel)
	if err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeBadRequest, "bad path"))
		return
	}
	st, err := os.Stat(abs)
	if err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeNotFound, "no such file or directory"))
		return
	}
	visible := rc.User.IsFileVisible(rel)
	if st.IsDir() {
		visible = rc.User.IsDirVisible(rel)
	}
	if !visible {
		s.respond(w, r, envelope.Error(envelope.CodeNotFound, "no such file or directory"))
		return
	}
	if err := os.RemoveAll(abs); err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeInternalError, "delete failed"))
		return
	}
	s.respond(w, r, envelope.OK(map[string]any{"path": rel, "deleted": true}))
}

func contentTypeForName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	// Fallbacks for systems with sparse mime tables.
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".pdf":
		return "application/pdf"
	case ".zip":
		return "application/zip"
	case ".gz":
		return "application/gzip"
	case ".txt", ".log", ".md", ".json", ".yaml", ".yml", ".toml", ".ini",
		".cfg", ".conf", ".go", ".js", ".ts", ".py", ".rs", ".c", ".h",
		".sh", ".css", ".html":
		return "text/plain; charset=utf-8"
	default:
		return ""
	}
}
