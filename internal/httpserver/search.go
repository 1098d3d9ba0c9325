package httpserver

import (
	"io/fs"
	"path/filepath"
	"strings"

	"workspaced/internal/account"
	"workspaced/internal/envelope"
	"workspaced/internal/fsutil"
	"workspaced/internal/request"
)

// Search bounds: results returned and entries inspected.
const (
	searchMaxHits = 250
	searchMaxSeen = 100_000
)

// handleSearch answers GET /search?path=<rel>&q=<needle> with a
// bounded, visibility-filtered substring search over relative paths.
func (s *Server) handleSearch(g *generation, rc *request.Context) {
	w, r := rc.Writer, rc.Request
	if !rc.User.Can(account.CapOpen) {
		s.respond(w, r, envelope.Error(envelope.CodeForbidden, "account may not read files"))
		return
	}
	q := strings.ToLower(strings.TrimSpace(rc.Query.Get("q")))
	if q == "" {
		s.respond(w, r, envelope.OK(map[string]any{
			"items": []listEntry{}, "seen": 0, "truncated": false,
		}))
		return
	}
	baseRel := fsutil.CleanRelPath(rc.Query.Get("path"))
	baseAbs, err := fsutil.JoinWithinRoot(g.cfg.Root, baseRel)
	if err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeBadRequest, "bad path"))
		return
	}
	if !rc.User.IsDirVisible(baseRel) {
		s.respond(w, r, envelope.Error(envelope.CodeNotFound, "no such file or directory"))
		return
	}

	var (
		hits      []listEntry
		seen      int
		truncated bool
	)
	_ = filepath.WalkDir(baseAbs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if p == baseAbs {
			return nil
		}
		seen++
		if seen > searchMaxSeen {
			truncated = true
			return filepath.SkipAll
		}
		sub, err := filepath.Rel(baseAbs, p)
		if err != nil {
			return nil
		}
		rel := fsutil.JoinRel(baseRel, filepath.ToSlash(sub))
		if d.IsDir() {
			// Invisible directories hide their whole subtree; also do
			// not descend into symlinked directories.
			if !rc.User.IsDirVisible(rel) {
				return filepath.SkipDir
			}
			if d.Type()&fs.ModeSymlink != 0 {
				return filepath.SkipDir
			}
		} else if !rc.User.IsFileVisible(rel) {
			return nil
		}
		if !strings.Contains(strings.ToLower(rel), q) {
			return nil
		}
		info, _ := d.Info()
		le := listEntry{Name: d.Name(), Path: rel, Type: "file"}
		if d.IsDir() {
			le.Type = "dir"
		} else {
			le.Mime = contentTypeForName(d.Name())
		}
		if info != nil {
			le.Size = info.Size()
			le.Mtime = info.ModTime().Unix()
		}
		hits = append(hits, le)
		if len(hits) >= searchMaxHits {
			truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if hits == nil {
		hits = []listEntry{}
	}
	s.respond(w, r, envelope.OK(map[string]any{
		"items":     hits,
		"seen":      seen,
		"truncated": truncated,
	}))
}
