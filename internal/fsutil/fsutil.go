// Package fsutil normalizes client-supplied paths and confines them to
// the workspace root.
package fsutil

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

var ErrEscape = errors.New("path escapes workspace root")

// CleanRelPath turns user input like "", ".", "/a/b", "a//b", or
// "a\b" into a safe slash-separated relative path. "" means the
// workspace root.
func CleanRelPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// JoinWithinRoot maps a relative path onto the filesystem under
// rootAbs, rejecting NUL bytes and any result that would land outside
// the root.
func JoinWithinRoot(rootAbs, rel string) (string, error) {
	rel = CleanRelPath(rel)
	if rel == "" {
		return filepath.Clean(rootAbs), nil
	}
	if strings.ContainsRune(rel, '\x00') {
		return "", errors.New("invalid path")
	}
	abs := filepath.Clean(filepath.Join(rootAbs, filepath.FromSlash(rel)))
	root := filepath.Clean(rootAbs)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", ErrEscape
	}
	return abs, nil
}

// JoinRel appends a child name to a slash-relative parent ("" = root).
func JoinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
