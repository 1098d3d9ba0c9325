// Package visibility decides whether a workspace entry is disclosed to
// an account: exclude globs reject first, include globs (when present)
// must match, and dot-prefixed leaves are hidden unless the account or
// the global configuration opts in.
package visibility

import (
	"path"
	"strings"
)

// Rules is the visibility policy of a single account, combined with the
// global dot-file default.
type Rules struct {
	// Include patterns; empty means everything is a candidate.
	Include []string
	// Exclude patterns; any match rejects regardless of Include.
	Exclude []string
	// WithDot is the account's dot-file override, nil to defer to
	// GlobalWithDot.
	WithDot *bool
	// GlobalWithDot is the configuration-wide dot-file default.
	GlobalWithDot bool
}

// ShowDotfiles resolves the effective dot-file policy.
func (r Rules) ShowDotfiles() bool {
	if r.WithDot != nil {
		return *r.WithDot
	}
	return r.GlobalWithDot
}

// Visible reports whether the entry at rel may be disclosed. rel must
// be a clean, slash-separated, workspace-relative path ("" for the
// workspace root, which is always visible). Files and directories are
// subject to the same include/exclude evaluation; an account restricted
// to "*.md" therefore does not see subdirectories unless a pattern
// names them (for example "docs" or "**").
func (r Rules) Visible(rel string, isDir bool) bool {
	rel = normalize(rel)
	if rel == "" {
		return true
	}
	if !r.ShowDotfiles() && hasDotComponent(rel) {
		return false
	}
	if MatchAny(r.Exclude, rel) {
		return false
	}
	if len(r.Include) == 0 {
		return true
	}
	return MatchAny(r.Include, rel)
}

func normalize(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	rel = strings.Trim(rel, "/")
	if rel == "" || rel == "." {
		return ""
	}
	return path.Clean(rel)
}

// hasDotComponent reports whether any path segment is dot-prefixed.
// "a/.git/config" is hidden as a whole, not just the ".git" segment.
func hasDotComponent(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}
