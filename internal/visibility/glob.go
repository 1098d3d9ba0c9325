package visibility

import (
	"path"
	"strings"
)

// Match checks a workspace-relative slash path against a glob pattern.
//
// Pattern conventions follow gitignore-style hierarchy rules:
//
//   - "*.md" (no slash) matches against the leaf name anywhere in the tree
//   - "docs/*.md" matches only direct children of docs
//   - "docs/**" matches everything under docs, any depth
//   - "**/build" matches a build entry at any depth
//   - "docs/**/index.md" matches with zero or more segments between
//   - "*" and "?" never cross a "/" boundary (path.Match semantics)
//
// Malformed patterns never match; a broken pattern must not widen
// visibility.
func Match(pattern, rel string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "**" {
		return true
	}

	// Slash-free patterns apply to the leaf name, so "*.md" works at
	// any depth.
	if !strings.Contains(pattern, "/") && !strings.Contains(pattern, "**") {
		return matchSegment(pattern, path.Base(rel))
	}

	if !strings.Contains(pattern, "**") {
		return matchSegment(pattern, rel)
	}

	// "dir/**": the prefix alone, or the prefix plus at least one more
	// segment.
	if suffix, ok := strings.CutSuffix(pattern, "/**"); ok && !strings.Contains(suffix, "**") {
		return matchSegment(suffix, rel) || matchHead(suffix, rel)
	}

	// "**/name": the suffix alone, or at least one segment before it.
	if prefix, ok := strings.CutPrefix(pattern, "**/"); ok && !strings.Contains(prefix, "**") {
		return matchSegment(prefix, rel) || matchTail(prefix, rel)
	}

	// "a/**/b": split once on the interior wildcard, match both halves.
	if i := strings.Index(pattern, "/**/"); i >= 0 {
		head, tail := pattern[:i], pattern[i+4:]
		if strings.Contains(head, "**") || strings.Contains(tail, "**") {
			return false
		}
		// ** consuming zero segments.
		if matchSegment(head+"/"+tail, rel) {
			return true
		}
		headDepth := strings.Count(head, "/") + 1
		tailDepth := strings.Count(tail, "/") + 1
		segs := strings.Split(rel, "/")
		if len(segs) < headDepth+1+tailDepth {
			return false
		}
		if !matchSegment(head, strings.Join(segs[:headDepth], "/")) {
			return false
		}
		if !matchSegment(tail, strings.Join(segs[len(segs)-tailDepth:], "/")) {
			return false
		}
		for _, s := range segs[headDepth : len(segs)-tailDepth] {
			if s == "" {
				return false
			}
		}
		return true
	}

	// Multiple ** groups: unsupported, deny.
	return false
}

// MatchAny reports whether rel matches at least one pattern. An empty
// pattern list matches nothing; callers own the default-allow decision.
func MatchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if Match(p, rel) {
			return true
		}
	}
	return false
}

func matchSegment(pattern, s string) bool {
	ok, err := path.Match(pattern, s)
	return err == nil && ok
}

// matchHead reports whether the leading segments of rel match pattern
// with at least one segment left over.
func matchHead(pattern, rel string) bool {
	depth := strings.Count(pattern, "/") + 1
	segs := strings.SplitN(rel, "/", depth+1)
	if len(segs) <= depth {
		return false
	}
	return matchSegment(pattern, strings.Join(segs[:depth], "/"))
}

// matchTail reports whether the trailing segments of rel match pattern
// with at least one segment before them.
func matchTail(pattern, rel string) bool {
	depth := strings.Count(pattern, "/") + 1
	segs := strings.Split(rel, "/")
	if len(segs) <= depth {
		return false
	}
	return matchSegment(pattern, strings.Join(segs[len(segs)-depth:], "/"))
}
