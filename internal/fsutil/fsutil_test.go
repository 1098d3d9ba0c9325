package fsutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanRelPath(t *testing.T) {
	cases := map[string]string{
		"":            "",
		".":           "",
		"/":           "",
		"a/b":         "a/b",
		"/a/b":        "a/b",
		"a//b/":       "a/b",
		"a/./b":       "a/b",
		"a/../b":      "b",
		"../../etc":   "etc",
		"..":          "",
		`a\b`:         "a/b",
		"  spaced  ":  "spaced",
		"a/b/../../c": "c",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanRelPath(in), "input %q", in)
	}
}

func TestJoinWithinRoot(t *testing.T) {
	root := t.TempDir()

	t.Run("empty means root", func(t *testing.T) {
		abs, err := JoinWithinRoot(root, "")
		require.NoError(t, err)
		assert.Equal(t, filepath.Clean(root), abs)
	})

	t.Run("nested path", func(t *testing.T) {
		abs, err := JoinWithinRoot(root, "docs/readme.md")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "docs", "readme.md"), abs)
	})

	t.Run("traversal is neutralized", func(t *testing.T) {
		abs, err := JoinWithinRoot(root, "../../../../etc/passwd")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "etc", "passwd"), abs)
	})

	t.Run("nul byte rejected", func(t *testing.T) {
		_, err := JoinWithinRoot(root, "a\x00b")
		assert.Error(t, err)
	})
}

func TestJoinRel(t *testing.T) {
	assert.Equal(t, "a", JoinRel("", "a"))
	assert.Equal(t, "a/b", JoinRel("a", "b"))
}
