package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern string
		rel     string
		want    bool
	}{
		// leaf-name patterns apply at any depth
		{"*.md", "readme.md", true},
		{"*.md", "docs/guide.md", true},
		{"*.md", "docs/guide.txt", false},
		{"readme.?", "readme.1", true},

		// slash patterns anchor to the workspace root
		{"docs/*.md", "docs/guide.md", true},
		{"docs/*.md", "docs/sub/guide.md", false},
		{"docs/*.md", "other/guide.md", false},

		// recursive wildcard
		{"**", "anything/at/all", true},
		{"docs/**", "docs", true},
		{"docs/**", "docs/a", true},
		{"docs/**", "docs/a/b/c", true},
		{"docs/**", "docsx/a", false},
		{"**/build", "build", true},
		{"**/build", "a/b/build", true},
		{"**/build", "a/builds", false},
		{"docs/**/index.md", "docs/index.md", true},
		{"docs/**/index.md", "docs/a/b/index.md", true},
		{"docs/**/index.md", "docs/a/index.txt", false},

		// malformed patterns never match
		{"[", "a", false},
		{"", "a", false},

		// multiple ** groups are unsupported
		{"a/**/b/**", "a/x/b/y", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Match(tc.pattern, tc.rel),
			"Match(%q, %q)", tc.pattern, tc.rel)
	}
}

func TestVisibleDotPolicy(t *testing.T) {
	cases := []struct {
		name  string
		rules Rules
		rel   string
		want  bool
	}{
		{"dot hidden by default", Rules{}, ".env", false},
		{"dot dir component hidden", Rules{}, ".git/config", false},
		{"nested dot hidden", Rules{}, "a/.secret", false},
		{"global withDot shows", Rules{GlobalWithDot: true}, ".env", true},
		{"account withDot shows", Rules{WithDot: boolPtr(true)}, ".env", true},
		{"account override beats global", Rules{WithDot: boolPtr(false), GlobalWithDot: true}, ".env", false},
		{"plain file fine", Rules{}, "a/b.txt", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.rules.Visible(tc.rel, false))
		})
	}
}

func TestVisibleIncludeExclude(t *testing.T) {
	t.Run("empty include allows everything", func(t *testing.T) {
		r := Rules{}
		assert.True(t, r.Visible("any/file.bin", false))
	})

	t.Run("include restricts", func(t *testing.T) {
		r := Rules{Include: []string{"*.md"}}
		assert.True(t, r.Visible("a.md", false))
		assert.False(t, r.Visible("b.txt", false))
	})

	t.Run("exclude dominates include", func(t *testing.T) {
		r := Rules{Include: []string{"*.md"}, Exclude: []string{"secret*"}}
		assert.True(t, r.Visible("notes.md", false))
		assert.False(t, r.Visible("secret.md", false))
	})

	t.Run("exclude without include", func(t *testing.T) {
		r := Rules{Exclude: []string{"vendor/**"}}
		assert.True(t, r.Visible("main.go", false))
		assert.False(t, r.Visible("vendor/lib/x.go", false))
		assert.False(t, r.Visible("vendor", true))
	})

	t.Run("root always visible", func(t *testing.T) {
		r := Rules{Include: []string{"*.md"}, Exclude: []string{"**"}}
		assert.True(t, r.Visible("", true))
		assert.True(t, r.Visible("/", true))
	})

	t.Run("multiple patterns are OR", func(t *testing.T) {
		r := Rules{Include: []string{"*.md", "*.txt"}}
		assert.True(t, r.Visible("a.md", false))
		assert.True(t, r.Visible("b.txt", false))
		assert.False(t, r.Visible("c.go", false))
	})
}
