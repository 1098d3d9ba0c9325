package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspaced/internal/config"
)

func boolPtr(b bool) *bool { return &b }

func endpoints(patterns ...string) config.EndpointList {
	var list config.EndpointList
	for _, p := range patterns {
		list = append(list, config.Endpoint{Pattern: p, Script: "echo"})
	}
	return list
}

func mustCompile(t *testing.T, list config.EndpointList) *Table {
	t.Helper()
	tab, err := Compile(list)
	require.NoError(t, err)
	return tab
}

func TestLookup(t *testing.T) {
	tab := mustCompile(t, endpoints(
		"/docs/{name}",
		"/docs/index",
		"/users/{id}/posts/{post}",
		"/",
	))

	t.Run("literal beats placeholder", func(t *testing.T) {
		m, ok := tab.Lookup("/docs/index")
		require.True(t, ok)
		assert.Equal(t, "/docs/index", m.Route.Pattern())
		assert.Empty(t, m.Params)
	})

	t.Run("placeholder captures segment", func(t *testing.T) {
		m, ok := tab.Lookup("/docs/readme")
		require.True(t, ok)
		assert.Equal(t, "/docs/{name}", m.Route.Pattern())
		assert.Equal(t, map[string]string{"name": "readme"}, m.Params)
	})

	t.Run("multiple placeholders", func(t *testing.T) {
		m, ok := tab.Lookup("/users/7/posts/42")
		require.True(t, ok)
		assert.Equal(t, map[string]string{"id": "7", "post": "42"}, m.Params)
	})

	t.Run("segment count must match exactly", func(t *testing.T) {
		_, ok := tab.Lookup("/docs/readme/extra")
		assert.False(t, ok)
		_, ok = tab.Lookup("/docs")
		assert.False(t, ok)
	})

	t.Run("root pattern matches root only", func(t *testing.T) {
		m, ok := tab.Lookup("/")
		require.True(t, ok)
		assert.Equal(t, "/", m.Route.Pattern())
	})

	t.Run("no match", func(t *testing.T) {
		_, ok := tab.Lookup("/unrelated")
		assert.False(t, ok)
	})
}

func TestDeclarationOrderBreaksTies(t *testing.T) {
	list := config.EndpointList{
		{Pattern: "/x/{a}", Script: "first"},
		{Pattern: "/x/{b}", Script: "second"},
	}
	tab := mustCompile(t, list)
	m, ok := tab.Lookup("/x/anything")
	require.True(t, ok)
	assert.Equal(t, "first", m.Route.Endpoint.Script)
}

func TestInactiveEndpointsAreSkipped(t *testing.T) {
	list := config.EndpointList{
		{Pattern: "/docs/index", Script: "dead", IsActive: boolPtr(false)},
		{Pattern: "/docs/{name}", Script: "live"},
	}
	tab := mustCompile(t, list)
	assert.Equal(t, 1, tab.Len())
	m, ok := tab.Lookup("/docs/index")
	require.True(t, ok)
	assert.Equal(t, "live", m.Route.Endpoint.Script)
}

func TestCompileRejectsInvalidPatterns(t *testing.T) {
	for _, pat := range []string{
		"docs/index",
		"/docs//index",
		"/docs/x{id}",
		"/docs/{}",
		"/x/{a}/{a}",
	} {
		_, err := Compile(endpoints(pat))
		assert.Error(t, err, "pattern %q", pat)
	}
}
