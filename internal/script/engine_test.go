package script

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspaced/internal/account"
	"workspaced/internal/config"
	"workspaced/internal/envelope"
	"workspaced/internal/request"
)

func testContext(t *testing.T, cfg *config.Configuration, method, target, body string) *request.Context {
	t.Helper()
	var rdr *strings.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	} else {
		rdr = strings.NewReader("")
	}
	r := httptest.NewRequest(method, target, rdr)
	w := httptest.NewRecorder()
	dir := account.NewStore().Build(cfg)
	user := account.NewUser(dir.Guest(), false)
	return request.New("test-req", cfg, user, w, r)
}

func bindOne(t *testing.T, reg *Registry, cfg *config.Configuration) (*Binding, *config.Endpoint) {
	t.Helper()
	eng := NewEngine(reg, NewStores())
	b, err := eng.Bind(cfg)
	require.NoError(t, err)
	return b, &cfg.Endpoints[0]
}

func TestBindRejectsUnknownModules(t *testing.T) {
	reg := NewRegistry()
	eng := NewEngine(reg, NewStores())

	_, err := eng.Bind(&config.Configuration{
		Root:      "/w",
		Endpoints: config.EndpointList{{Pattern: "/x", Script: "missing"}},
	})
	assert.ErrorContains(t, err, `no module "missing"`)

	_, err = eng.Bind(&config.Configuration{
		Root:      "/w",
		Validator: &config.ValidatorRef{Script: "missing"},
	})
	assert.ErrorContains(t, err, "validator")

	// An inactive endpoint may name a module that does not exist.
	off := false
	_, err = eng.Bind(&config.Configuration{
		Root:      "/w",
		Endpoints: config.EndpointList{{Pattern: "/x", Script: "missing", IsActive: &off}},
	})
	assert.NoError(t, err)
}

func TestInvokeReturnValueBecomesData(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("hello", Module{
		"get": func(a *Args) (any, error) {
			return map[string]any{"greeting": "hi"}, nil
		},
	})
	cfg := &config.Configuration{
		Root:      "/w",
		Endpoints: config.EndpointList{{Pattern: "/hello", Script: "hello"}},
	}
	b, ep := bindOne(t, reg, cfg)

	out := b.Invoke(ep, nil, testContext(t, cfg, "GET", "/api/hello", ""))
	assert.Equal(t, envelope.CodeOK, out.Response.Code)
	assert.Equal(t, map[string]any{"greeting": "hi"}, out.Response.Data)
	assert.False(t, out.HasContent)
}

func TestInvokeMethodNotAllowed(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("getonly", Module{
		"get": func(a *Args) (any, error) { return "ok", nil },
	})
	cfg := &config.Configuration{
		Root:      "/w",
		Endpoints: config.EndpointList{{Pattern: "/x", Script: "getonly"}},
	}
	b, ep := bindOne(t, reg, cfg)

	out := b.Invoke(ep, nil, testContext(t, cfg, "POST", "/api/x", ""))
	assert.Equal(t, envelope.CodeMethodNotAllowed, out.Response.Code)
	assert.Nil(t, out.Response.Data)
}

func TestInvokeErrorMapping(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("errs", Module{
		"get": func(a *Args) (any, error) {
			return nil, errors.New("backend exploded")
		},
		"post": func(a *Args) (any, error) {
			var v struct{}
			return nil, a.JSON(&v)
		},
		"put": func(a *Args) (any, error) {
			panic("boom")
		},
	})
	cfg := &config.Configuration{
		Root:      "/w",
		Endpoints: config.EndpointList{{Pattern: "/e", Script: "errs"}},
	}
	b, ep := bindOne(t, reg, cfg)

	t.Run("plain error is a script failure", func(t *testing.T) {
		out := b.Invoke(ep, nil, testContext(t, cfg, "GET", "/api/e", ""))
		assert.Equal(t, envelope.CodeScriptFailure, out.Response.Code)
		assert.Equal(t, "backend exploded", out.Response.Msg)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		out := b.Invoke(ep, nil, testContext(t, cfg, "POST", "/api/e", "{not json"))
		assert.Equal(t, envelope.CodeBadRequest, out.Response.Code)
	})

	t.Run("panic is recovered into a script failure", func(t *testing.T) {
		out := b.Invoke(ep, nil, testContext(t, cfg, "PUT", "/api/e", ""))
		assert.Equal(t, envelope.CodeScriptFailure, out.Response.Code)
		assert.Contains(t, out.Response.Msg, "boom")
	})
}

func TestEndpointStatePersists(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("counter", Module{
		"post": func(a *Args) (any, error) {
			st, _ := a.State.(map[string]any)
			n, _ := st["count"].(float64)
			st["count"] = n + 1
			return st["count"], nil
		},
	})
	seed := map[string]any{"count": float64(0)}
	cfg := &config.Configuration{
		Root: "/w",
		Endpoints: config.EndpointList{
			{Pattern: "/count", Script: "counter", State: seed},
		},
	}
	b, ep := bindOne(t, reg, cfg)

	for want := 1; want <= 3; want++ {
		out := b.Invoke(ep, nil, testContext(t, cfg, "POST", "/api/count", ""))
		require.Equal(t, envelope.CodeOK, out.Response.Code)
		assert.Equal(t, float64(want), out.Response.Data)
	}

	// The configured seed is copied, never mutated.
	assert.Equal(t, float64(0), seed["count"])
}

func TestStateSurvivesRebind(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("counter", Module{
		"post": func(a *Args) (any, error) {
			n, _ := a.State.(int)
			a.State = n + 1
			return a.State, nil
		},
	})
	cfg := &config.Configuration{
		Root:      "/w",
		Endpoints: config.EndpointList{{Pattern: "/count", Script: "counter"}},
	}
	eng := NewEngine(reg, NewStores())
	b1, err := eng.Bind(cfg)
	require.NoError(t, err)
	out := b1.Invoke(&cfg.Endpoints[0], nil, testContext(t, cfg, "POST", "/api/count", ""))
	assert.Equal(t, 1, out.Response.Data)

	// A reload produces a new binding over the same stores.
	b2, err := eng.Bind(cfg)
	require.NoError(t, err)
	out = b2.Invoke(&cfg.Endpoints[0], nil, testContext(t, cfg, "POST", "/api/count", ""))
	assert.Equal(t, 2, out.Response.Data)
}

func TestGlobalsAreCopiedPerInvocation(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("mutator", Module{
		"get": func(a *Args) (any, error) {
			before := a.Globals["motd"]
			a.Globals["motd"] = "tainted"
			return before, nil
		},
	})
	cfg := &config.Configuration{
		Root:      "/w",
		Globals:   map[string]any{"motd": "welcome"},
		Endpoints: config.EndpointList{{Pattern: "/g", Script: "mutator"}},
	}
	b, ep := bindOne(t, reg, cfg)

	for i := 0; i < 2; i++ {
		out := b.Invoke(ep, nil, testContext(t, cfg, "GET", "/api/g", ""))
		assert.Equal(t, "welcome", out.Response.Data)
	}
	assert.Equal(t, "welcome", cfg.Globals["motd"])
}

func TestSharedScopes(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("writer", Module{
		"post": func(a *Args) (any, error) {
			a.GlobalState.Set("from", "writer")
			a.WorkspaceState.Set("seen", true)
			return nil, nil
		},
	})
	reg.MustRegister("reader", Module{
		"get": func(a *Args) (any, error) {
			v, _ := a.GlobalState.Get("from")
			return v, nil
		},
	})
	cfg := &config.Configuration{
		Root: "/w",
		Endpoints: config.EndpointList{
			{Pattern: "/w", Script: "writer"},
			{Pattern: "/r", Script: "reader"},
		},
	}
	eng := NewEngine(reg, NewStores())
	b, err := eng.Bind(cfg)
	require.NoError(t, err)

	b.Invoke(&cfg.Endpoints[0], nil, testContext(t, cfg, "POST", "/api/w", ""))
	out := b.Invoke(&cfg.Endpoints[1], nil, testContext(t, cfg, "GET", "/api/r", ""))
	assert.Equal(t, "writer", out.Response.Data)
	assert.True(t, eng.Stores().Workspace.Has("seen"))
}

func TestContentOverride(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("raw", Module{
		"get": func(a *Args) (any, error) {
			a.SetContent([]byte("<svg/>"), "image/svg+xml").
				SetHeader("Cache-Control", "max-age=60").
				NoCompress()
			return nil, nil
		},
	})
	cfg := &config.Configuration{
		Root:      "/w",
		Endpoints: config.EndpointList{{Pattern: "/raw", Script: "raw"}},
	}
	b, ep := bindOne(t, reg, cfg)

	out := b.Invoke(ep, nil, testContext(t, cfg, "GET", "/api/raw", ""))
	require.True(t, out.HasContent)
	assert.Equal(t, []byte("<svg/>"), out.Content)
	assert.Equal(t, "image/svg+xml", out.ContentType)
	assert.True(t, out.NoCompress)
	assert.Equal(t, "max-age=60", out.Headers.Get("Cache-Control"))
}

func TestSendHelpers(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("gate", Module{
		"get": func(a *Args) (any, error) {
			return nil, a.SendForbidden("").Err()
		},
	})
	cfg := &config.Configuration{
		Root:      "/w",
		Endpoints: config.EndpointList{{Pattern: "/gate", Script: "gate"}},
	}
	b, ep := bindOne(t, reg, cfg)

	out := b.Invoke(ep, nil, testContext(t, cfg, "GET", "/api/gate", ""))
	assert.Equal(t, envelope.CodeForbidden, out.Response.Code)
	assert.Equal(t, "forbidden", out.Response.Msg)
}

func TestValidator(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("ok", Module{
		"get": func(a *Args) (any, error) { return "ok", nil },
	})
	reg.RegisterValidator("prefixGate", func(v *ValidatorArgs) (bool, error) {
		prefix, _ := v.Options.(string)
		return strings.HasPrefix(v.Value, prefix), nil
	})
	reg.RegisterValidator("panics", func(v *ValidatorArgs) (bool, error) {
		panic("validator bug")
	})

	cfg := &config.Configuration{
		Root:      "/w",
		Endpoints: config.EndpointList{{Pattern: "/public/x", Script: "ok"}},
		Validator: &config.ValidatorRef{Script: "prefixGate", Options: "/public/"},
	}
	eng := NewEngine(reg, NewStores())
	b, err := eng.Bind(cfg)
	require.NoError(t, err)

	t.Run("accepts matching value", func(t *testing.T) {
		ok, err := b.Validate("/public/x", testContext(t, cfg, "GET", "/api/public/x", ""))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rejects non-matching value", func(t *testing.T) {
		ok, err := b.Validate("/private/x", testContext(t, cfg, "GET", "/api/private/x", ""))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("panic rejects with error", func(t *testing.T) {
		cfg2 := &config.Configuration{
			Root:      "/w",
			Validator: &config.ValidatorRef{Script: "panics"},
		}
		b2, err := eng.Bind(cfg2)
		require.NoError(t, err)
		ok, err := b2.Validate("/x", testContext(t, cfg2, "GET", "/api/x", ""))
		assert.False(t, ok)
		assert.ErrorContains(t, err, "validator bug")
	})

	t.Run("no validator accepts everything", func(t *testing.T) {
		cfg3 := &config.Configuration{Root: "/w"}
		b3, err := eng.Bind(cfg3)
		require.NoError(t, err)
		ok, err := b3.Validate("/anything", testContext(t, cfg3, "GET", "/api/anything", ""))
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("echo", Module{
		"GET": func(a *Args) (any, error) { return nil, nil },
	}))

	t.Run("method keys are normalized to lower case", func(t *testing.T) {
		m, ok := reg.Module("echo")
		require.True(t, ok)
		_, ok = m["get"]
		assert.True(t, ok)
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		err := reg.Register("echo", Module{"get": func(a *Args) (any, error) { return nil, nil }})
		assert.Error(t, err)
	})

	t.Run("empty module fails", func(t *testing.T) {
		err := reg.Register("empty", Module{})
		assert.Error(t, err)
	})
}
