// Package modules registers the endpoint modules shipped with the
// server. Configuration binds URL patterns to these names; deployments
// embedding workspaced as a library register their own modules next to
// (or instead of) them.
package modules

import (
	"strings"
	"time"

	"workspaced/internal/account"
	"workspaced/internal/script"
)

// Register wires the built-in modules into a registry.
func Register(reg *script.Registry) error {
	if err := reg.Register("echo", script.Module{
		"get":    echo,
		"post":   echo,
		"put":    echo,
		"delete": echo,
	}); err != nil {
		return err
	}
	if err := reg.Register("whoami", script.Module{
		"get": whoami,
	}); err != nil {
		return err
	}
	if err := reg.Register("counter", script.Module{
		"get":  counterGet,
		"post": counterAdd,
	}); err != nil {
		return err
	}
	return reg.RegisterValidator("localOnly", localOnly)
}

// echo mirrors the request back, mostly useful for wiring checks.
func echo(a *script.Args) (any, error) {
	body, err := a.Body()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"method": a.Request.Method,
		"path":   a.Request.URL.Path,
		"params": a.Params,
		"query":  a.Request.Query,
		"body":   string(body),
	}, nil
}

// whoami reports the resolved identity and its last authentication.
func whoami(a *script.Args) (any, error) {
	user := a.Request.User
	out := map[string]any{
		"name":    user.Name(),
		"isGuest": user.IsGuest(),
		"values":  user.Account().Values(),
	}
	if at, ok := user.Account().Session().Global(account.GlobalLastAuthAt); ok {
		if t, ok := at.(time.Time); ok {
			out["lastAuthAt"] = t.UTC().Format(time.RFC3339)
		}
	}
	return out, nil
}

// counterGet reads the endpoint's persistent counter.
func counterGet(a *script.Args) (any, error) {
	return map[string]any{"count": counterValue(a.State)}, nil
}

// counterAdd bumps it; the new value is what the next invocation sees.
func counterAdd(a *script.Args) (any, error) {
	n := counterValue(a.State) + 1
	a.State = n
	return map[string]any{"count": n}, nil
}

func counterValue(state any) int64 {
	switch v := state.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// localOnly rejects requests that do not originate on this machine.
func localOnly(v *script.ValidatorArgs) (bool, error) {
	host := v.Context.ClientHost
	return host == "127.0.0.1" || host == "::1" || strings.HasPrefix(host, "localhost"), nil
}
