package script

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"workspaced/internal/config"
	"workspaced/internal/envelope"
	"workspaced/internal/request"
)

// Engine invokes bound endpoint modules with freshly constructed
// arguments and persists per-endpoint state across invocations.
type Engine struct {
	registry *Registry
	stores   *Stores
}

// NewEngine wires a registry to the shared-state stores.
func NewEngine(registry *Registry, stores *Stores) *Engine {
	return &Engine{registry: registry, stores: stores}
}

// Stores exposes the shared-state scopes (for tests and diagnostics).
func (e *Engine) Stores() *Stores { return e.stores }

// Binding is one configuration generation resolved against the
// registry: every endpoint's script name and the validator name have
// been checked, so requests cannot hit an unknown module.
type Binding struct {
	engine        *Engine
	modules       map[string]Module // endpoint pattern -> module
	validator     ValidatorFunc
	validatorOpts any
}

// Bind resolves a configuration against the registry. It fails on the
// first endpoint whose script is not registered, which makes a broken
// reload fail before it is installed.
func (e *Engine) Bind(cfg *config.Configuration) (*Binding, error) {
	b := &Binding{
		engine:  e,
		modules: make(map[string]Module, len(cfg.Endpoints)),
	}
	for i := range cfg.Endpoints {
		ep := &cfg.Endpoints[i]
		if !ep.Active() {
			continue
		}
		m, ok := e.registry.Module(ep.Script)
		if !ok {
			return nil, fmt.Errorf("script: endpoint %q: no module %q (have %s)",
				ep.Pattern, ep.Script, strings.Join(e.registry.Names(), ", "))
		}
		b.modules[ep.Pattern] = m
	}
	if cfg.Validator != nil {
		v, ok := e.registry.Validator(cfg.Validator.Script)
		if !ok {
			return nil, fmt.Errorf("script: validator: no module %q", cfg.Validator.Script)
		}
		b.validator = v
		b.validatorOpts = cfg.Validator.Options
	}
	return b, nil
}

// Outcome is the distilled result of an invocation, consumed by the
// response builder.
type Outcome struct {
	Response   *envelope.Response
	Headers    http.Header
	StatusCode int

	// Raw content override (SetContent/Write).
	Content     []byte
	ContentType string
	HasContent  bool

	NoCompress bool
}

// Validate runs the global validator, if one is configured. A false
// result or an error rejects; the error (if any) is returned for
// logging but must not reach the client beyond a forbidden envelope.
func (b *Binding) Validate(value string, rc *request.Context) (bool, error) {
	if b.validator == nil {
		return true, nil
	}
	ok, err := func() (ok bool, err error) {
		defer func() {
			if r := recover(); r != nil {
				ok, err = false, fmt.Errorf("validator panic: %v", r)
			}
		}()
		return b.validator(&ValidatorArgs{
			Value:          value,
			Context:        rc,
			Options:        b.validatorOpts,
			WorkspaceState: b.engine.stores.Workspace,
		})
	}()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Invoke runs the endpoint's handler for the request method. The
// endpoint's invocations are serialized: a second request to the same
// pattern waits for the first to finish, so handlers see per-endpoint
// state without interleaving. Handler panics and errors surface as
// envelopes, never as transport faults.
func (b *Binding) Invoke(ep *config.Endpoint, params map[string]string, rc *request.Context) *Outcome {
	mod := b.modules[ep.Pattern]
	out := &Outcome{
		Response: envelope.OK(nil),
		Headers:  make(http.Header),
	}
	handler, ok := mod[strings.ToLower(rc.Method)]
	if !ok {
		out.Response = envelope.Error(envelope.CodeMethodNotAllowed,
			fmt.Sprintf("method %s not supported by endpoint %s", rc.Method, ep.Pattern))
		return out
	}

	es := b.engine.stores.endpoint(ep.Pattern)
	es.run.Lock()
	defer es.run.Unlock()

	a := &Args{
		Globals:        deepCopyStringMap(rc.Config.Globals),
		GlobalState:    b.engine.stores.Global,
		WorkspaceState: b.engine.stores.Workspace,
		State:          es.load(ep.State),
		Options:        ep.Options,
		Params:         params,
		Request:        rc,
		Response:       out.Response,
		Headers:        out.Headers,
	}

	data, err := runHandler(handler, a)

	// State written back whatever happened: partially applied
	// mutations are the handler's observable effect, not rolled back.
	es.store(a.State)

	out.StatusCode = a.StatusCode
	out.Content = a.content
	out.ContentType = a.mime
	out.HasContent = a.hasContent
	out.NoCompress = a.noCompress

	switch {
	case err != nil && errors.Is(err, ErrBadRequest):
		out.Response.Code = envelope.CodeBadRequest
		out.Response.Msg = err.Error()
		out.Response.Data = nil
	case err != nil:
		out.Response.Code = envelope.CodeScriptFailure
		out.Response.Msg = err.Error()
		out.Response.Data = nil
	case data != nil && out.Response.Data == nil && out.Response.Code == envelope.CodeOK:
		out.Response.Data = data
	}
	return out
}

func runHandler(h HandlerFunc, a *Args) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(a)
}
