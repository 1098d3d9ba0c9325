package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"workspaced/internal/envelope"
	"workspaced/internal/request"
)

// ErrBadRequest marks handler errors caused by a malformed request
// body; the engine renders them as a 400 envelope instead of a script
// failure.
var ErrBadRequest = errors.New("bad request")

// Args is the per-invocation context handed to a module handler. Every
// response helper returns the receiver so calls chain:
//
//	return nil, a.SendNotFound("no such order").Err()
type Args struct {
	// Globals is a private deep copy of the configured globals; one
	// invocation's mutations are invisible to every other.
	Globals map[string]any

	// GlobalState is shared by all endpoint modules.
	GlobalState *Map
	// WorkspaceState is shared by every module in the process.
	WorkspaceState *Map

	// State is this endpoint's persistent value. Mutate it in place or
	// assign a replacement; whatever is here when the handler returns
	// is what the next invocation of this endpoint receives.
	State any

	// Options is the endpoint's configured options value.
	Options any

	// Params are the path placeholder values, e.g. {"id": "42"}.
	Params map[string]string

	// Request is the immutable request snapshot.
	Request *request.Context

	// Response is the envelope being built.
	Response *envelope.Response

	// Headers are extra response headers; they win over everything the
	// response builder would set.
	Headers http.Header

	// StatusCode overrides the HTTP status derived from the envelope
	// code when non-zero.
	StatusCode int

	body       []byte
	bodyErr    error
	bodyRead   bool
	content    []byte
	mime       string
	hasContent bool
	noCompress bool
}

// Body reads and caches the raw request body.
func (a *Args) Body() ([]byte, error) {
	if !a.bodyRead {
		a.bodyRead = true
		a.body, a.bodyErr = io.ReadAll(a.Request.Request.Body)
	}
	return a.body, a.bodyErr
}

// JSON decodes the request body into v. Malformed JSON comes back as a
// bad-request error, which the engine renders as a 400 envelope.
func (a *Args) JSON(v any) error {
	b, err := a.Body()
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrBadRequest, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: parse json: %v", ErrBadRequest, err)
	}
	return nil
}

// SendError sets a script-failure envelope.
func (a *Args) SendError(msg string) *Args {
	a.Response.Code = envelope.CodeScriptFailure
	a.Response.Msg = msg
	return a
}

// SendForbidden sets a forbidden envelope.
func (a *Args) SendForbidden(msg string) *Args {
	if msg == "" {
		msg = "forbidden"
	}
	a.Response.Code = envelope.CodeForbidden
	a.Response.Msg = msg
	return a
}

// SendNotFound sets a not-found envelope.
func (a *Args) SendNotFound(msg string) *Args {
	if msg == "" {
		msg = "not found"
	}
	a.Response.Code = envelope.CodeNotFound
	a.Response.Msg = msg
	return a
}

// SendMethodNotAllowed sets a method-not-allowed envelope.
func (a *Args) SendMethodNotAllowed(msg string) *Args {
	if msg == "" {
		msg = "method not allowed"
	}
	a.Response.Code = envelope.CodeMethodNotAllowed
	a.Response.Msg = msg
	return a
}

// SetContent replaces the response body with raw content of the given
// mime type, bypassing envelope serialization.
func (a *Args) SetContent(b []byte, mime string) *Args {
	a.content = append([]byte(nil), b...)
	a.mime = mime
	a.hasContent = true
	return a
}

// Write appends raw content to the response body. The first Write on
// an invocation switches the response to raw-content mode.
func (a *Args) Write(b []byte) *Args {
	a.content = append(a.content, b...)
	a.hasContent = true
	return a
}

// NoCompress opts this response out of gzip compression.
func (a *Args) NoCompress() *Args {
	a.noCompress = true
	return a
}

// SetHeader sets a response header and chains.
func (a *Args) SetHeader(key, value string) *Args {
	a.Headers.Set(key, value)
	return a
}

// Err terminates a helper chain with no Go error, for handlers whose
// last statement is a Send* call.
func (a *Args) Err() error { return nil }

// ValidatorArgs is the invocation context of the global validator.
type ValidatorArgs struct {
	// Value is what is being validated: the request path under /api.
	Value string
	// Context is the request snapshot (identity included).
	Context *request.Context
	// Options is the validator's configured options value.
	Options any
	// WorkspaceState is the process-wide shared store.
	WorkspaceState *Map
}
