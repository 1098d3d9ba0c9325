// Package envelope defines the uniform response shape every API
// response is rendered as: {code, data, msg}. Code 0 is success; the
// non-zero codes mirror the HTTP status they map onto.
package envelope

import "net/http"

// Domain status codes.
const (
	CodeOK               = 0
	CodeBadRequest       = 400
	CodeUnauthorized     = 401
	CodeForbidden        = 403
	CodeNotFound         = 404
	CodeMethodNotAllowed = 405
	CodeScriptFailure    = 500
	CodeInternalError    = 500
)

// Response is the envelope being built for one request. Handlers
// mutate it through script.Args helpers; the response builder
// serializes it once the pipeline finishes.
type Response struct {
	Code int    `json:"code"`
	Data any    `json:"data,omitempty"`
	Msg  string `json:"msg,omitempty"`
}

// OK returns a success envelope carrying data.
func OK(data any) *Response {
	return &Response{Code: CodeOK, Data: data}
}

// Error returns a failure envelope.
func Error(code int, msg string) *Response {
	return &Response{Code: code, Msg: msg}
}

// HTTPStatus maps the domain code onto an HTTP status. Code 0 and any
// code outside the HTTP range map to 200; the pipeline reports
// handler-declared codes in the envelope, the transport status follows
// them when they are recognizable HTTP statuses.
func (r *Response) HTTPStatus() int {
	if r.Code >= 100 && r.Code < 600 {
		return r.Code
	}
	return http.StatusOK
}
