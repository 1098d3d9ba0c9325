package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"workspaced/internal/envelope"
	"workspaced/internal/script"
)

// gzipMin is the smallest body worth compressing.
const gzipMin = 256

// respond renders an envelope as JSON, honoring content negotiation
// and the compression policy.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, env *envelope.Response) {
	out := &script.Outcome{Response: env, Headers: make(http.Header)}
	s.respondOutcome(w, r, out)
}

// respondOutcome renders an engine outcome: either the serialized
// envelope or the handler's raw content. Explicit handler headers win
// over builder defaults; an explicit status code wins over the
// envelope-derived one. Compression failure degrades to an identity
// body rather than failing the request.
func (s *Server) respondOutcome(w http.ResponseWriter, r *http.Request, out *script.Outcome) {
	var body []byte
	if out.HasContent {
		if out.ContentType != "" {
			w.Header().Set("Content-Type", out.ContentType)
		} else {
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		body = out.Content
	} else {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(out.Response); err != nil {
			// The envelope itself failed to serialize (unmarshalable
			// handler data). Degrade to a bare internal-error envelope.
			s.log.Error().Err(err).Msg("envelope serialization failed")
			buf.Reset()
			_ = enc.Encode(envelope.Error(envelope.CodeInternalError, "response serialization failed"))
			out.Response = envelope.Error(envelope.CodeInternalError, "")
		}
		body = buf.Bytes()
	}

	status := out.Response.HTTPStatus()
	if out.StatusCode != 0 {
		status = out.StatusCode
	}

	compressed := false
	if s.compressEnabled() && !out.NoCompress && len(body) >= gzipMin && acceptsGzip(r) {
		if gz, err := gzipBytes(body); err == nil {
			body = gz
			compressed = true
		}
	}
	if compressed {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))

	// Handler-set headers override everything above.
	for k, vs := range out.Headers {
		w.Header().Del(k)
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

func (s *Server) compressEnabled() bool {
	return s.gen.Load().cfg.CompressEnabled()
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if enc == "gzip" || enc == "*" {
			return true
		}
	}
	return false
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(b); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
