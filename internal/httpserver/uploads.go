package httpserver

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-chi/chi/v5"

	"workspaced/internal/account"
	"workspaced/internal/envelope"
	"workspaced/internal/fsutil"
	"workspaced/internal/request"
	"workspaced/internal/upload"
)

// canWriteDest checks the capability pair for writing destRel: new
// files need canCreate, overwrites need canWrite, and the destination
// must be visible.
func (s *Server) canWriteDest(g *generation, rc *request.Context, destRel string) *envelope.Response {
	abs, err := fsutil.JoinWithinRoot(g.cfg.Root, destRel)
	if err != nil {
		return envelope.Error(envelope.CodeBadRequest, "bad path")
	}
	if st, err := os.Stat(abs); err == nil {
		if st.IsDir() {
			return envelope.Error(envelope.CodeBadRequest, "path is a directory")
		}
		if !rc.User.Can(account.CapWrite) {
			return envelope.Error(envelope.CodeForbidden, "account may not write files")
		}
	} else if !rc.User.Can(account.CapCreate) {
		return envelope.Error(envelope.CodeForbidden, "account may not create files")
	}
	if !rc.User.IsFileVisible(destRel) {
		return envelope.Error(envelope.CodeNotFound, "no such file or directory")
	}
	return nil
}

// handleUploadCreate opens a resumable upload session:
// POST /uploads?path=<rel>&size=<n>.
func (s *Server) handleUploadCreate(g *generation, rc *request.Context) {
	w, r := rc.Writer, rc.Request
	destRel := fsutil.CleanRelPath(rc.Query.Get("path"))
	if destRel == "" {
		s.respond(w, r, envelope.Error(envelope.CodeBadRequest, "missing path"))
		return
	}
	if rej := s.canWriteDest(g, rc, destRel); rej != nil {
		s.respond(w, r, rej)
		return
	}
	total := int64(-1)
	if v := rc.Query.Get("size"); v != "" {
		if n, err := parseInt64(v); err == nil {
			total = n
		}
	}
	sess, err := g.uploads.Create(destRel, total)
	if err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeInternalError, "create upload failed"))
		return
	}
	s.respond(w, r, envelope.OK(sessionView(sess)))
}

// handleUploadStatus reports a session: GET /uploads/{id}.
func (s *Server) handleUploadStatus(g *generation, rc *request.Context) {
	w, r := rc.Writer, rc.Request
	sess, rej := s.uploadSession(g, rc)
	if rej != nil {
		s.respond(w, r, rej)
		return
	}
	s.respond(w, r, envelope.OK(sessionView(sess)))
}

// handleUploadPatch appends a chunk: PATCH /uploads/{id} with a
// Content-Range header.
func (s *Server) handleUploadPatch(g *generation, rc *request.Context) {
	w, r := rc.Writer, rc.Request
	sess, rej := s.uploadSession(g, rc)
	if rej != nil {
		s.respond(w, r, rej)
		return
	}
	updated, err := g.uploads.Patch(r.Context(), sess.ID, r)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.respond(w, r, envelope.Error(envelope.CodeNotFound, "no such upload"))
			return
		}
		s.respond(w, r, envelope.Error(envelope.CodeBadRequest, err.Error()))
		return
	}
	s.respond(w, r, envelope.OK(sessionView(updated)))
}

// handleUploadFinish finalizes: POST /uploads/{id}/finish.
func (s *Server) handleUploadFinish(g *generation, rc *request.Context) {
	w, r := rc.Writer, rc.Request
	sess, rej := s.uploadSession(g, rc)
	if rej != nil {
		s.respond(w, r, rej)
		return
	}
	_, sha, size, err := g.uploads.Finish(r.Context(), sess.ID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.respond(w, r, envelope.Error(envelope.CodeNotFound, "no such upload"))
			return
		}
		s.respond(w, r, envelope.Error(envelope.CodeBadRequest, err.Error()))
		return
	}
	s.respond(w, r, envelope.OK(map[string]any{
		"path":   sess.DestRel,
		"sha256": sha,
		"size":   size,
	}))
}

// uploadSession fetches the session from the URL and re-checks the
// destination gates, so a session cannot outlive a permission change.
func (s *Server) uploadSession(g *generation, rc *request.Context) (*upload.Session, *envelope.Response) {
	id := chi.URLParam(rc.Request, "id")
	if id == "" {
		return nil, envelope.Error(envelope.CodeBadRequest, "missing upload id")
	}
	sess, ok := g.uploads.Get(id)
	if !ok {
		return nil, envelope.Error(envelope.CodeNotFound, "no such upload")
	}
	if rej := s.canWriteDest(g, rc, sess.DestRel); rej != nil {
		return nil, rej
	}
	return sess, nil
}

func sessionView(sess *upload.Session) map[string]any {
	return map[string]any{
		"id":     sess.ID,
		"path":   sess.DestRel,
		"offset": sess.Offset,
		"size":   sess.Size,
	}
}

func parseInt64(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
