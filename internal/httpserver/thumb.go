package httpserver

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	// decoders
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"workspaced/internal/account"
	"workspaced/internal/envelope"
	"workspaced/internal/fsutil"
	"workspaced/internal/request"
)

// handleThumb answers GET /thumb?path=<rel> with a cached JPEG
// thumbnail for image files, under the same read gates as the file
// itself.
func (s *Server) handleThumb(g *generation, rc *request.Context) {
	w, r := rc.Writer, rc.Request
	if !rc.User.Can(account.CapOpen) {
		s.respond(w, r, envelope.Error(envelope.CodeForbidden, "account may not read files"))
		return
	}
	rel := fsutil.CleanRelPath(rc.Query.Get("path"))
	abs, err := fsutil.JoinWithinRoot(g.cfg.Root, rel)
	if err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeBadRequest, "bad path"))
		return
	}
	st, err := os.Stat(abs)
	if err != nil || st.IsDir() || !rc.User.IsFileVisible(rel) {
		s.respond(w, r, envelope.Error(envelope.CodeNotFound, "no such image"))
		return
	}
	if !isImageExt(strings.ToLower(filepath.Ext(abs))) {
		s.respond(w, r, envelope.Error(envelope.CodeNotFound, "no such image"))
		return
	}

	thumbDir := filepath.Join(g.cfg.StateDir, "thumbs")
	_ = os.MkdirAll(thumbDir, 0o755)
	key := fmt.Sprintf("%s-%d.jpg", cacheKey(rel), st.ModTime().Unix())
	thumbPath := filepath.Join(thumbDir, key)
	if b, err := os.ReadFile(thumbPath); err == nil {
		writeThumb(w, b)
		return
	}
	b, err := makeThumb(abs, 256)
	if err != nil {
		s.respond(w, r, envelope.Error(envelope.CodeNotFound, "no such image"))
		return
	}
	_ = os.WriteFile(thumbPath, b, 0o644)
	writeThumb(w, b)
}

func writeThumb(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(b)
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	default:
		return false
	}
}

func cacheKey(rel string) string {
	rel = strings.ReplaceAll(rel, "/", "_")
	rel = strings.ReplaceAll(rel, "..", "_")
	if rel == "" {
		rel = "root"
	}
	return rel
}

// makeThumb decodes an image and scales its longest edge down to max,
// re-encoding as JPEG.
func makeThumb(absPath string, max int) ([]byte, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, os.ErrInvalid
	}
	if max <= 0 {
		max = 256
	}

	nw, nh := w, h
	if w >= h && w > max {
		nw = max
		nh = h * max / w
	} else if h > w && h > max {
		nh = max
		nw = w * max / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 82}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
