// Package upload implements resumable uploads into the workspace:
//
//	POST  /uploads?path=<destRel>&size=<n>   -> {id, offset, size}
//	PATCH /uploads/<id>  (Content-Range: bytes <start>-<end>/<total>)
//	POST  /uploads/<id>/finish               -> finalize into dest
//
// Sessions survive restarts: each one is a <id>.part chunk file plus a
// <id>.json descriptor under <stateDir>/uploads. Finalization goes
// through the dedup blob store like every other write.
package upload

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"workspaced/internal/dedup"
	"workspaced/internal/fsutil"
)

// Session is one in-progress upload.
type Session struct {
	ID      string `json:"id"`
	DestRel string `json:"destRel"`
	Size    int64  `json:"size"`   // total when known, else -1
	Offset  int64  `json:"offset"` // contiguous bytes written
	Created int64  `json:"created"`
}

// Manager owns the upload sessions of one workspace.
type Manager struct {
	rootAbs string
	dir     string
	blobs   *dedup.Store

	mu       sync.Mutex
	sessions map[string]*Session
}

// New opens (or creates) the session directory and restores any
// sessions left by a previous run.
func New(rootAbs, stateDir string, blobs *dedup.Store) (*Manager, error) {
	dir := filepath.Join(stateDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	m := &Manager{
		rootAbs:  rootAbs,
		dir:      dir,
		blobs:    blobs,
		sessions: make(map[string]*Session),
	}
	m.restore()
	return m, nil
}

func (m *Manager) restore() {
	ents, err := os.ReadDir(m.dir)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(m.dir, e.Name()))
		if err != nil {
			continue
		}
		var s Session
		if json.Unmarshal(b, &s) != nil || s.ID == "" {
			continue
		}
		cp := s
		m.sessions[s.ID] = &cp
	}
}

// Create opens a new session writing to destRel. total may be -1 when
// the client does not know the final size yet.
func (m *Manager) Create(destRel string, total int64) (*Session, error) {
	destRel = fsutil.CleanRelPath(destRel)
	if destRel == "" {
		return nil, errors.New("upload: missing destination path")
	}
	if _, err := fsutil.JoinWithinRoot(m.rootAbs, destRel); err != nil {
		return nil, err
	}
	id, err := newID()
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:      id,
		DestRel: destRel,
		Size:    total,
		Created: time.Now().Unix(),
	}
	part := filepath.Join(m.dir, id+".part")
	f, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	if err := m.save(s); err != nil {
		_ = os.Remove(part)
		return nil, err
	}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	cp := *s
	return &cp, nil
}

// Get returns a copy of the session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// Patch appends one Content-Range chunk. Chunks must be contiguous:
// the range start has to equal the current offset.
func (m *Manager) Patch(ctx context.Context, id string, r *http.Request) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, os.ErrNotExist
	}

	start, end, total, err := parseContentRange(r.Header.Get("Content-Range"))
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if start != s.Offset {
		offset := s.Offset
		m.mu.Unlock()
		return nil, fmt.Errorf("upload: non-contiguous chunk: start=%d offset=%d", start, offset)
	}
	if s.Size < 0 && total >= 0 {
		s.Size = total
	}
	size := s.Size
	m.mu.Unlock()
	if size >= 0 && end >= size {
		return nil, fmt.Errorf("upload: chunk end %d beyond size %d", end, size)
	}

	part := filepath.Join(m.dir, id+".part")
	f, err := os.OpenFile(part, os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Seek(start, 0); err != nil {
		return nil, err
	}
	want := end - start + 1
	wrote, err := copyN(ctx, f, r.Body, want)
	if err != nil {
		return nil, err
	}
	if wrote != want {
		return nil, fmt.Errorf("upload: short chunk: %d != %d", wrote, want)
	}
	if err := f.Sync(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	s.Offset += wrote
	m.mu.Unlock()
	if err := m.save(s); err != nil {
		return nil, err
	}
	cp := *s
	return &cp, nil
}

// Finish hashes the completed part into the blob store and links it to
// the destination. The session is gone afterwards.
func (m *Manager) Finish(ctx context.Context, id string) (dstAbs, sha256hex string, size int64, err error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return "", "", 0, os.ErrNotExist
	}
	if s.Size >= 0 && s.Offset != s.Size {
		return "", "", 0, fmt.Errorf("upload: incomplete: offset=%d size=%d", s.Offset, s.Size)
	}

	part := filepath.Join(m.dir, id+".part")
	tmp := filepath.Join(m.dir, id+".tmp")
	_ = os.Remove(tmp)
	if err := os.Rename(part, tmp); err != nil {
		return "", "", 0, err
	}

	sha256hex, blobPath, size, err := m.blobs.Put(ctx, tmp)
	if err != nil {
		return "", "", 0, err
	}
	dstAbs, err = fsutil.JoinWithinRoot(m.rootAbs, s.DestRel)
	if err != nil {
		return "", "", 0, err
	}
	if err := dedup.LinkOrCopy(blobPath, dstAbs); err != nil {
		return "", "", 0, err
	}

	_ = os.Remove(filepath.Join(m.dir, id+".json"))
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return dstAbs, sha256hex, size, nil
}

func (m *Manager) save(s *Session) error {
	m.mu.Lock()
	b, err := json.MarshalIndent(s, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return err
	}
	tmp := filepath.Join(m.dir, s.ID+".json.tmp")
	final := filepath.Join(m.dir, s.ID+".json")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

func copyN(ctx context.Context, dst *os.File, src io.Reader, want int64) (int64, error) {
	buf := make([]byte, 1<<20)
	var n int64
	for n < want {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		chunk := int64(len(buf))
		if rem := want - n; rem < chunk {
			chunk = rem
		}
		rn, rerr := src.Read(buf[:chunk])
		if rn > 0 {
			if _, werr := dst.Write(buf[:rn]); werr != nil {
				return n, werr
			}
			n += int64(rn)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return n, rerr
		}
	}
	return n, nil
}

func newID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func parseContentRange(v string) (start, end, total int64, err error) {
	// "bytes <start>-<end>/<total>", total may be "*" for unknown.
	v = strings.TrimSpace(v)
	rest, ok := strings.CutPrefix(v, "bytes ")
	if !ok {
		return 0, 0, 0, errors.New("upload: missing Content-Range (expect: bytes start-end/total)")
	}
	rng, tot, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, 0, 0, errors.New("upload: invalid Content-Range")
	}
	s, e, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, 0, errors.New("upload: invalid Content-Range range")
	}
	start, err = strconv.ParseInt(s, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, 0, errors.New("upload: invalid Content-Range start")
	}
	end, err = strconv.ParseInt(e, 10, 64)
	if err != nil || end < start {
		return 0, 0, 0, errors.New("upload: invalid Content-Range end")
	}
	if tot == "*" {
		return start, end, -1, nil
	}
	total, err = strconv.ParseInt(tot, 10, 64)
	if err != nil || total <= 0 || end >= total {
		return 0, 0, 0, errors.New("upload: invalid Content-Range total")
	}
	return start, end, total, nil
}
