// Package dedup is the content-addressed blob store behind every write
// the server performs. Request bodies land in a temp file, are hashed
// into the store, and are then hardlinked (or copied) to their
// destination, so identical uploads share storage and a failed write
// never leaves a half-written destination file.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

type Store struct {
	dir string
}

// New creates the blob store at <stateDir>/blobs.
func New(stateDir string) (*Store, error) {
	dir := filepath.Join(stateDir, "blobs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// BlobPath returns where a blob with the given hash lives.
func (s *Store) BlobPath(sha256hex string) string {
	return filepath.Join(s.dir, sha256hex)
}

// PutReader drains r into a temp file and stores it, returning the
// hash, blob path, and size.
func (s *Store) PutReader(ctx context.Context, r io.Reader) (sha256hex, blobPath string, size int64, err error) {
	tmp := filepath.Join(s.dir, fmt.Sprintf(".in-%d.tmp", time.Now().UnixNano()))
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", "", 0, err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", "", 0, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", "", 0, err
	}
	return s.Put(ctx, tmp)
}

// Put moves tmpFile into the store keyed by its SHA-256. The temp file
// is consumed either way: removed when the blob already exists, renamed
// (or copied across devices) otherwise.
func (s *Store) Put(ctx context.Context, tmpFile string) (sha256hex, blobPath string, size int64, err error) {
	f, err := os.Open(tmpFile)
	if err != nil {
		return "", "", 0, err
	}
	h := sha256.New()
	n, err := copyChunked(ctx, h, f)
	_ = f.Close()
	if err != nil {
		return "", "", 0, err
	}

	sum := hex.EncodeToString(h.Sum(nil))
	dst := s.BlobPath(sum)

	if st, err := os.Stat(dst); err == nil && st.Mode().IsRegular() {
		_ = os.Remove(tmpFile)
		return sum, dst, st.Size(), nil
	}

	if err := os.Rename(tmpFile, dst); err != nil {
		// Cross-device rename: fall back to copy+fsync.
		if err2 := copyFile(tmpFile, dst); err2 != nil {
			return "", "", 0, fmt.Errorf("store blob: rename=%v copy=%v", err, err2)
		}
		_ = os.Remove(tmpFile)
	}
	return sum, dst, n, nil
}

// copyChunked copies in bounded chunks, checking for cancellation
// between chunks.
func copyChunked(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 1<<20)
	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rn, rerr := src.Read(buf)
		if rn > 0 {
			if _, werr := dst.Write(buf[:rn]); werr != nil {
				return n, werr
			}
			n += int64(rn)
		}
		if rerr == io.EOF {
			return n, nil
		}
		if rerr != nil {
			return n, rerr
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return err
	}
	return out.Close()
}

// LinkOrCopy materializes a blob at dst, preferring a hardlink.
func LinkOrCopy(blobPath, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	_ = os.Remove(dst)
	if err := os.Link(blobPath, dst); err == nil {
		return nil
	}
	return copyFile(blobPath, dst)
}
