package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutReaderDeduplicates(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	body := "the same payload twice"
	wantSum := sha256.Sum256([]byte(body))
	wantHex := hex.EncodeToString(wantSum[:])

	sum1, path1, size1, err := s.PutReader(ctx, strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, wantHex, sum1)
	assert.Equal(t, int64(len(body)), size1)
	assert.FileExists(t, path1)

	sum2, path2, size2, err := s.PutReader(ctx, strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, sum1, sum2)
	assert.Equal(t, path1, path2)
	assert.Equal(t, size1, size2)

	// Only the blob remains, no leftover temp files.
	entries, err := os.ReadDir(filepath.Dir(path1))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, wantHex, entries[0].Name())
}

func TestPutConsumesTempFile(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	tmp := filepath.Join(t.TempDir(), "incoming")
	require.NoError(t, os.WriteFile(tmp, []byte("blob"), 0o644))

	_, blobPath, _, err := s.Put(context.Background(), tmp)
	require.NoError(t, err)
	assert.FileExists(t, blobPath)
	assert.NoFileExists(t, tmp)
}

func TestPutCancelled(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _, err = s.PutReader(ctx, strings.NewReader("data"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLinkOrCopy(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, blobPath, _, err := s.PutReader(context.Background(), strings.NewReader("content"))
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "deep", "nested", "file.txt")
	require.NoError(t, LinkOrCopy(blobPath, dst))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(b))

	// Replacing an existing destination works too.
	require.NoError(t, LinkOrCopy(blobPath, dst))
}
