package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SajanLamichhane/chunkflow/pkg/digest"
	"github.com/SajanLamichhane/chunkflow/pkg/store/blob"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestPutGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	data := []byte("chunk content on disk")
	hash := digest.Sum(data)

	require.NoError(t, s.Put(ctx, hash, data))

	got, err := s.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	size, err := s.Size(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
}

func TestBlobsAreShardedByDigestPrefix(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()

	data := []byte("sharded")
	hash := digest.Sum(data)
	require.NoError(t, s.Put(ctx, hash, data))

	_, err := os.Stat(filepath.Join(dir, hash[:2], hash))
	require.NoError(t, err, "blob must live under its two-character shard")
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()

	data := []byte("clean write")
	hash := digest.Sum(data)
	require.NoError(t, s.Put(ctx, hash, data))

	entries, err := os.ReadDir(filepath.Join(dir, hash[:2]))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, hash, entries[0].Name())
}

func TestPutIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	data := []byte("dedup me")
	hash := digest.Sum(data)

	require.NoError(t, s.Put(ctx, hash, data))
	require.NoError(t, s.Put(ctx, hash, data))

	got, err := s.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestBlobsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	data := []byte("persistent bytes")
	hash := digest.Sum(data)

	s1, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, hash, data))
	require.NoError(t, s1.Close())

	s2, err := New(dir)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestGetRange(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	data := []byte("abcdefghij")
	hash := digest.Sum(data)
	require.NoError(t, s.Put(ctx, hash, data))

	got, err := s.GetRange(ctx, hash, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("defg"), got)

	got, err = s.GetRange(ctx, hash, 7, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("hij"), got)

	got, err = s.GetRange(ctx, hash, 50, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.GetRange(ctx, digest.Empty, 0, 1)
	require.ErrorIs(t, err, blob.ErrBlobNotFound)
}

func TestMissingBlob(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, digest.Empty)
	require.ErrorIs(t, err, blob.ErrBlobNotFound)

	ok, err := s.Has(ctx, digest.Empty)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, digest.Empty), "deleting a missing blob is not an error")
}

func TestEmptyBlob(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, digest.Empty, nil))

	got, err := s.Get(ctx, digest.Empty)
	require.NoError(t, err)
	assert.Empty(t, got)

	size, err := s.Size(ctx, digest.Empty)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestClosedStore(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Put(ctx, digest.Empty, nil), blob.ErrStoreClosed)
	_, err := s.Get(ctx, digest.Empty)
	require.ErrorIs(t, err, blob.ErrStoreClosed)
}

func TestHealthCheck(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.HealthCheck(context.Background()))
}
