package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SajanLamichhane/chunkflow/pkg/store/manifest"
)

func TestSessionLifecycle(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	session := &manifest.Session{
		ID:        "sess-1",
		FileName:  "video.mp4",
		FileSize:  1 << 30,
		FileType:  "video/mp4",
		ChunkSize: 1 << 20,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.PutSession(ctx, session))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session, got)

	require.NoError(t, s.DeleteSession(ctx, "sess-1"))
	_, err = s.GetSession(ctx, "sess-1")
	require.ErrorIs(t, err, manifest.ErrSessionNotFound)

	require.NoError(t, s.DeleteSession(ctx, "sess-1"), "deleting a missing session is not an error")
}

func TestManifestRoundTripAndHashIndex(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	m := &manifest.Manifest{
		FileID:      "file-1",
		FileName:    "video.mp4",
		FileSize:    24,
		FileHash:    "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		ChunkHashes: []string{"h0", "h1", "h2"},
		ChunkSizes:  []int64{8, 8, 8},
	}
	require.NoError(t, s.PutManifest(ctx, m))

	got, err := s.GetManifest(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, m, got)

	byHash, err := s.FindByFileHash(ctx, m.FileHash)
	require.NoError(t, err)
	assert.Equal(t, "file-1", byHash.FileID)

	_, err = s.FindByFileHash(ctx, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	require.ErrorIs(t, err, manifest.ErrManifestNotFound)
}

func TestManifestReturnsCopies(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	m := &manifest.Manifest{
		FileID:      "file-1",
		FileHash:    "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		ChunkHashes: []string{"h0"},
		ChunkSizes:  []int64{8},
	}
	require.NoError(t, s.PutManifest(ctx, m))

	got, err := s.GetManifest(ctx, "file-1")
	require.NoError(t, err)
	got.ChunkHashes[0] = "mutated"

	again, err := s.GetManifest(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "h0", again.ChunkHashes[0])
}

func TestDeleteManifestDropsHashIndex(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	m := &manifest.Manifest{FileID: "file-1", FileHash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	require.NoError(t, s.PutManifest(ctx, m))
	require.NoError(t, s.DeleteManifest(ctx, "file-1"))

	_, err := s.GetManifest(ctx, "file-1")
	require.ErrorIs(t, err, manifest.ErrManifestNotFound)
	_, err = s.FindByFileHash(ctx, m.FileHash)
	require.ErrorIs(t, err, manifest.ErrManifestNotFound)

	require.NoError(t, s.DeleteManifest(ctx, "file-1"))
}

func TestSameHashLatestWins(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	hash := "cccccccccccccccccccccccccccccccc"
	require.NoError(t, s.PutManifest(ctx, &manifest.Manifest{FileID: "old", FileHash: hash}))
	require.NoError(t, s.PutManifest(ctx, &manifest.Manifest{FileID: "new", FileHash: hash}))

	got, err := s.FindByFileHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "new", got.FileID)

	// Deleting the superseded manifest leaves the index pointing at the
	// survivor.
	require.NoError(t, s.DeleteManifest(ctx, "old"))
	got, err = s.FindByFileHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "new", got.FileID)
}

func TestClosedStore(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.PutSession(ctx, &manifest.Session{ID: "x"}), manifest.ErrStoreClosed)
	_, err := s.GetManifest(ctx, "x")
	require.ErrorIs(t, err, manifest.ErrStoreClosed)
}
