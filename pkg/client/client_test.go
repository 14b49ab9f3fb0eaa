package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SajanLamichhane/chunkflow/pkg/digest"
	"github.com/SajanLamichhane/chunkflow/pkg/protocol"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL, RetryMax: -1})
	require.NoError(t, err)
	return c, srv
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestCreateFile(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload/create", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req protocol.CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "movie.mkv", req.FileName)
		assert.Equal(t, int64(1<<20), req.FileSize)

		json.NewEncoder(w).Encode(protocol.CreateResponse{
			UploadToken:         "tok-123",
			NegotiatedChunkSize: 512 * 1024,
		})
	}))

	resp, err := c.CreateFile(context.Background(), protocol.CreateRequest{
		FileName: "movie.mkv",
		FileSize: 1 << 20,
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-123", resp.UploadToken)
	assert.Equal(t, int64(512*1024), resp.NegotiatedChunkSize)
}

func TestVerifyHash(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/verify", r.URL.Path)
		json.NewEncoder(w).Encode(protocol.VerifyResponse{
			FileExists:     false,
			ExistingChunks: []int{0, 2},
			MissingChunks:  []int{1},
		})
	}))

	resp, err := c.VerifyHash(context.Background(), protocol.VerifyRequest{
		UploadToken: "tok",
		ChunkHashes: []string{digest.Empty, digest.Empty, digest.Empty},
	})
	require.NoError(t, err)
	assert.False(t, resp.FileExists)
	assert.Equal(t, []int{0, 2}, resp.ExistingChunks)
	assert.Equal(t, []int{1}, resp.MissingChunks)
}

func TestUploadChunkMultipart(t *testing.T) {
	data := []byte("chunk payload bytes")
	hash := digest.Sum(data)

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/chunk", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "tok", r.FormValue("uploadToken"))
		assert.Equal(t, "7", r.FormValue("chunkIndex"))
		assert.Equal(t, hash, r.FormValue("chunkHash"))

		file, _, err := r.FormFile("chunk")
		require.NoError(t, err)
		defer file.Close()
		got, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, data, got)

		json.NewEncoder(w).Encode(protocol.ChunkResponse{Success: true, ChunkHash: hash})
	}))

	resp, err := c.UploadChunk(context.Background(), "tok", 7, hash, data)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, hash, resp.ChunkHash)
}

func TestMergeFile(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/merge", r.URL.Path)
		json.NewEncoder(w).Encode(protocol.MergeResponse{
			Success: true,
			FileURL: "/files/abc",
			FileID:  "abc",
		})
	}))

	resp, err := c.MergeFile(context.Background(), protocol.MergeRequest{
		UploadToken: "tok",
		FileHash:    digest.Empty,
		ChunkHashes: []string{digest.Empty},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "/files/abc", resp.FileURL)
}

func TestServerErrorSurfacesMessage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: "invalid upload token"})
	}))

	_, err := c.VerifyHash(context.Background(), protocol.VerifyRequest{UploadToken: "bad"})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "invalid upload token", statusErr.Message)
}

func TestStatusErrorAfterRetriesExhausted(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL, RetryMax: 1, RetryWaitMin: 1, RetryWaitMax: 1})
	require.NoError(t, err)

	_, err = c.CreateFile(context.Background(), protocol.CreateRequest{FileName: "f"})
	require.Error(t, err)

	// The final 5xx must convert to a StatusError, not a bare transport
	// "giving up" error.
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, 2, calls, "one retry after the first 500")
}

func TestNonJSONErrorBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
	}))

	_, err := c.CreateFile(context.Background(), protocol.CreateRequest{FileName: "f"})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusGatewayTimeout, statusErr.StatusCode)
	assert.Equal(t, "gateway timeout", statusErr.Message)
}
