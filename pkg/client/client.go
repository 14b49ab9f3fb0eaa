// Package client implements the HTTP request adapter used by the upload
// engine to talk to a ChunkFlow server. JSON bodies for the control
// operations, multipart for chunk bytes, with transport-level retries
// under the engine's own application-level chunk retry.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/SajanLamichhane/chunkflow/internal/logger"
	"github.com/SajanLamichhane/chunkflow/pkg/protocol"
	"github.com/SajanLamichhane/chunkflow/pkg/uploader"
)

// Upload endpoint paths, relative to the server base URL.
const (
	pathCreate = "/upload/create"
	pathVerify = "/upload/verify"
	pathChunk  = "/upload/chunk"
	pathMerge  = "/upload/merge"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the server root, e.g. "http://localhost:8080". Required.
	BaseURL string

	// HTTPClient is the underlying transport. Defaults to a client with
	// a 30 second timeout.
	HTTPClient *http.Client

	// RetryMax bounds transport-level retries per request. These cover
	// connection resets and 5xx responses; chunk-level retry policy
	// lives in the upload engine. Defaults to 2; negative disables.
	RetryMax int

	RetryWaitMin time.Duration // default 500ms
	RetryWaitMax time.Duration // default 5s
}

// Client is an HTTP implementation of the engine's request adapter.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ uploader.RequestAdapter = (*Client)(nil)

// retryLogger routes retryablehttp's internal logging into the global
// structured logger at debug level.
type retryLogger struct{}

func (retryLogger) Error(msg string, kv ...any) { logger.Warn("http retry: "+msg, kv...) }
func (retryLogger) Warn(msg string, kv ...any)  { logger.Warn("http retry: "+msg, kv...) }
func (retryLogger) Info(msg string, kv ...any)  { logger.Debug("http retry: "+msg, kv...) }
func (retryLogger) Debug(msg string, kv ...any) { logger.Debug("http retry: "+msg, kv...) }

// New creates a client for the given server.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}

	inner := opts.HTTPClient
	if inner == nil {
		inner = &http.Client{Timeout: 30 * time.Second}
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = inner
	switch {
	case opts.RetryMax < 0:
		rc.RetryMax = 0
	case opts.RetryMax == 0:
		rc.RetryMax = 2
	default:
		rc.RetryMax = opts.RetryMax
	}
	rc.RetryWaitMin = opts.RetryWaitMin
	if rc.RetryWaitMin == 0 {
		rc.RetryWaitMin = 500 * time.Millisecond
	}
	rc.RetryWaitMax = opts.RetryWaitMax
	if rc.RetryWaitMax == 0 {
		rc.RetryWaitMax = 5 * time.Second
	}
	rc.Logger = retryLogger{}
	// Surface the final 5xx response after retries are exhausted instead
	// of a bare "giving up" error, so callers see a StatusError.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		http:    rc.StandardClient(),
	}, nil
}

// CreateFile opens an upload session.
func (c *Client) CreateFile(ctx context.Context, req protocol.CreateRequest) (*protocol.CreateResponse, error) {
	var resp protocol.CreateResponse
	if err := c.postJSON(ctx, pathCreate, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyHash checks for instant upload and existing chunks.
func (c *Client) VerifyHash(ctx context.Context, req protocol.VerifyRequest) (*protocol.VerifyResponse, error) {
	var resp protocol.VerifyResponse
	if err := c.postJSON(ctx, pathVerify, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadChunk delivers one chunk as a multipart form: uploadToken,
// chunkIndex and chunkHash fields plus the bytes in a "chunk" file part.
func (c *Client) UploadChunk(ctx context.Context, uploadToken string, chunkIndex int, chunkHash string, data []byte) (*protocol.ChunkResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("uploadToken", uploadToken); err != nil {
		return nil, fmt.Errorf("client: build chunk form: %w", err)
	}
	if err := w.WriteField("chunkIndex", strconv.Itoa(chunkIndex)); err != nil {
		return nil, fmt.Errorf("client: build chunk form: %w", err)
	}
	if err := w.WriteField("chunkHash", chunkHash); err != nil {
		return nil, fmt.Errorf("client: build chunk form: %w", err)
	}
	part, err := w.CreateFormFile("chunk", "chunk")
	if err != nil {
		return nil, fmt.Errorf("client: build chunk form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("client: build chunk form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("client: build chunk form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathChunk, &body)
	if err != nil {
		return nil, fmt.Errorf("client: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	var resp protocol.ChunkResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MergeFile completes the upload.
func (c *Client) MergeFile(ctx context.Context, req protocol.MergeRequest) (*protocol.MergeResponse, error) {
	var resp protocol.MergeResponse
	if err := c.postJSON(ctx, pathMerge, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("client: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

// StatusError is a non-2xx server response. The server's error message,
// when parseable, is preserved for the caller.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

func newStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp protocol.ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
