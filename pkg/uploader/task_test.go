package uploader

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SajanLamichhane/chunkflow/pkg/digest"
	"github.com/SajanLamichhane/chunkflow/pkg/protocol"
	"github.com/SajanLamichhane/chunkflow/pkg/uploader/progress/memory"
)

// fakeAdapter is a scripted in-process server. Chunk size negotiation is
// controlled by the test so small files split into several chunks.
type fakeAdapter struct {
	mu sync.Mutex

	chunkSize      int64
	fileExists     bool
	fileURL        string
	existingChunks []int

	createErr error
	verifyErr error
	mergeErr  error

	// failuresLeft[i] makes the next n UploadChunk calls for index i fail.
	failuresLeft map[int]int

	// uploadGate, when non-nil, blocks each UploadChunk until the test
	// sends on (or closes) it. gateArrived, when non-nil, receives one
	// signal per call that reaches the gate.
	uploadGate  chan struct{}
	gateArrived chan struct{}

	createCalls  int
	verifyCalls  int
	mergeCalls   int
	uploadCalls  []int
	chunks       map[int][]byte
	lastVerify   protocol.VerifyRequest
	lastMerge    protocol.MergeRequest
}

func newFakeAdapter(chunkSize int64) *fakeAdapter {
	return &fakeAdapter{
		chunkSize:    chunkSize,
		fileURL:      "/files/fake-id",
		failuresLeft: make(map[int]int),
		chunks:       make(map[int][]byte),
	}
}

func (f *fakeAdapter) CreateFile(ctx context.Context, req protocol.CreateRequest) (*protocol.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &protocol.CreateResponse{
		UploadToken:         "fake-token",
		NegotiatedChunkSize: f.chunkSize,
	}, nil
}

func (f *fakeAdapter) VerifyHash(ctx context.Context, req protocol.VerifyRequest) (*protocol.VerifyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	f.lastVerify = req
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &protocol.VerifyResponse{
		FileExists:     f.fileExists,
		FileURL:        f.fileURL,
		ExistingChunks: f.existingChunks,
	}, nil
}

func (f *fakeAdapter) UploadChunk(ctx context.Context, uploadToken string, chunkIndex int, chunkHash string, data []byte) (*protocol.ChunkResponse, error) {
	if f.uploadGate != nil {
		if f.gateArrived != nil {
			f.gateArrived <- struct{}{}
		}
		select {
		case <-f.uploadGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls = append(f.uploadCalls, chunkIndex)
	if n := f.failuresLeft[chunkIndex]; n > 0 {
		f.failuresLeft[chunkIndex] = n - 1
		return nil, fmt.Errorf("injected failure for chunk %d", chunkIndex)
	}
	if sum := md5.Sum(data); hex.EncodeToString(sum[:]) != chunkHash {
		return nil, fmt.Errorf("hash mismatch for chunk %d", chunkIndex)
	}
	f.chunks[chunkIndex] = append([]byte(nil), data...)
	return &protocol.ChunkResponse{Success: true, ChunkHash: chunkHash}, nil
}

func (f *fakeAdapter) MergeFile(ctx context.Context, req protocol.MergeRequest) (*protocol.MergeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mergeCalls++
	f.lastMerge = req
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	return &protocol.MergeResponse{Success: true, FileURL: f.fileURL}, nil
}

func (f *fakeAdapter) uploadedIndices() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.uploadCalls...)
}

func testFile(name string, data []byte) File {
	return File{
		Name:         name,
		Size:         int64(len(data)),
		Type:         "application/octet-stream",
		LastModified: 1700000000000,
		Reader:       bytes.NewReader(data),
	}
}

func waitDone(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("task did not finish, status %s", task.GetStatus())
	}
}

func TestTaskFreshUploadMergesAllChunks(t *testing.T) {
	data := []byte("abcdefghijklmnopqrstuvwx") // 24 bytes, 3 chunks of 8
	adapter := newFakeAdapter(8)
	task, err := NewTask(testFile("data.bin", data), adapter, nil, TaskOptions{RetryDelay: time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, task.Start(context.Background()))
	waitDone(t, task)

	require.Equal(t, StatusSuccess, task.GetStatus())
	assert.Equal(t, "/files/fake-id", task.FileURL())
	assert.ElementsMatch(t, []int{0, 1, 2}, adapter.uploadedIndices())

	// Merge must carry the whole-file hash plus every chunk hash in order.
	fileSum := md5.Sum(data)
	assert.Equal(t, hex.EncodeToString(fileSum[:]), adapter.lastMerge.FileHash)
	require.Len(t, adapter.lastMerge.ChunkHashes, 3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, digest.Sum(data[i*8:(i+1)*8]), adapter.lastMerge.ChunkHashes[i])
	}

	p := task.GetProgress()
	assert.Equal(t, int64(24), p.UploadedBytes)
	assert.Equal(t, float64(100), p.Percentage)
	assert.Equal(t, 3, p.UploadedChunks)
}

func TestTaskInstantUploadSkipsChunkTransfer(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 64)
	adapter := newFakeAdapter(16)
	adapter.fileExists = true
	adapter.fileURL = "/files/existing"

	task, err := NewTask(testFile("dup.bin", data), adapter, nil, TaskOptions{
		VerifyWait: 5 * time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, task.Start(context.Background()))
	waitDone(t, task)

	require.Equal(t, StatusSuccess, task.GetStatus())
	assert.Equal(t, "/files/existing", task.FileURL())
	assert.Empty(t, adapter.uploadedIndices(), "instant upload must move no chunk bytes")
	assert.Equal(t, 0, adapter.mergeCalls)
}

func TestTaskSkipsChunksTheServerAlreadyHolds(t *testing.T) {
	data := []byte("abcdefghijklmnopqrstuvwx")
	adapter := newFakeAdapter(8)
	adapter.existingChunks = []int{1}

	task, err := NewTask(testFile("partial.bin", data), adapter, nil, TaskOptions{
		VerifyWait: 5 * time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, task.Start(context.Background()))
	waitDone(t, task)

	require.Equal(t, StatusSuccess, task.GetStatus())
	assert.ElementsMatch(t, []int{0, 2}, adapter.uploadedIndices())
	assert.Equal(t, 1, adapter.mergeCalls)
	require.Len(t, adapter.lastMerge.ChunkHashes, 3, "merge still lists skipped chunks")
}

func TestTaskRetriesThenSucceeds(t *testing.T) {
	data := []byte("0123456789abcdef")
	adapter := newFakeAdapter(8)
	adapter.failuresLeft[1] = 2

	task, err := NewTask(testFile("flaky.bin", data), adapter, nil, TaskOptions{
		RetryCount: 3,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)

	var chunkErrors int
	task.On(EventChunkError, func(any) { chunkErrors++ })

	require.NoError(t, task.Start(context.Background()))
	waitDone(t, task)

	require.Equal(t, StatusSuccess, task.GetStatus())
	assert.Equal(t, 2, chunkErrors)
}

func TestTaskFailsAfterRetriesExhausted(t *testing.T) {
	data := []byte("0123456789abcdef")
	adapter := newFakeAdapter(8)
	adapter.failuresLeft[1] = 100

	store := memory.New()
	require.NoError(t, store.Init(context.Background()))

	task, err := NewTask(testFile("doomed.bin", data), adapter, store, TaskOptions{
		RetryCount: 2,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, task.Start(context.Background()))
	waitDone(t, task)

	require.Equal(t, StatusError, task.GetStatus())
	require.Error(t, task.Err())
	assert.Contains(t, task.Err().Error(), "after 3 attempts")

	// The record survives a failed upload so the user can resume later.
	record, err := store.GetRecord(context.Background(), task.ID())
	require.NoError(t, err)
	assert.Equal(t, "doomed.bin", record.FileName)
}

func TestTaskCreateFailureDrivesError(t *testing.T) {
	adapter := newFakeAdapter(8)
	adapter.createErr = errors.New("server unavailable")

	task, err := NewTask(testFile("f.bin", []byte("data")), adapter, nil, TaskOptions{})
	require.NoError(t, err)

	err = task.Start(context.Background())
	require.Error(t, err)
	waitDone(t, task)
	assert.Equal(t, StatusError, task.GetStatus())
	assert.ErrorIs(t, task.Err(), err)
}

func TestTaskEmptyFile(t *testing.T) {
	adapter := newFakeAdapter(8)
	task, err := NewTask(File{Name: "empty.bin", Size: 0}, adapter, nil, TaskOptions{})
	require.NoError(t, err)

	require.NoError(t, task.Start(context.Background()))
	waitDone(t, task)

	require.Equal(t, StatusSuccess, task.GetStatus())
	assert.Equal(t, []int{0}, adapter.uploadedIndices())
	assert.Equal(t, digest.Empty, adapter.lastMerge.FileHash)
	assert.Equal(t, []string{digest.Empty}, adapter.lastMerge.ChunkHashes)
	assert.Equal(t, float64(100), task.GetProgress().Percentage)
}

func TestTaskPauseResumeCancel(t *testing.T) {
	data := bytes.Repeat([]byte("y"), 32) // 4 chunks of 8
	adapter := newFakeAdapter(8)
	adapter.uploadGate = make(chan struct{})

	task, err := NewTask(testFile("big.bin", data), adapter, nil, TaskOptions{Concurrency: 1})
	require.NoError(t, err)

	chunkDone := make(chan struct{}, 8)
	task.On(EventChunkSuccess, func(any) { chunkDone <- struct{}{} })

	require.NoError(t, task.Start(context.Background()))

	// Let exactly one chunk through, then pause while the rest queue.
	adapter.uploadGate <- struct{}{}
	<-chunkDone
	require.NoError(t, task.Pause())
	assert.Equal(t, StatusPaused, task.GetStatus())

	// Pausing a paused task is rejected.
	require.ErrorIs(t, task.Pause(), ErrInvalidTransition)

	require.NoError(t, task.Resume(context.Background()))
	assert.Equal(t, StatusUploading, task.GetStatus())

	adapter.uploadGate <- struct{}{}
	<-chunkDone

	require.NoError(t, task.Cancel())
	assert.Equal(t, StatusCancelled, task.GetStatus())
	waitDone(t, task)

	// Terminal states accept no further transitions.
	require.ErrorIs(t, task.Resume(context.Background()), ErrInvalidTransition)
	require.ErrorIs(t, task.Cancel(), ErrInvalidTransition)
	close(adapter.uploadGate)
}

func TestTaskResumeMergesChunksFinishedWhilePaused(t *testing.T) {
	data := []byte("01234567") // one chunk
	adapter := newFakeAdapter(8)
	adapter.uploadGate = make(chan struct{})
	adapter.gateArrived = make(chan struct{}, 1)

	task, err := NewTask(testFile("late.bin", data), adapter, nil, TaskOptions{Concurrency: 1})
	require.NoError(t, err)

	chunkDone := make(chan struct{}, 1)
	task.On(EventChunkSuccess, func(any) { chunkDone <- struct{}{} })

	require.NoError(t, task.Start(context.Background()))
	<-adapter.gateArrived

	// The only chunk is in flight; pause, then let it finish while the
	// task is paused. It still counts.
	require.NoError(t, task.Pause())
	adapter.uploadGate <- struct{}{}
	<-chunkDone
	assert.Equal(t, StatusPaused, task.GetStatus())
	assert.Equal(t, 1, task.GetProgress().UploadedChunks)

	// Resume finds nothing left to submit and must still drive the task
	// through merge to success.
	require.NoError(t, task.Resume(context.Background()))
	waitDone(t, task)

	require.Equal(t, StatusSuccess, task.GetStatus())
	assert.Equal(t, 1, adapter.mergeCalls)
}

func TestTaskRejectsIllegalTransitions(t *testing.T) {
	adapter := newFakeAdapter(8)
	task, err := NewTask(testFile("f.bin", []byte("data")), adapter, nil, TaskOptions{})
	require.NoError(t, err)

	require.ErrorIs(t, task.Pause(), ErrInvalidTransition)
	require.ErrorIs(t, task.Resume(context.Background()), ErrInvalidTransition)
	require.ErrorIs(t, task.Cancel(), ErrInvalidTransition)

	require.NoError(t, task.Start(context.Background()))
	require.ErrorIs(t, task.Start(context.Background()), ErrInvalidTransition)
	waitDone(t, task)
}

func TestTaskProgressIsMonotonic(t *testing.T) {
	data := bytes.Repeat([]byte("z"), 80) // 10 chunks of 8
	adapter := newFakeAdapter(8)

	task, err := NewTask(testFile("mono.bin", data), adapter, nil, TaskOptions{Concurrency: 4})
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []int64
	task.On(EventProgress, func(payload any) {
		p := payload.(Progress)
		mu.Lock()
		seen = append(seen, p.UploadedBytes)
		mu.Unlock()
	})

	require.NoError(t, task.Start(context.Background()))
	waitDone(t, task)
	require.Equal(t, StatusSuccess, task.GetStatus())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1], "uploaded bytes went backwards at event %d", i)
	}
	assert.Equal(t, int64(80), seen[len(seen)-1])
}

func TestTaskHashProgressReachesHundred(t *testing.T) {
	data := bytes.Repeat([]byte("h"), 48)
	adapter := newFakeAdapter(16)

	task, err := NewTask(testFile("hash.bin", data), adapter, nil, TaskOptions{})
	require.NoError(t, err)

	var mu sync.Mutex
	var last int
	var complete string
	task.On(EventHashProgress, func(payload any) {
		mu.Lock()
		last = payload.(int)
		mu.Unlock()
	})
	task.On(EventHashComplete, func(payload any) {
		mu.Lock()
		complete = payload.(HashCompleteEvent).Hash
		mu.Unlock()
	})

	require.NoError(t, task.Start(context.Background()))
	waitDone(t, task)

	fileSum := md5.Sum(data)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 100, last)
	assert.Equal(t, hex.EncodeToString(fileSum[:]), complete)
}

func TestTaskValidatesInputs(t *testing.T) {
	adapter := newFakeAdapter(8)

	_, err := NewTask(testFile("f", []byte("x")), nil, nil, TaskOptions{})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewTask(File{Name: "f", Size: -1}, adapter, nil, TaskOptions{})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewTask(File{Name: "f", Size: 10}, adapter, nil, TaskOptions{})
	require.ErrorIs(t, err, ErrInvalidArgument, "positive size requires a reader")
}
