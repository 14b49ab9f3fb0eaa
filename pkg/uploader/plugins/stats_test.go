package plugins

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SajanLamichhane/chunkflow/pkg/protocol"
	"github.com/SajanLamichhane/chunkflow/pkg/uploader"
)

// nopAdapter satisfies the adapter interface for constructing tasks that
// are never started.
type nopAdapter struct{}

func (nopAdapter) CreateFile(context.Context, protocol.CreateRequest) (*protocol.CreateResponse, error) {
	return &protocol.CreateResponse{UploadToken: "t", NegotiatedChunkSize: protocol.DefaultChunkSize}, nil
}

func (nopAdapter) VerifyHash(context.Context, protocol.VerifyRequest) (*protocol.VerifyResponse, error) {
	return &protocol.VerifyResponse{}, nil
}

func (nopAdapter) UploadChunk(context.Context, string, int, string, []byte) (*protocol.ChunkResponse, error) {
	return &protocol.ChunkResponse{Success: true}, nil
}

func (nopAdapter) MergeFile(context.Context, protocol.MergeRequest) (*protocol.MergeResponse, error) {
	return &protocol.MergeResponse{Success: true}, nil
}

func newIdleTask(t *testing.T, name string, size int) *uploader.Task {
	t.Helper()
	data := bytes.Repeat([]byte("x"), size)
	task, err := uploader.NewTask(uploader.File{
		Name:   name,
		Size:   int64(size),
		Reader: bytes.NewReader(data),
	}, nopAdapter{}, nil, uploader.TaskOptions{})
	require.NoError(t, err)
	return task
}

func TestStatsCountsOutcomes(t *testing.T) {
	s := NewStats()
	p := s.Plugin()

	t1 := newIdleTask(t, "a.bin", 100)
	t2 := newIdleTask(t, "b.bin", 100)
	t3 := newIdleTask(t, "c.bin", 100)

	p.OnTaskStart(t1)
	p.OnTaskStart(t2)
	p.OnTaskStart(t3)
	p.OnTaskSuccess(t1, "/files/1")
	p.OnTaskError(t2, assert.AnError)
	p.OnTaskCancel(t3)

	snap := s.Snapshot()
	assert.Equal(t, 3, snap.TasksStarted)
	assert.Equal(t, 1, snap.TasksSucceeded)
	assert.Equal(t, 1, snap.TasksFailed)
	assert.Equal(t, 1, snap.TasksCancelled)
	assert.InDelta(t, 1.0/3.0, snap.SuccessRate, 1e-9)
}

func TestStatsSumsBytesAcrossTasks(t *testing.T) {
	s := NewStats()
	p := s.Plugin()

	t1 := newIdleTask(t, "a.bin", 100)
	t2 := newIdleTask(t, "b.bin", 200)

	p.OnTaskStart(t1)
	p.OnTaskProgress(t1, uploader.Progress{UploadedBytes: 40})
	p.OnTaskProgress(t1, uploader.Progress{UploadedBytes: 100})
	p.OnTaskProgress(t2, uploader.Progress{UploadedBytes: 150})

	// A stale progress event must not shrink the total.
	p.OnTaskProgress(t1, uploader.Progress{UploadedBytes: 60})

	snap := s.Snapshot()
	assert.Equal(t, int64(250), snap.UploadedBytes)
}

func TestStatsAverageSpeed(t *testing.T) {
	s := NewStats()
	base := time.Now()
	current := base
	s.now = func() time.Time { return current }

	p := s.Plugin()
	t1 := newIdleTask(t, "a.bin", 1000)

	p.OnTaskStart(t1)
	p.OnTaskProgress(t1, uploader.Progress{UploadedBytes: 1000})

	current = base.Add(2 * time.Second)
	snap := s.Snapshot()
	assert.InDelta(t, 500, snap.AverageSpeed, 1e-9)
}

func TestStatsZeroBeforeAnyActivity(t *testing.T) {
	snap := NewStats().Snapshot()
	assert.Zero(t, snap.TasksStarted)
	assert.Zero(t, snap.UploadedBytes)
	assert.Zero(t, snap.AverageSpeed)
	assert.Zero(t, snap.SuccessRate)
}

func TestLoggerPluginHooksAreSafe(t *testing.T) {
	p := NewLogger(DefaultLoggerConfig())
	task := newIdleTask(t, "a.bin", 10)

	require.NotPanics(t, func() {
		p.OnTaskCreated(task)
		p.OnTaskStart(task)
		p.OnTaskProgress(task, uploader.Progress{UploadedBytes: 5})
		p.OnTaskSuccess(task, "/files/1")
		p.OnTaskError(task, assert.AnError)
		p.OnTaskPause(task)
		p.OnTaskResume(task)
		p.OnTaskCancel(task)
	})
}
