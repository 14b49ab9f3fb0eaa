package uploader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SajanLamichhane/chunkflow/internal/logger"
	"github.com/SajanLamichhane/chunkflow/pkg/bufpool"
	"github.com/SajanLamichhane/chunkflow/pkg/chunker"
	"github.com/SajanLamichhane/chunkflow/pkg/digest"
	"github.com/SajanLamichhane/chunkflow/pkg/protocol"
	"github.com/SajanLamichhane/chunkflow/pkg/uploader/progress"
)

// Task drives one file through the upload protocol: create session, hash
// and upload in parallel, verify for instant upload, merge, and persist
// progress after every acknowledged chunk.
//
// Status transitions:
//
//	idle -> uploading -> {paused, success, error, cancelled}
//	paused -> {uploading, cancelled}
//
// success, error and cancelled are terminal and fire their event at most
// once.
type Task struct {
	id      string
	file    File
	opts    TaskOptions
	adapter RequestAdapter
	store   progress.Store
	events  *Events
	limiter *Limiter
	adjust  *chunker.Adjuster

	mu            sync.Mutex
	status        Status
	token         Token
	chunks        []ChunkInfo
	chunkHashes   []string // filled by the hash pass, in plan order
	uploaded      map[int]bool
	inflight      map[int]bool
	fileHash      string
	hashDone      bool
	merging       bool
	uploadedBytes int64 // includes resume-seeded and dedup-existing chunks
	sessionBytes  int64 // bytes uploaded by this process, for speed
	startedAt     time.Time
	recordSaved   bool
	fileURL       string
	finalErr      error

	// progressMu serializes progress snapshots with their emission so
	// observed uploadedBytes never go backwards.
	progressMu sync.Mutex

	verifyDone chan struct{}
	done       chan struct{}

	// hashCtx is cancelled when the task reaches a terminal state so the
	// streaming hash stops promptly.
	hashCtx    context.Context
	hashCancel context.CancelFunc
}

// NewTask constructs a task in idle state with a freshly generated ID
// (or the resumed ID when opts.Resume is set).
func NewTask(file File, adapter RequestAdapter, store progress.Store, opts TaskOptions) (*Task, error) {
	if adapter == nil {
		return nil, fmt.Errorf("%w: nil request adapter", ErrInvalidArgument)
	}
	if file.Size < 0 {
		return nil, fmt.Errorf("%w: negative file size", ErrInvalidArgument)
	}
	if file.Size > 0 && file.Reader == nil {
		return nil, fmt.Errorf("%w: nil file reader", ErrInvalidArgument)
	}

	opts = opts.withDefaults()

	limiter, err := NewLimiter(opts.Concurrency)
	if err != nil {
		return nil, err
	}

	adjust, err := chunker.New(chunker.Config{
		InitialSize: opts.ChunkSize,
		MinSize:     protocol.MinChunkSize,
		MaxSize:     protocol.MaxChunkSize,
		TargetTime:  protocol.DefaultTargetTime * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if opts.Resume != nil && opts.Resume.TaskID != "" {
		id = opts.Resume.TaskID
	}

	hashCtx, hashCancel := context.WithCancel(context.Background())

	return &Task{
		id:         id,
		file:       file,
		opts:       opts,
		adapter:    adapter,
		store:      store,
		events:     NewEvents(),
		limiter:    limiter,
		adjust:     adjust,
		status:     StatusIdle,
		uploaded:   make(map[int]bool),
		inflight:   make(map[int]bool),
		verifyDone: make(chan struct{}),
		done:       make(chan struct{}),
		hashCtx:    hashCtx,
		hashCancel: hashCancel,
	}, nil
}

// ID returns the unique task identifier.
func (t *Task) ID() string { return t.id }

// File returns the file this task uploads.
func (t *Task) File() File { return t.file }

// Events returns the task's event bus for On/Off subscriptions.
func (t *Task) Events() *Events { return t.events }

// On subscribes a handler to a lifecycle event.
func (t *Task) On(event string, fn Handler) HandlerID { return t.events.On(event, fn) }

// Off removes a previously registered handler.
func (t *Task) Off(event string, id HandlerID) { t.events.Off(event, id) }

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the terminal error, if the task failed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalErr
}

// FileURL returns the server URL of the uploaded file after success.
func (t *Task) FileURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fileURL
}

// GetStatus returns the current status.
func (t *Task) GetStatus() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// NextChunkSize exposes the adjuster's current choice, used as the
// preferred size for subsequent task plans.
func (t *Task) NextChunkSize() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.adjust.Current()
}

// GetProgress returns a consistent snapshot of upload progress.
func (t *Task) GetProgress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progressLocked()
}

func (t *Task) progressLocked() Progress {
	p := Progress{
		UploadedBytes:  t.uploadedBytes,
		TotalBytes:     t.file.Size,
		UploadedChunks: len(t.uploaded),
		TotalChunks:    len(t.chunks),
	}
	if t.file.Size > 0 {
		p.Percentage = float64(t.uploadedBytes) * 100 / float64(t.file.Size)
	} else if t.status == StatusSuccess {
		p.Percentage = 100
	}
	if !t.startedAt.IsZero() {
		elapsed := time.Since(t.startedAt).Seconds()
		if elapsed > 0 && t.sessionBytes > 0 {
			p.Speed = float64(t.sessionBytes) / elapsed
			remaining := t.file.Size - t.uploadedBytes
			if remaining > 0 {
				p.RemainingTime = time.Duration(float64(remaining) / p.Speed * float64(time.Second))
			}
		}
	}
	return p
}

// Start begins the upload. It creates the session synchronously (or
// reuses the resumed token), then runs hashing and chunk uploads in the
// background. Session creation failure drives the task to error and is
// also returned.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.status != StatusIdle {
		status := t.status
		t.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, status)
	}
	t.status = StatusUploading
	t.startedAt = time.Now()
	t.mu.Unlock()

	t.events.Emit(EventStart, nil)

	if t.opts.Resume != nil && t.opts.Resume.Token.Token != "" {
		t.mu.Lock()
		t.token = t.opts.Resume.Token
		t.mu.Unlock()
	} else {
		resp, err := t.adapter.CreateFile(ctx, protocol.CreateRequest{
			FileName:           t.file.Name,
			FileSize:           t.file.Size,
			FileType:           t.file.Type,
			PreferredChunkSize: t.opts.ChunkSize,
		})
		if err != nil {
			failErr := fmt.Errorf("create file: %w", err)
			t.fail(failErr)
			return failErr
		}
		if resp.NegotiatedChunkSize <= 0 {
			failErr := fmt.Errorf("create file: invalid negotiated chunk size %d", resp.NegotiatedChunkSize)
			t.fail(failErr)
			return failErr
		}
		t.mu.Lock()
		t.token = Token{Token: resp.UploadToken, ChunkSize: resp.NegotiatedChunkSize}
		t.mu.Unlock()
	}

	t.mu.Lock()
	t.chunks = buildChunkPlan(t.file.Size, t.token.ChunkSize)
	t.chunkHashes = make([]string, len(t.chunks))
	if t.opts.Resume != nil {
		for _, idx := range t.opts.Resume.UploadedChunks {
			if idx >= 0 && idx < len(t.chunks) {
				t.uploaded[idx] = true
				t.uploadedBytes += t.chunks[idx].Size()
			}
		}
	}
	t.mu.Unlock()

	go t.runHash()
	go t.scheduleChunks(ctx)

	return nil
}

// Pause stops submitting new chunks. Already-started chunk uploads run
// to completion and still count.
func (t *Task) Pause() error {
	t.mu.Lock()
	if t.status != StatusUploading {
		status := t.status
		t.mu.Unlock()
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, status)
	}
	t.status = StatusPaused
	t.mu.Unlock()

	t.limiter.ClearQueue()
	t.events.Emit(EventPause, nil)
	return nil
}

// Resume re-enters uploading and resubmits the remaining chunks.
func (t *Task) Resume(ctx context.Context) error {
	t.mu.Lock()
	if t.status != StatusPaused {
		status := t.status
		t.mu.Unlock()
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, status)
	}
	t.status = StatusUploading
	t.mu.Unlock()

	t.events.Emit(EventResume, nil)
	go t.scheduleChunks(ctx)
	return nil
}

// Cancel aborts the task. Pending chunks are cleared synchronously;
// in-flight uploads run to completion but their results are discarded.
// The progress record is deleted.
func (t *Task) Cancel() error {
	t.mu.Lock()
	if t.status != StatusUploading && t.status != StatusPaused {
		status := t.status
		t.mu.Unlock()
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, status)
	}
	t.status = StatusCancelled
	t.mu.Unlock()

	t.hashCancel()
	t.limiter.ClearQueue()
	t.deleteRecord()
	t.events.Emit(EventCancel, nil)
	close(t.done)
	return nil
}

// ============================================================================
// Hash activity
// ============================================================================

// runHash streams the file once, computing the whole-file digest and
// every chunk digest in the same pass, then asks the server whether the
// file or any chunks already exist.
func (t *Task) runHash() {
	t.mu.Lock()
	chunks := t.chunks
	totalSize := t.file.Size
	t.mu.Unlock()

	fileHasher := md5.New()
	hashes := make([]string, len(chunks))

	var hashedBase int64
	for i, c := range chunks {
		if t.GetStatus().Terminal() {
			return
		}

		var reader io.Reader = digest.Slice(t.file.Reader, c.Start, c.End)
		reader = io.TeeReader(reader, fileHasher)

		chunkSize := c.Size()
		base := hashedBase
		h, err := digest.File(t.hashCtx, reader, chunkSize, func(pct int) {
			if totalSize <= 0 {
				return
			}
			overall := int((base + chunkSize*int64(pct)/100) * 100 / totalSize)
			t.events.Emit(EventHashProgress, overall)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			t.fail(fmt.Errorf("hash chunk %d: %w", c.Index, err))
			return
		}
		hashes[i] = h
		hashedBase += chunkSize
	}

	fileHash := hex.EncodeToString(fileHasher.Sum(nil))

	t.mu.Lock()
	t.fileHash = fileHash
	copy(t.chunkHashes, hashes)
	t.hashDone = true
	token := t.token.Token
	t.mu.Unlock()

	t.events.Emit(EventHashComplete, HashCompleteEvent{Hash: fileHash})

	// Closed only after the verify outcome is fully applied, so a task
	// waiting out VerifyWait schedules against the post-dedup chunk set.
	defer close(t.verifyDone)

	resp, err := t.adapter.VerifyHash(t.hashCtx, protocol.VerifyRequest{
		UploadToken: token,
		FileHash:    fileHash,
		ChunkHashes: hashes,
	})
	if err != nil {
		t.fail(fmt.Errorf("verify hash: %w", err))
		return
	}

	if resp.FileExists {
		// Instant upload: unstarted chunks are dropped; in-flight ones
		// finish but their results are discarded.
		t.finishSuccess(resp.FileURL)
		return
	}

	t.markExisting(resp.ExistingChunks)
	t.maybeMerge()
}

// markExisting records chunks the server already holds; they are never
// uploaded but count toward progress.
func (t *Task) markExisting(indices []int) {
	if len(indices) == 0 {
		return
	}

	t.progressMu.Lock()
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		t.progressMu.Unlock()
		return
	}
	changed := false
	for _, idx := range indices {
		if idx < 0 || idx >= len(t.chunks) || t.uploaded[idx] {
			continue
		}
		t.uploaded[idx] = true
		t.uploadedBytes += t.chunks[idx].Size()
		changed = true
	}
	snapshot := t.progressLocked()
	t.mu.Unlock()

	if changed {
		t.saveProgress()
		t.events.Emit(EventProgress, snapshot)
	}
	t.progressMu.Unlock()
}

// ============================================================================
// Upload activity
// ============================================================================

// scheduleChunks submits every not-yet-uploaded chunk through the
// limiter. With VerifyWait set, hashing gets a head start so a positive
// verify can prove instant upload before any bytes move.
func (t *Task) scheduleChunks(ctx context.Context) {
	if t.opts.VerifyWait > 0 {
		select {
		case <-t.verifyDone:
		case <-time.After(t.opts.VerifyWait):
		case <-t.done:
			return
		case <-ctx.Done():
			return
		}
	}

	t.mu.Lock()
	var pending []int
	for _, c := range t.chunks {
		if !t.uploaded[c.Index] && !t.inflight[c.Index] {
			pending = append(pending, c.Index)
		}
	}
	t.mu.Unlock()

	for _, idx := range pending {
		idx := idx
		go func() {
			err := t.limiter.Run(ctx, func() error {
				return t.uploadChunk(ctx, idx)
			})
			if err != nil && !errors.Is(err, ErrQueueCleared) && !errors.Is(err, context.Canceled) {
				logger.Debug("chunk upload finished with error",
					logger.KeyTaskID, t.id, logger.KeyChunkIndex, idx, logger.KeyError, err)
			}
		}()
	}

	// Nothing left to submit: the last chunk may have completed while the
	// task was paused, when onChunkSuccess cannot merge. Merging is this
	// goroutine's responsibility then.
	if len(pending) == 0 {
		t.maybeMerge()
	}
}

// claimChunk marks the chunk in flight. It refuses when the task is not
// actively uploading or the chunk is already handled.
func (t *Task) claimChunk(idx int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusUploading {
		return false
	}
	if t.uploaded[idx] || t.inflight[idx] {
		return false
	}
	t.inflight[idx] = true
	return true
}

// uploadChunk reads the chunk's byte view, hashes it, and delivers it
// with application-level retry and exponential backoff.
func (t *Task) uploadChunk(ctx context.Context, idx int) error {
	if !t.claimChunk(idx) {
		return nil
	}
	defer func() {
		t.mu.Lock()
		delete(t.inflight, idx)
		t.mu.Unlock()
	}()

	t.mu.Lock()
	c := t.chunks[idx]
	token := t.token.Token
	t.mu.Unlock()

	var data []byte
	if size := c.Size(); size > 0 {
		data = bufpool.Get(int(size))
		defer bufpool.Put(data)
		if _, err := io.ReadFull(digest.Slice(t.file.Reader, c.Start, c.End), data); err != nil {
			readErr := fmt.Errorf("read chunk %d: %w", idx, err)
			t.events.Emit(EventChunkError, ChunkErrorEvent{ChunkIndex: idx, Err: readErr})
			t.fail(readErr)
			return readErr
		}
	}
	hash := digest.Sum(data)

	for attempt := 0; ; attempt++ {
		if status := t.GetStatus(); status.Terminal() {
			return nil // discarded
		}

		start := time.Now()
		resp, err := t.adapter.UploadChunk(ctx, token, idx, hash, data)
		if err == nil && resp != nil && resp.Success {
			t.onChunkSuccess(idx, c.Size(), time.Since(start))
			return nil
		}
		if err == nil {
			err = fmt.Errorf("server rejected chunk %d", idx)
		}

		t.events.Emit(EventChunkError, ChunkErrorEvent{ChunkIndex: idx, Err: err})

		if attempt >= t.opts.RetryCount {
			failErr := fmt.Errorf("chunk %d failed after %d attempts: %w", idx, attempt+1, err)
			t.fail(failErr)
			return failErr
		}

		delay := t.opts.RetryDelay * (1 << attempt)
		logger.Debug("retrying chunk upload",
			logger.KeyTaskID, t.id, logger.KeyChunkIndex, idx,
			logger.KeyAttempt, attempt+1, "delay", delay.String())

		select {
		case <-time.After(delay):
		case <-t.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// onChunkSuccess records an acknowledged chunk: progress accounting,
// chunk-size feedback, persistent record, events, and merge when this
// was the last piece.
func (t *Task) onChunkSuccess(idx int, size int64, uploadTime time.Duration) {
	t.progressMu.Lock()
	t.mu.Lock()

	if t.status.Terminal() {
		// Cancelled or already finished: discard the result.
		t.mu.Unlock()
		t.progressMu.Unlock()
		return
	}
	if t.uploaded[idx] {
		t.mu.Unlock()
		t.progressMu.Unlock()
		return
	}

	t.uploaded[idx] = true
	t.uploadedBytes += size
	t.sessionBytes += size
	t.adjust.Adjust(uploadTime)
	snapshot := t.progressLocked()
	t.mu.Unlock()

	t.saveProgress()

	t.events.Emit(EventChunkSuccess, ChunkSuccessEvent{ChunkIndex: idx})
	t.events.Emit(EventProgress, snapshot)
	t.progressMu.Unlock()

	t.maybeMerge()
}

// ============================================================================
// Completion
// ============================================================================

// maybeMerge calls mergeFile once every chunk is accounted for and the
// file hash is known. The merging flag makes the call fire exactly once.
func (t *Task) maybeMerge() {
	t.mu.Lock()
	if t.status != StatusUploading || t.merging || !t.hashDone {
		t.mu.Unlock()
		return
	}
	if len(t.uploaded) < len(t.chunks) {
		t.mu.Unlock()
		return
	}
	t.merging = true
	token := t.token.Token
	fileHash := t.fileHash
	hashes := append([]string(nil), t.chunkHashes...)
	t.mu.Unlock()

	resp, err := t.adapter.MergeFile(context.Background(), protocol.MergeRequest{
		UploadToken: token,
		FileHash:    fileHash,
		ChunkHashes: hashes,
	})
	if err != nil {
		t.fail(fmt.Errorf("merge file: %w", err))
		return
	}
	if !resp.Success {
		t.fail(fmt.Errorf("merge file: server reported failure"))
		return
	}

	t.finishSuccess(resp.FileURL)
}

// finishSuccess drives the task to success exactly once.
func (t *Task) finishSuccess(fileURL string) {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	t.status = StatusSuccess
	t.fileURL = fileURL
	t.mu.Unlock()

	t.hashCancel()
	t.limiter.ClearQueue()
	t.deleteRecord()
	t.events.Emit(EventSuccess, SuccessEvent{FileURL: fileURL})
	close(t.done)
}

// fail drives the task to error exactly once. The progress record is
// preserved to enable manual resume.
func (t *Task) fail(err error) {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	t.status = StatusError
	t.finalErr = err
	t.mu.Unlock()

	t.hashCancel()
	t.limiter.ClearQueue()
	t.events.Emit(EventError, ErrorEvent{Err: err})
	close(t.done)
}

// ============================================================================
// Persistence
// ============================================================================

// saveProgress writes the current record. Store failures degrade to
// logging; the upload itself keeps going.
func (t *Task) saveProgress() {
	if t.store == nil {
		return
	}

	t.mu.Lock()
	indices := make([]int, 0, len(t.uploaded))
	for idx := range t.uploaded {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	record := &progress.Record{
		TaskID:         t.id,
		FileName:       t.file.Name,
		FileSize:       t.file.Size,
		FileType:       t.file.Type,
		LastModified:   t.file.LastModified,
		UploadedChunks: indices,
		UploadToken:    t.token.Encode(),
	}
	saved := t.recordSaved
	t.recordSaved = true
	tokenBlob := record.UploadToken
	t.mu.Unlock()

	ctx := context.Background()
	var err error
	if !saved {
		record.CreatedAt = time.Now().UTC()
		record.UpdatedAt = record.CreatedAt
		err = t.store.SaveRecord(ctx, record)
	} else {
		err = t.store.UpdateRecord(ctx, t.id, progress.Patch{
			UploadedChunks: indices,
			UploadToken:    &tokenBlob,
		})
		if errors.Is(err, progress.ErrRecordNotFound) {
			err = t.store.SaveRecord(ctx, record)
		}
	}
	if err != nil {
		logger.Warn("failed to persist upload progress",
			logger.KeyTaskID, t.id, logger.KeyError, err)
	}
}

func (t *Task) deleteRecord() {
	if t.store == nil {
		return
	}
	if err := t.store.DeleteRecord(context.Background(), t.id); err != nil {
		logger.Warn("failed to delete upload record",
			logger.KeyTaskID, t.id, logger.KeyError, err)
	}
}
