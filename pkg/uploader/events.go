package uploader

import (
	"sync"
	"time"

	"github.com/SajanLamichhane/chunkflow/internal/logger"
)

// Lifecycle event names emitted by tasks.
const (
	EventStart        = "start"
	EventProgress     = "progress"
	EventChunkSuccess = "chunkSuccess"
	EventChunkError   = "chunkError"
	EventHashProgress = "hashProgress"
	EventHashComplete = "hashComplete"
	EventSuccess      = "success"
	EventError        = "error"
	EventPause        = "pause"
	EventResume       = "resume"
	EventCancel       = "cancel"

	// EventWildcard subscribes a handler to every event.
	EventWildcard = "*"
)

// Progress is the payload of EventProgress and the result of
// Task.GetProgress.
type Progress struct {
	UploadedBytes  int64
	TotalBytes     int64
	Percentage     float64
	Speed          float64 // bytes per second
	RemainingTime  time.Duration
	UploadedChunks int
	TotalChunks    int
}

// ChunkSuccessEvent is the payload of EventChunkSuccess.
type ChunkSuccessEvent struct {
	ChunkIndex int
}

// ChunkErrorEvent is the payload of EventChunkError.
type ChunkErrorEvent struct {
	ChunkIndex int
	Err        error
}

// HashCompleteEvent is the payload of EventHashComplete.
type HashCompleteEvent struct {
	Hash string
}

// SuccessEvent is the payload of EventSuccess.
type SuccessEvent struct {
	FileURL string
}

// ErrorEvent is the payload of EventError.
type ErrorEvent struct {
	Err error
}

// Handler receives an event payload.
type Handler func(payload any)

// HandlerID identifies a registered handler for removal.
type HandlerID uint64

type subscription struct {
	id HandlerID
	fn Handler
}

// Events is a typed topic bus. Handlers run synchronously in
// registration order; a panicking handler is recovered and logged so it
// never prevents the next handler from running. There is no backpressure
// and no replay.
type Events struct {
	mu     sync.Mutex
	nextID HandlerID
	subs   map[string][]subscription
}

// NewEvents creates an empty event bus.
func NewEvents() *Events {
	return &Events{subs: make(map[string][]subscription)}
}

// On registers a handler for an event (or EventWildcard for all events)
// and returns an ID usable with Off.
func (e *Events) On(event string, fn Handler) HandlerID {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.subs[event] = append(e.subs[event], subscription{id: id, fn: fn})
	return id
}

// Off removes a previously registered handler. Unknown IDs are ignored.
func (e *Events) Off(event string, id HandlerID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subs[event]
	for i, s := range subs {
		if s.id == id {
			e.subs[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit calls every handler registered for the event, then every wildcard
// handler, synchronously in registration order.
func (e *Events) Emit(event string, payload any) {
	e.mu.Lock()
	handlers := make([]subscription, 0, len(e.subs[event])+len(e.subs[EventWildcard]))
	handlers = append(handlers, e.subs[event]...)
	if event != EventWildcard {
		handlers = append(handlers, e.subs[EventWildcard]...)
	}
	e.mu.Unlock()

	for _, s := range handlers {
		safeCall(event, s.fn, payload)
	}
}

// safeCall isolates handler panics from the emitter and from other
// handlers.
func safeCall(event string, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("event handler panicked", "event", event, logger.KeyError, r)
		}
	}()
	fn(payload)
}
