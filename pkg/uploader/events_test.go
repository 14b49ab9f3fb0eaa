package uploader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsHandlersRunInRegistrationOrder(t *testing.T) {
	e := NewEvents()

	var order []int
	e.On(EventProgress, func(any) { order = append(order, 1) })
	e.On(EventProgress, func(any) { order = append(order, 2) })
	e.On(EventProgress, func(any) { order = append(order, 3) })

	e.Emit(EventProgress, nil)

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEventsDeliversPayload(t *testing.T) {
	e := NewEvents()

	var got Progress
	e.On(EventProgress, func(payload any) {
		p, ok := payload.(Progress)
		require.True(t, ok)
		got = p
	})

	e.Emit(EventProgress, Progress{UploadedBytes: 42, TotalBytes: 100})

	assert.Equal(t, int64(42), got.UploadedBytes)
	assert.Equal(t, int64(100), got.TotalBytes)
}

func TestEventsWildcardSeesEveryEvent(t *testing.T) {
	e := NewEvents()

	var events []string
	e.On(EventWildcard, func(payload any) {
		events = append(events, payload.(string))
	})

	e.Emit(EventStart, "start")
	e.Emit(EventSuccess, "success")

	assert.Equal(t, []string{"start", "success"}, events)
}

func TestEventsWildcardRunsAfterSpecificHandlers(t *testing.T) {
	e := NewEvents()

	var order []string
	e.On(EventWildcard, func(any) { order = append(order, "wildcard") })
	e.On(EventStart, func(any) { order = append(order, "specific") })

	e.Emit(EventStart, nil)

	assert.Equal(t, []string{"specific", "wildcard"}, order)
}

func TestEventsPanicIsolation(t *testing.T) {
	e := NewEvents()

	var called bool
	e.On(EventError, func(any) { panic("handler bug") })
	e.On(EventError, func(any) { called = true })

	require.NotPanics(t, func() { e.Emit(EventError, nil) })
	assert.True(t, called, "handler after the panicking one must still run")
}

func TestEventsOffRemovesHandler(t *testing.T) {
	e := NewEvents()

	var first, second int
	id := e.On(EventProgress, func(any) { first++ })
	e.On(EventProgress, func(any) { second++ })

	e.Emit(EventProgress, nil)
	e.Off(EventProgress, id)
	e.Emit(EventProgress, nil)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)

	// Unknown IDs are ignored.
	e.Off(EventProgress, HandlerID(999))
	e.Off("no-such-event", id)
}

func TestEventsEmitWithoutHandlers(t *testing.T) {
	e := NewEvents()
	require.NotPanics(t, func() { e.Emit(EventChunkSuccess, ChunkSuccessEvent{ChunkIndex: 1}) })
}
