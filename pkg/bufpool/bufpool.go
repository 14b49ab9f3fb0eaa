// Package bufpool provides a tiered buffer pool for chunk I/O.
//
// Chunk uploads read file slices into short-lived buffers, up to the
// protocol's chunk size ceiling, many at a time. Pooling those buffers
// keeps concurrent uploads from churning the garbage collector.
//
// Buffers larger than the largest tier are allocated directly and not
// pooled, so oversized buffers never linger in memory.
package bufpool

import (
	"sync"
)

// Default size classes. Small covers control payloads and tail chunks,
// medium covers the default chunk size, large covers the chunk size
// ceiling.
const (
	DefaultSmallSize  = 64 << 10
	DefaultMediumSize = 1 << 20
	DefaultLargeSize  = 10 << 20
)

// Pool manages byte slices organized by size class. Safe for concurrent
// use.
type Pool struct {
	small      sync.Pool
	medium     sync.Pool
	large      sync.Pool
	smallSize  int
	mediumSize int
	largeSize  int
}

// Config overrides the pool's size classes. Zero values keep the
// defaults.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// NewPool creates a buffer pool. A nil config uses the default size
// classes.
func NewPool(cfg *Config) *Pool {
	p := &Pool{
		smallSize:  DefaultSmallSize,
		mediumSize: DefaultMediumSize,
		largeSize:  DefaultLargeSize,
	}
	if cfg != nil {
		if cfg.SmallSize > 0 {
			p.smallSize = cfg.SmallSize
		}
		if cfg.MediumSize > 0 {
			p.mediumSize = cfg.MediumSize
		}
		if cfg.LargeSize > 0 {
			p.largeSize = cfg.LargeSize
		}
	}

	p.small.New = func() any {
		buf := make([]byte, p.smallSize)
		return &buf
	}
	p.medium.New = func() any {
		buf := make([]byte, p.mediumSize)
		return &buf
	}
	p.large.New = func() any {
		buf := make([]byte, p.largeSize)
		return &buf
	}
	return p
}

// Get returns a byte slice of exactly the requested length, backed by a
// pooled buffer whose capacity may be larger. The caller must Put the
// slice back when done. Requests above the large tier are allocated
// directly and never pooled.
func (p *Pool) Get(size int) []byte {
	var bufPtr *[]byte
	switch {
	case size <= p.smallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= p.mediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= p.largeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// Put returns a buffer obtained from Get to its pool. The buffer must
// not be used after Put. Buffers whose capacity matches no tier are left
// for the garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}

	switch cap(buf) {
	case p.smallSize:
		full := buf[:cap(buf)]
		p.small.Put(&full)
	case p.mediumSize:
		full := buf[:cap(buf)]
		p.medium.Put(&full)
	case p.largeSize:
		full := buf[:cap(buf)]
		p.large.Put(&full)
	}
}

// globalPool backs the package-level Get and Put.
var globalPool = NewPool(nil)

// Get returns a byte slice of at least the requested size from the
// shared pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns a buffer obtained from Get to the shared pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}
