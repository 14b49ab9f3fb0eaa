// Package chunker adapts upload chunk sizes to observed network
// performance. Each upload task owns one Adjuster; after every chunk
// completes, the task feeds the observed upload time back and uses the
// returned size for future chunk plans.
package chunker

import (
	"errors"
	"fmt"
	"time"
)

// DefaultTargetTime is the upload duration the adjuster steers toward.
const DefaultTargetTime = 3 * time.Second

// Construction errors.
var (
	ErrMinAboveMax        = errors.New("minSize greater than maxSize")
	ErrInitialOutOfRange  = errors.New("initialSize outside [minSize, maxSize]")
	ErrInvalidTargetTime  = errors.New("targetTime must be positive")
)

// Config holds the adjuster bounds and target.
type Config struct {
	// InitialSize is the starting chunk size in bytes.
	InitialSize int64

	// MinSize and MaxSize bound every size the adjuster will ever return.
	MinSize int64
	MaxSize int64

	// TargetTime is the per-chunk upload duration to steer toward.
	// Defaults to DefaultTargetTime when zero.
	TargetTime time.Duration
}

// Adjuster chooses the next chunk size from observed per-chunk upload
// times. Uploads finishing in under half the target double the size;
// uploads taking over 1.5x the target halve it; anything in between
// leaves it unchanged. The current size always stays within
// [MinSize, MaxSize].
//
// An Adjuster is stateful and not safe for concurrent use; a task owns
// exactly one instance.
type Adjuster struct {
	config  Config
	current int64
}

// New validates the configuration and returns an Adjuster starting at
// InitialSize.
func New(config Config) (*Adjuster, error) {
	if config.TargetTime == 0 {
		config.TargetTime = DefaultTargetTime
	}
	if config.TargetTime < 0 {
		return nil, ErrInvalidTargetTime
	}
	if config.MinSize > config.MaxSize {
		return nil, fmt.Errorf("%w: min=%d max=%d", ErrMinAboveMax, config.MinSize, config.MaxSize)
	}
	if config.InitialSize < config.MinSize || config.InitialSize > config.MaxSize {
		return nil, fmt.Errorf("%w: initial=%d range=[%d, %d]",
			ErrInitialOutOfRange, config.InitialSize, config.MinSize, config.MaxSize)
	}

	return &Adjuster{
		config:  config,
		current: config.InitialSize,
	}, nil
}

// Adjust feeds back the observed upload time of the last chunk and
// returns the size to use for the next one.
func (a *Adjuster) Adjust(uploadTime time.Duration) int64 {
	switch {
	case uploadTime < a.config.TargetTime/2:
		a.current = min(a.current*2, a.config.MaxSize)
	case uploadTime > a.config.TargetTime+a.config.TargetTime/2:
		a.current = max(a.current/2, a.config.MinSize)
	}
	return a.current
}

// Current returns the current chunk size.
func (a *Adjuster) Current() int64 {
	return a.current
}

// Reset restores the initial chunk size.
func (a *Adjuster) Reset() {
	a.current = a.config.InitialSize
}
