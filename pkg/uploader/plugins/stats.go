package plugins

import (
	"sync"
	"time"

	"github.com/SajanLamichhane/chunkflow/pkg/uploader"
)

// StatsSnapshot is a point-in-time copy of the aggregate upload
// statistics collected by the stats plugin.
type StatsSnapshot struct {
	TasksStarted   int
	TasksSucceeded int
	TasksFailed    int
	TasksCancelled int

	// UploadedBytes is the sum of the last observed progress of every
	// task, so retried or cancelled bytes are not double counted.
	UploadedBytes int64

	// AverageSpeed is UploadedBytes over the elapsed wall time since the
	// first task started, in bytes per second. Zero before any start.
	AverageSpeed float64

	// SuccessRate is succeeded over (succeeded + failed + cancelled),
	// in [0, 1]. Zero before any task finishes.
	SuccessRate float64
}

// Stats aggregates lifecycle outcomes across all tasks of a manager.
// Safe for concurrent use; events may arrive out of order across tasks.
type Stats struct {
	mu        sync.Mutex
	started   int
	succeeded int
	failed    int
	cancelled int
	bytes     map[string]int64 // last observed uploaded bytes per task
	firstSeen time.Time
	now       func() time.Time
}

// NewStats creates a stats collector. Register its Plugin on a manager.
func NewStats() *Stats {
	return &Stats{
		bytes: make(map[string]int64),
		now:   time.Now,
	}
}

// Plugin returns the manager plugin feeding this collector.
func (s *Stats) Plugin() uploader.Plugin {
	return uploader.Plugin{
		Name: "stats",
		OnTaskStart: func(t *uploader.Task) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.started++
			if s.firstSeen.IsZero() {
				s.firstSeen = s.now()
			}
		},
		OnTaskProgress: func(t *uploader.Task, p uploader.Progress) {
			s.mu.Lock()
			defer s.mu.Unlock()
			// Progress per task is monotonic; keep the max in case a
			// stale event slips through.
			if p.UploadedBytes > s.bytes[t.ID()] {
				s.bytes[t.ID()] = p.UploadedBytes
			}
		},
		OnTaskSuccess: func(t *uploader.Task, fileURL string) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.succeeded++
			// Instant uploads finish without byte progress; count the
			// full size as transferred work avoided, not moved.
		},
		OnTaskError: func(t *uploader.Task, err error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.failed++
		},
		OnTaskCancel: func(t *uploader.Task) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.cancelled++
		},
	}
}

// Snapshot returns a copy of the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		TasksStarted:   s.started,
		TasksSucceeded: s.succeeded,
		TasksFailed:    s.failed,
		TasksCancelled: s.cancelled,
	}
	for _, b := range s.bytes {
		snap.UploadedBytes += b
	}
	if !s.firstSeen.IsZero() {
		if elapsed := s.now().Sub(s.firstSeen).Seconds(); elapsed > 0 {
			snap.AverageSpeed = float64(snap.UploadedBytes) / elapsed
		}
	}
	if finished := s.succeeded + s.failed + s.cancelled; finished > 0 {
		snap.SuccessRate = float64(s.succeeded) / float64(finished)
	}
	return snap
}
