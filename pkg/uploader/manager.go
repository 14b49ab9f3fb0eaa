package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SajanLamichhane/chunkflow/internal/logger"
	"github.com/SajanLamichhane/chunkflow/pkg/uploader/progress"
	"github.com/SajanLamichhane/chunkflow/pkg/uploader/progress/memory"
)

// Statistics counts tasks by status.
type Statistics struct {
	Total     int
	Idle      int
	Uploading int
	Paused    int
	Success   int
	Error     int
	Cancelled int
}

// ManagerOptions configures an upload manager.
type ManagerOptions struct {
	// Adapter is the protocol capability shared by all tasks. Required.
	Adapter RequestAdapter

	// Store persists progress records. When nil, or when Init fails
	// with ErrStorageUnavailable, the manager degrades to an in-memory
	// store and uploads proceed without crash resume.
	Store progress.Store

	// Task holds the default per-task options.
	Task TaskOptions
}

// Manager owns the task registry and shared infrastructure: the
// progress store, the request adapter, default task options, and the
// registered plugins. It holds no file bytes.
type Manager struct {
	mu      sync.Mutex
	opts    ManagerOptions
	store   progress.Store
	tasks   map[string]*Task
	order   []string // insertion order of task IDs
	plugins []Plugin
	closed  bool
}

// NewManager creates a manager. Call Init before creating tasks.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("%w: nil request adapter", ErrInvalidArgument)
	}
	return &Manager{
		opts:  opts,
		tasks: make(map[string]*Task),
	}, nil
}

// Init prepares the progress store, degrading to in-memory operation
// when the persistent store is unavailable.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	store := m.opts.Store
	if store == nil {
		m.store = memory.New()
		return nil
	}

	if err := store.Init(ctx); err != nil {
		if errors.Is(err, progress.ErrStorageUnavailable) {
			logger.Warn("progress store unavailable, degrading to in-memory", logger.KeyError, err)
			m.store = memory.New()
			return nil
		}
		return fmt.Errorf("init progress store: %w", err)
	}

	m.store = store
	return nil
}

// Use registers a plugin. Hooks are invoked in registration order;
// duplicate names are permitted.
func (m *Manager) Use(p Plugin) {
	m.mu.Lock()
	m.plugins = append(m.plugins, p)
	m.mu.Unlock()

	if p.Install != nil {
		callHook(p.Name, "install", func() { p.Install(m) })
	}
}

// CreateTask constructs and registers a task for the file. The task is
// idle; call its Start to begin uploading.
func (m *Manager) CreateTask(file File, opts *TaskOptions) (*Task, error) {
	taskOpts := m.taskOptions(opts)
	return m.register(file, taskOpts)
}

func (m *Manager) taskOptions(override *TaskOptions) TaskOptions {
	if override != nil {
		return *override
	}
	return m.opts.Task
}

func (m *Manager) register(file File, taskOpts TaskOptions) (*Task, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: manager closed", ErrInvalidArgument)
	}
	store := m.store
	plugins := append([]Plugin(nil), m.plugins...)
	m.mu.Unlock()

	task, err := NewTask(file, m.opts.Adapter, store, taskOpts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.tasks[task.ID()] = task
	m.order = append(m.order, task.ID())
	m.mu.Unlock()

	m.wireEvents(task)

	for _, p := range plugins {
		if p.OnTaskCreated != nil {
			p := p
			callHook(p.Name, "onTaskCreated", func() { p.OnTaskCreated(task) })
		}
	}
	return task, nil
}

// wireEvents fans task lifecycle events out to the registered plugins.
func (m *Manager) wireEvents(task *Task) {
	dispatch := func(hook string, fn func(Plugin)) {
		m.mu.Lock()
		plugins := append([]Plugin(nil), m.plugins...)
		m.mu.Unlock()
		for _, p := range plugins {
			p := p
			callHook(p.Name, hook, func() { fn(p) })
		}
	}

	task.On(EventStart, func(any) {
		dispatch("onTaskStart", func(p Plugin) {
			if p.OnTaskStart != nil {
				p.OnTaskStart(task)
			}
		})
	})
	task.On(EventProgress, func(payload any) {
		prog, _ := payload.(Progress)
		dispatch("onTaskProgress", func(p Plugin) {
			if p.OnTaskProgress != nil {
				p.OnTaskProgress(task, prog)
			}
		})
	})
	task.On(EventSuccess, func(payload any) {
		ev, _ := payload.(SuccessEvent)
		dispatch("onTaskSuccess", func(p Plugin) {
			if p.OnTaskSuccess != nil {
				p.OnTaskSuccess(task, ev.FileURL)
			}
		})
	})
	task.On(EventError, func(payload any) {
		ev, _ := payload.(ErrorEvent)
		dispatch("onTaskError", func(p Plugin) {
			if p.OnTaskError != nil {
				p.OnTaskError(task, ev.Err)
			}
		})
	})
	task.On(EventPause, func(any) {
		dispatch("onTaskPause", func(p Plugin) {
			if p.OnTaskPause != nil {
				p.OnTaskPause(task)
			}
		})
	})
	task.On(EventResume, func(any) {
		dispatch("onTaskResume", func(p Plugin) {
			if p.OnTaskResume != nil {
				p.OnTaskResume(task)
			}
		})
	})
	task.On(EventCancel, func(any) {
		dispatch("onTaskCancel", func(p Plugin) {
			if p.OnTaskCancel != nil {
				p.OnTaskCancel(task)
			}
		})
	})
}

// GetTask returns the task with the given ID.
func (m *Manager) GetTask(taskID string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, nil
}

// GetAllTasks returns every registered task in insertion order.
func (m *Manager) GetAllTasks() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]*Task, 0, len(m.order))
	for _, id := range m.order {
		if task, ok := m.tasks[id]; ok {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// DeleteTask removes the task from the registry, cancelling it first if
// active. Progress-record cleanup is best effort.
func (m *Manager) DeleteTask(ctx context.Context, taskID string) error {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	store := m.store
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	if status := task.GetStatus(); status == StatusUploading || status == StatusPaused {
		if err := task.Cancel(); err != nil {
			logger.Warn("cancel during delete failed", logger.KeyTaskID, taskID, logger.KeyError, err)
		}
	}

	if store != nil {
		if err := store.DeleteRecord(ctx, taskID); err != nil {
			logger.Warn("record cleanup failed", logger.KeyTaskID, taskID, logger.KeyError, err)
		}
	}

	m.mu.Lock()
	delete(m.tasks, taskID)
	for i, id := range m.order {
		if id == taskID {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	return nil
}

// PauseAll pauses every uploading task.
func (m *Manager) PauseAll() {
	for _, task := range m.GetAllTasks() {
		if task.GetStatus() == StatusUploading {
			if err := task.Pause(); err != nil {
				logger.Warn("pause failed", logger.KeyTaskID, task.ID(), logger.KeyError, err)
			}
		}
	}
}

// ResumeAll resumes every paused task.
func (m *Manager) ResumeAll(ctx context.Context) {
	for _, task := range m.GetAllTasks() {
		if task.GetStatus() == StatusPaused {
			if err := task.Resume(ctx); err != nil {
				logger.Warn("resume failed", logger.KeyTaskID, task.ID(), logger.KeyError, err)
			}
		}
	}
}

// CancelAll cancels every active task.
func (m *Manager) CancelAll() {
	for _, task := range m.GetAllTasks() {
		if status := task.GetStatus(); status == StatusUploading || status == StatusPaused {
			if err := task.Cancel(); err != nil {
				logger.Warn("cancel failed", logger.KeyTaskID, task.ID(), logger.KeyError, err)
			}
		}
	}
}

// ClearCompletedTasks drops every terminal task from the registry and
// removes their progress records best effort.
func (m *Manager) ClearCompletedTasks(ctx context.Context) {
	for _, task := range m.GetAllTasks() {
		if task.GetStatus().Terminal() {
			if err := m.DeleteTask(ctx, task.ID()); err != nil {
				logger.Warn("clear completed failed", logger.KeyTaskID, task.ID(), logger.KeyError, err)
			}
		}
	}
}

// GetStatistics counts registered tasks by status.
func (m *Manager) GetStatistics() Statistics {
	stats := Statistics{}
	for _, task := range m.GetAllTasks() {
		stats.Total++
		switch task.GetStatus() {
		case StatusIdle:
			stats.Idle++
		case StatusUploading, StatusHashing:
			stats.Uploading++
		case StatusPaused:
			stats.Paused++
		case StatusSuccess:
			stats.Success++
		case StatusError:
			stats.Error++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// GetUnfinishedTasksInfo returns the persisted records of interrupted
// uploads. The original file bytes cannot survive restart; the caller
// must collect a re-selected file and pass it to ResumeTask.
func (m *Manager) GetUnfinishedTasksInfo(ctx context.Context) ([]*progress.Record, error) {
	m.mu.Lock()
	store := m.store
	m.mu.Unlock()

	if store == nil {
		return nil, nil
	}
	return store.GetAllRecords(ctx)
}

// ResumeTask validates that the re-selected file matches the persisted
// record (name, size and type; lastModified is informational only) and
// constructs a new task with the preserved ID, token and uploaded-chunk
// set. The prior record is deleted; a fresh one is written on the next
// chunk success.
func (m *Manager) ResumeTask(ctx context.Context, taskID string, file File, opts *TaskOptions) (*Task, error) {
	m.mu.Lock()
	store := m.store
	m.mu.Unlock()
	if store == nil {
		return nil, fmt.Errorf("%w: no progress store", ErrInvalidArgument)
	}

	record, err := store.GetRecord(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}

	if file.Name != record.FileName {
		return nil, fmt.Errorf("File name mismatch: expected %s, got %s", record.FileName, file.Name)
	}
	if file.Size != record.FileSize {
		return nil, fmt.Errorf("File size mismatch: expected %d, got %d", record.FileSize, file.Size)
	}
	if file.Type != record.FileType {
		return nil, fmt.Errorf("File type mismatch: expected %s, got %s", record.FileType, file.Type)
	}

	token, err := DecodeToken(record.UploadToken)
	if err != nil {
		return nil, fmt.Errorf("decode persisted token: %w", err)
	}

	taskOpts := m.taskOptions(opts)
	taskOpts.Resume = &ResumeState{
		TaskID:         taskID,
		Token:          token,
		UploadedChunks: append([]int(nil), record.UploadedChunks...),
	}

	task, err := m.register(file, taskOpts)
	if err != nil {
		return nil, err
	}

	if err := store.DeleteRecord(ctx, taskID); err != nil {
		logger.Warn("failed to delete prior record", logger.KeyTaskID, taskID, logger.KeyError, err)
	}
	return task, nil
}

// Close cancels all active tasks, closes the store, and clears the
// registry.
func (m *Manager) Close() error {
	m.CancelAll()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.tasks = make(map[string]*Task)
	m.order = nil

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("close progress store: %w", err)
		}
	}
	return nil
}
