package uploader

import (
	"github.com/SajanLamichhane/chunkflow/internal/logger"
)

// Plugin is a bundle of optional lifecycle hooks. Any field may be nil.
// Hooks run synchronously in registration order; a panicking hook is
// recovered and logged so it never disturbs the upload or other plugins.
// Duplicate plugin names are permitted.
type Plugin struct {
	Name string

	// Install runs once when the plugin is registered.
	Install func(m *Manager)

	OnTaskCreated  func(t *Task)
	OnTaskStart    func(t *Task)
	OnTaskProgress func(t *Task, p Progress)
	OnTaskSuccess  func(t *Task, fileURL string)
	OnTaskError    func(t *Task, err error)
	OnTaskPause    func(t *Task)
	OnTaskResume   func(t *Task)
	OnTaskCancel   func(t *Task)
}

// callHook isolates plugin panics from the engine.
func callHook(pluginName, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("plugin hook panicked",
				"plugin", pluginName, "hook", hook, logger.KeyError, r)
		}
	}()
	fn()
}
