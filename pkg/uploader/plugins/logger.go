// Package plugins provides ready-made upload manager plugins: structured
// lifecycle logging and aggregate statistics.
package plugins

import (
	"github.com/SajanLamichhane/chunkflow/internal/logger"
	"github.com/SajanLamichhane/chunkflow/pkg/uploader"
)

// LoggerConfig selects which lifecycle events get logged. The zero value
// logs everything except progress, which is high frequency.
type LoggerConfig struct {
	Start    bool
	Progress bool
	Success  bool
	Error    bool
	Pause    bool
	Resume   bool
	Cancel   bool
}

// DefaultLoggerConfig logs every lifecycle transition but not progress.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Start:   true,
		Success: true,
		Error:   true,
		Pause:   true,
		Resume:  true,
		Cancel:  true,
	}
}

// NewLogger returns a plugin that logs task lifecycle events through the
// global structured logger.
func NewLogger(cfg LoggerConfig) uploader.Plugin {
	return uploader.Plugin{
		Name: "logger",
		OnTaskCreated: func(t *uploader.Task) {
			logger.Debug("task created",
				logger.KeyTaskID, t.ID(),
				"fileName", t.File().Name,
				"fileSize", t.File().Size)
		},
		OnTaskStart: func(t *uploader.Task) {
			if !cfg.Start {
				return
			}
			logger.Info("upload started",
				logger.KeyTaskID, t.ID(),
				"fileName", t.File().Name,
				"fileSize", t.File().Size)
		},
		OnTaskProgress: func(t *uploader.Task, p uploader.Progress) {
			if !cfg.Progress {
				return
			}
			logger.Debug("upload progress",
				logger.KeyTaskID, t.ID(),
				logger.KeyUploadedBytes, p.UploadedBytes,
				"percentage", p.Percentage,
				logger.KeySpeed, p.Speed)
		},
		OnTaskSuccess: func(t *uploader.Task, fileURL string) {
			if !cfg.Success {
				return
			}
			logger.Info("upload succeeded",
				logger.KeyTaskID, t.ID(),
				"fileName", t.File().Name,
				"fileUrl", fileURL)
		},
		OnTaskError: func(t *uploader.Task, err error) {
			if !cfg.Error {
				return
			}
			logger.Error("upload failed",
				logger.KeyTaskID, t.ID(),
				"fileName", t.File().Name,
				logger.KeyError, err)
		},
		OnTaskPause: func(t *uploader.Task) {
			if !cfg.Pause {
				return
			}
			logger.Info("upload paused", logger.KeyTaskID, t.ID())
		},
		OnTaskResume: func(t *uploader.Task) {
			if !cfg.Resume {
				return
			}
			logger.Info("upload resumed", logger.KeyTaskID, t.ID())
		},
		OnTaskCancel: func(t *uploader.Task) {
			if !cfg.Cancel {
				return
			}
			logger.Info("upload cancelled", logger.KeyTaskID, t.ID())
		},
	}
}
