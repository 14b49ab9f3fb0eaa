package commands

import (
	"context"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/SajanLamichhane/chunkflow/internal/bytesize"
	"github.com/SajanLamichhane/chunkflow/internal/cli/output"
	"github.com/SajanLamichhane/chunkflow/pkg/client"
	"github.com/SajanLamichhane/chunkflow/pkg/uploader"
	"github.com/SajanLamichhane/chunkflow/pkg/uploader/plugins"
	"github.com/SajanLamichhane/chunkflow/pkg/uploader/progress"
	progressbadger "github.com/SajanLamichhane/chunkflow/pkg/uploader/progress/badger"
)

var (
	uploadChunkSize   string
	uploadConcurrency int
	uploadRetries     int
	uploadVerifyWait  time.Duration
	uploadNoProgress  bool
	uploadNoResume    bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload FILE...",
	Short: "Upload files to a ChunkFlow server",
	Long: `Upload one or more files to a ChunkFlow server in verified chunks.

Each file is hashed while its chunks upload in parallel. Progress is
persisted locally, so an interrupted upload resumes from the chunks the
server already confirmed; a file the server already holds completes
without transferring any data.

Examples:
  # Upload a single file
  chunkflowctl upload video.mp4

  # Upload several files with bigger chunks and more parallelism
  chunkflowctl upload --chunk-size 8MB --concurrency 6 *.iso

  # One-shot upload without resume state
  chunkflowctl upload --no-resume backup.tar`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadChunkSize, "chunk-size", "", "Preferred chunk size, e.g. 4MB (server may override)")
	uploadCmd.Flags().IntVar(&uploadConcurrency, "concurrency", 0, "Parallel chunk uploads per file (default: server protocol default)")
	uploadCmd.Flags().IntVar(&uploadRetries, "retries", 0, "Retries per chunk after the first attempt (negative disables)")
	uploadCmd.Flags().DurationVar(&uploadVerifyWait, "verify-wait", 0, "Wait for the full-file hash before sending chunks, to catch instant uploads")
	uploadCmd.Flags().BoolVar(&uploadNoProgress, "no-progress", false, "Disable the progress bar")
	uploadCmd.Flags().BoolVar(&uploadNoResume, "no-resume", false, "Do not persist or use resumable upload state")
}

// progressStorePath is the badger database holding resume records,
// shared by the upload and pending commands.
func progressStorePath() string {
	return filepath.Join(getStateDir(), "progress")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	taskOpts := uploader.TaskOptions{
		Concurrency: uploadConcurrency,
		RetryCount:  uploadRetries,
		VerifyWait:  uploadVerifyWait,
	}
	if uploadChunkSize != "" {
		size, err := bytesize.Parse(uploadChunkSize)
		if err != nil {
			return fmt.Errorf("invalid --chunk-size: %w", err)
		}
		taskOpts.ChunkSize = size.Int64()
	}

	c, err := client.New(client.Options{BaseURL: serverURL})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	var store progress.Store
	if !uploadNoResume {
		store = progressbadger.New(progressStorePath())
	}

	manager, err := uploader.NewManager(uploader.ManagerOptions{
		Adapter: c,
		Store:   store,
		Task:    taskOpts,
	})
	if err != nil {
		return fmt.Errorf("failed to create upload manager: %w", err)
	}
	if err := manager.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize upload manager: %w", err)
	}
	defer func() { _ = manager.Close() }()

	stats := plugins.NewStats()
	manager.Use(stats.Plugin())
	if verbose {
		manager.Use(plugins.NewLogger(plugins.LoggerConfig{
			Start:   true,
			Success: true,
			Error:   true,
			Resume:  true,
		}))
	}

	var pending []*progress.Record
	if !uploadNoResume {
		if pending, err = manager.GetUnfinishedTasksInfo(ctx); err != nil {
			// Stale or unreadable resume state should not block uploads.
			pending = nil
		}
	}

	failed := 0
	for _, path := range args {
		fileURL, err := uploadOne(ctx, manager, &pending, path)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		fmt.Printf("%s -> %s%s\n", path, serverURL, fileURL)
	}

	if len(args) > 1 {
		printUploadSummary(stats.Snapshot())
	}

	if ctx.Err() != nil {
		return fmt.Errorf("upload interrupted")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(args))
	}
	return nil
}

// uploadOne uploads a single file, resuming a matching pending record
// when one exists. The matched record is consumed from pending.
func uploadOne(ctx context.Context, manager *uploader.Manager, pending *[]*progress.Record, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file")
	}

	file := uploader.File{
		Name:         filepath.Base(path),
		Size:         info.Size(),
		Type:         mime.TypeByExtension(filepath.Ext(path)),
		LastModified: info.ModTime().UnixMilli(),
		Reader:       f,
	}

	task, resumed, err := startTask(ctx, manager, pending, file)
	if err != nil {
		return "", err
	}

	var bar *progressbar.ProgressBar
	if !uploadNoProgress {
		description := file.Name
		if resumed {
			description = file.Name + " (resumed)"
		}
		bar = newUploadBar(file.Size, description)
		task.On(uploader.EventProgress, func(payload any) {
			if p, ok := payload.(uploader.Progress); ok {
				_ = bar.Set64(p.UploadedBytes)
			}
		})
	}

	if err := task.Start(ctx); err != nil {
		return "", err
	}
	<-task.Done()

	if bar != nil {
		_ = bar.Finish()
	}
	if err := task.Err(); err != nil {
		return "", err
	}
	return task.FileURL(), nil
}

// startTask resumes a pending record matching the file, or creates a
// fresh task. A record matches on name, size, and modification time;
// a resume that fails falls back to a fresh task.
func startTask(ctx context.Context, manager *uploader.Manager, pending *[]*progress.Record, file uploader.File) (*uploader.Task, bool, error) {
	for i, rec := range *pending {
		if rec.FileName != file.Name || rec.FileSize != file.Size || rec.LastModified != file.LastModified {
			continue
		}
		*pending = append((*pending)[:i], (*pending)[i+1:]...)

		task, err := manager.ResumeTask(ctx, rec.TaskID, file, nil)
		if err == nil {
			return task, true, nil
		}
		break
	}

	task, err := manager.CreateTask(file, nil)
	if err != nil {
		return nil, false, err
	}
	return task, false, nil
}

func newUploadBar(size int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printUploadSummary(snap plugins.StatsSnapshot) {
	speed := bytesize.ByteSize(uint64(snap.AverageSpeed)).String() + "/s"

	fmt.Println()
	_ = output.SimpleTable(os.Stdout, [][2]string{
		{"Uploaded", fmt.Sprintf("%d", snap.TasksSucceeded)},
		{"Failed", fmt.Sprintf("%d", snap.TasksFailed+snap.TasksCancelled)},
		{"Bytes sent", bytesize.ByteSize(uint64(snap.UploadedBytes)).String()},
		{"Average speed", speed},
	})
}
