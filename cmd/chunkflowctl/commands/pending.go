package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/SajanLamichhane/chunkflow/internal/bytesize"
	"github.com/SajanLamichhane/chunkflow/internal/cli/output"
	"github.com/SajanLamichhane/chunkflow/internal/cli/timeutil"
	"github.com/SajanLamichhane/chunkflow/pkg/uploader/progress"
	progressbadger "github.com/SajanLamichhane/chunkflow/pkg/uploader/progress/badger"
)

var (
	pendingOutput string
	pendingClear  bool
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List resumable uploads",
	Long: `List uploads with persisted progress that have not completed.

A pending upload resumes automatically the next time the same file is
uploaded. Use --clear to discard all persisted state instead.`,
	RunE: runPending,
}

func init() {
	pendingCmd.Flags().StringVarP(&pendingOutput, "output", "o", "table", "Output format (table, json, yaml)")
	pendingCmd.Flags().BoolVar(&pendingClear, "clear", false, "Discard all persisted upload state")
}

func runPending(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(pendingOutput)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store := progressbadger.New(progressStorePath())
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to open upload state: %w", err)
	}
	defer func() { _ = store.Close() }()

	if pendingClear {
		if err := store.ClearAll(ctx); err != nil {
			return fmt.Errorf("failed to clear upload state: %w", err)
		}
		fmt.Println("Upload state cleared.")
		return nil
	}

	records, err := store.GetAllRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to read upload state: %w", err)
	}

	if len(records) == 0 && format == output.FormatTable {
		fmt.Println("No pending uploads.")
		return nil
	}

	printer := output.NewPrinter(os.Stdout, format)
	if format != output.FormatTable {
		return printer.Print(records)
	}
	return printer.Print(pendingTable(records))
}

func pendingTable(records []*progress.Record) *output.TableData {
	table := output.NewTableData("TASK ID", "FILE", "SIZE", "CHUNKS DONE", "UPDATED")
	for _, rec := range records {
		table.AddRow(
			rec.TaskID,
			rec.FileName,
			bytesize.ByteSize(uint64(rec.FileSize)).String(),
			strconv.Itoa(len(rec.UploadedChunks)),
			timeutil.Ago(rec.UpdatedAt),
		)
	}
	return table
}
