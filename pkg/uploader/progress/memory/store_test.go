package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SajanLamichhane/chunkflow/pkg/uploader/progress"
)

func newRecord(taskID string) *progress.Record {
	now := time.Now().UTC()
	return &progress.Record{
		TaskID:         taskID,
		FileName:       "video.mp4",
		FileSize:       1 << 20,
		FileType:       "video/mp4",
		LastModified:   1700000000000,
		UploadedChunks: []int{0, 1},
		UploadToken:    "token-abc",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	record := newRecord("task-1")
	if err := s.SaveRecord(ctx, record); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	got, err := s.GetRecord(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.FileName != record.FileName || got.FileSize != record.FileSize ||
		got.UploadToken != record.UploadToken || len(got.UploadedChunks) != 2 {
		t.Errorf("round trip mismatch: got %+v", got)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	s := New()
	defer s.Close()

	_, err := s.GetRecord(context.Background(), "nope")
	if !errors.Is(err, progress.ErrRecordNotFound) {
		t.Errorf("GetRecord error = %v, want ErrRecordNotFound", err)
	}
}

func TestUpdatePreservesUnpatchedFields(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	record := newRecord("task-1")
	if err := s.SaveRecord(ctx, record); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	before, _ := s.GetRecord(ctx, "task-1")

	if err := s.UpdateRecord(ctx, "task-1", progress.Patch{
		UploadedChunks: []int{0, 1, 2},
	}); err != nil {
		t.Fatalf("UpdateRecord failed: %v", err)
	}

	got, err := s.GetRecord(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}

	if len(got.UploadedChunks) != 3 {
		t.Errorf("UploadedChunks = %v, want 3 entries", got.UploadedChunks)
	}
	if got.UploadToken != record.UploadToken || got.FileName != record.FileName {
		t.Error("unpatched fields were not preserved")
	}
	if got.TaskID != "task-1" {
		t.Error("TaskID must be immutable under update")
	}
	if got.UpdatedAt.Before(before.UpdatedAt) {
		t.Error("UpdatedAt must be non-decreasing across updates")
	}
}

func TestEmptyPatchStampsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	record := newRecord("task-1")
	if err := s.SaveRecord(ctx, record); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	if err := s.UpdateRecord(ctx, "task-1", progress.Patch{}); err != nil {
		t.Fatalf("UpdateRecord failed: %v", err)
	}

	got, _ := s.GetRecord(ctx, "task-1")
	if got.UpdatedAt.Before(record.UpdatedAt) {
		t.Error("UpdatedAt should be stamped even by an empty patch")
	}
	if got.FileName != record.FileName || got.UploadToken != record.UploadToken {
		t.Error("empty patch must not change other fields")
	}
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveRecord(ctx, newRecord(id)); err != nil {
			t.Fatalf("SaveRecord(%s) failed: %v", id, err)
		}
	}

	if err := s.DeleteRecord(ctx, "a"); err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}
	// Deleting a missing record is not an error.
	if err := s.DeleteRecord(ctx, "a"); err != nil {
		t.Errorf("deleting a missing record should be a no-op, got %v", err)
	}

	records, err := s.GetAllRecords(ctx)
	if err != nil {
		t.Fatalf("GetAllRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	records, _ = s.GetAllRecords(ctx)
	if len(records) != 0 {
		t.Errorf("got %d records after ClearAll, want 0", len(records))
	}
}

func TestClosedStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Close()

	if err := s.SaveRecord(ctx, newRecord("x")); !errors.Is(err, progress.ErrStorageUnavailable) {
		t.Errorf("SaveRecord on closed store = %v, want ErrStorageUnavailable", err)
	}
	if _, err := s.GetRecord(ctx, "x"); !errors.Is(err, progress.ErrStorageUnavailable) {
		t.Errorf("GetRecord on closed store = %v, want ErrStorageUnavailable", err)
	}
}
