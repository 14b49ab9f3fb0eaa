package digest

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestSumDeterministic(t *testing.T) {
	data := []byte("hello chunkflow")

	d1 := Sum(data)
	d2 := Sum(data)
	if d1 != d2 {
		t.Errorf("same bytes produced different digests: %s vs %s", d1, d2)
	}

	// A copy through a different view must hash identically.
	view := make([]byte, len(data))
	copy(view, data)
	if Sum(view) != d1 {
		t.Error("copied view produced a different digest")
	}

	if len(d1) != 32 || d1 != strings.ToLower(d1) {
		t.Errorf("digest %q is not 32 lowercase hex characters", d1)
	}
}

func TestSumBitFlip(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 1024)
	base := Sum(data)

	for _, i := range []int{0, 511, 1023} {
		flipped := bytes.Clone(data)
		flipped[i] ^= 0x01
		if Sum(flipped) == base {
			t.Errorf("flipping byte %d did not change the digest", i)
		}
	}
}

func TestSumEmpty(t *testing.T) {
	if got := Sum(nil); got != Empty {
		t.Errorf("Sum(nil) = %s, want %s", got, Empty)
	}
}

func TestFileMatchesSum(t *testing.T) {
	data := bytes.Repeat([]byte("chunkflow"), 500_000) // ~4.5MB, spans windows

	got, err := File(context.Background(), bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	if got != Sum(data) {
		t.Errorf("streaming digest %s != one-shot digest %s", got, Sum(data))
	}
}

func TestFileEmpty(t *testing.T) {
	got, err := File(context.Background(), bytes.NewReader(nil), 0, nil)
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	if got != Empty {
		t.Errorf("File(empty) = %s, want %s", got, Empty)
	}
}

func TestFileProgress(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 5*1024*1024)

	var reported []int
	_, err := File(context.Background(), bytes.NewReader(data), int64(len(data)), func(pct int) {
		reported = append(reported, pct)
	})
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}

	if len(reported) == 0 {
		t.Fatal("no progress reported")
	}
	last := -1
	for _, pct := range reported {
		if pct < 0 || pct > 100 {
			t.Errorf("progress %d outside 0-100", pct)
		}
		if pct < last {
			t.Errorf("progress went backwards: %d after %d", pct, last)
		}
		last = pct
	}
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}

func TestFileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := File(ctx, bytes.NewReader([]byte("data")), 4, nil)
	if err == nil {
		t.Error("File should fail on a cancelled context")
	}
}

func TestSliceView(t *testing.T) {
	data := []byte("0123456789")
	r := bytes.NewReader(data)

	sec := Slice(r, 2, 7)
	got := make([]byte, 5)
	n, err := sec.Read(got)
	if err != nil || n != 5 {
		t.Fatalf("Slice read = %d, %v", n, err)
	}
	if string(got) != "23456" {
		t.Errorf("Slice read %q, want %q", got, "23456")
	}

	// Digest of the slice view equals digest of the underlying range.
	if Sum(got) != Sum(data[2:7]) {
		t.Error("slice view digest differs from underlying bytes")
	}
}
