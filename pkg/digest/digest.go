// Package digest provides content hashing and byte-range slicing for the
// upload engine and the chunk store.
//
// All content addresses in ChunkFlow are 32-character lowercase hex MD5
// digests. The same digest function is used for whole files and for
// individual chunks; the server recomputes chunk digests on receipt to
// verify integrity.
package digest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
)

// WindowSize is the read window for streaming file digests. Hashing
// proceeds in bounded-memory passes of this size so arbitrarily large
// files never load fully into memory.
const WindowSize = 2 * 1024 * 1024

// Empty is the digest of zero bytes.
const Empty = "d41d8cd98f00b204e9800998ecf8427e"

// Sum returns the content digest of b as a 32-character lowercase hex
// string. Same bytes always yield the same digest, regardless of how the
// byte view was constructed.
func Sum(b []byte) string {
	h := md5.Sum(b)
	return hex.EncodeToString(h[:])
}

// Slice returns a byte view of r covering [start, end) without copying.
func Slice(r io.ReaderAt, start, end int64) *io.SectionReader {
	return io.NewSectionReader(r, start, end-start)
}

// File streams r through the digest in WindowSize passes and returns the
// content digest of everything read.
//
// size is the expected total length and is used only for progress
// reporting; progress (if non-nil) is called with values in 0-100,
// finishing at 100. The context is checked between windows: cancellation
// abandons the computation and returns ctx.Err(). Callers that merely
// want to discard the result can also just ignore the return value.
func File(ctx context.Context, r io.Reader, size int64, progress func(pct int)) (string, error) {
	h := md5.New()
	buf := make([]byte, WindowSize)

	var read int64
	lastPct := -1
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			read += int64(n)

			if progress != nil && size > 0 {
				pct := int(read * 100 / size)
				if pct > 100 {
					pct = 100
				}
				if pct != lastPct {
					progress(pct)
					lastPct = pct
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("digest read: %w", err)
		}
	}

	if progress != nil && lastPct != 100 {
		progress(100)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
