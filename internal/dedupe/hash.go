package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"

	"github.com/spf13/afero"
)

// Sample chunk sizes are interpolated between these points
const (
	minChunk     = 256 << 10
	maxChunk     = 10 << 20
	minChunkFile = 25 << 20
	maxChunkFile = 50_000_000_000

	// DefaultGap is the fraction of the file skipped between samples
	DefaultGap = 0.1
)

// ChunkSize returns the sample chunk size for a file of size bytes
func ChunkSize(size int64) int64 {
	switch {
	case size <= minChunkFile:
		return minChunk
	case size >= maxChunkFile:
		return maxChunk
	}
	frac := float64(size-minChunkFile) / float64(maxChunkFile-minChunkFile)
	return int64(minChunk + frac*(maxChunk-minChunk))
}

// Segments returns the offsets of the sampled chunks. A file of at most
// three chunks is read whole, signalled by a single segment at 0 with
// whole set.
func Segments(size, chunk int64, gap float64) (offsets []int64, whole bool) {
	if size <= chunk*3 {
		return []int64{0}, true
	}
	step := int64(gap)
	if gap < 1 {
		step = int64(math.Ceil(float64(size) * gap))
	}
	end := size - chunk
	for start := int64(0); start+chunk < end; start += chunk + step {
		offsets = append(offsets, start)
	}
	return append(offsets, end), false
}

// SampleHash hashes the sampled chunks of path
func SampleHash(ctx context.Context, fs afero.Fs, path string, gap float64) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	chunk := ChunkSize(info.Size())
	offsets, whole := Segments(info.Size(), chunk, gap)

	h := sha256.New()
	if whole {
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	buf := make([]byte, chunk)
	for _, off := range offsets {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := f.ReadAt(buf, off)
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read %s at %d: %w", path, off, err)
		}
		h.Write(buf[:n])
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FullHash hashes the whole file
func FullHash(ctx context.Context, fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 1<<20)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := f.Read(buf)
		h.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
