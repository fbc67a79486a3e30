// Package blob stores uploaded spreadsheet files as immutable binary objects.
//
// Files are split into fixed-size chunks and stored alongside one metadata
// row, so large uploads never need a single oversized value in the database.
// A stored blob is never modified; readers reassemble the chunks in order.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultChunkSize matches the chunk size commonly used by chunked file
// stores (255 KiB), small enough to keep each chunk row modest.
const DefaultChunkSize = 255 * 1024

// ErrNotFound is returned when no blob exists for an id.
var ErrNotFound = errors.New("blob not found")

// Info describes a stored blob.
type Info struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Length      int64     `json:"length"`
	ChunkSize   int       `json:"chunk_size"`
	SHA256      string    `json:"sha256"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Upload is the input to Put.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// NumChunks returns how many chunks the blob occupies.
func (i Info) NumChunks() int {
	if i.Length == 0 || i.ChunkSize <= 0 {
		return 0
	}
	return int((i.Length + int64(i.ChunkSize) - 1) / int64(i.ChunkSize))
}

func newInfo(up Upload, chunkSize int, now time.Time) Info {
	sum := sha256.Sum256(up.Data)
	return Info{
		ID:          uuid.NewString(),
		Filename:    up.Filename,
		ContentType: up.ContentType,
		Length:      int64(len(up.Data)),
		ChunkSize:   chunkSize,
		SHA256:      hex.EncodeToString(sum[:]),
		UploadedAt:  now.UTC(),
	}
}

// splitChunks slices data into consecutive chunks of at most size bytes.
// The returned chunks alias data.
func splitChunks(data []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		chunks = append(chunks, data[start:end])
	}
	return chunks
}
