package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// MemoryStore keeps blobs in process memory. It is used by tests and by the
// "memory" storage driver for local runs without Postgres.
type MemoryStore struct {
	chunkSize int
	now       func() time.Time

	mu     sync.RWMutex
	blobs  map[string]Info
	chunks map[string][][]byte
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore(chunkSize int) *MemoryStore {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &MemoryStore{
		chunkSize: chunkSize,
		now:       time.Now,
		blobs:     make(map[string]Info),
		chunks:    make(map[string][][]byte),
	}
}

// Put stores a copy of the upload and returns its metadata.
func (m *MemoryStore) Put(ctx context.Context, up Upload) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	data := bytes.Clone(up.Data)
	info := newInfo(Upload{Filename: up.Filename, ContentType: up.ContentType, Data: data}, m.chunkSize, m.now())

	m.mu.Lock()
	m.blobs[info.ID] = info
	m.chunks[info.ID] = splitChunks(data, m.chunkSize)
	m.mu.Unlock()

	return info, nil
}

// Stat returns the metadata of a blob.
func (m *MemoryStore) Stat(ctx context.Context, id string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.blobs[id]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return info, nil
}

// Open returns the blob metadata and a reader over its reassembled bytes.
func (m *MemoryStore) Open(ctx context.Context, id string) (Info, io.ReadCloser, error) {
	m.mu.RLock()
	info, ok := m.blobs[id]
	chunks := m.chunks[id]
	m.mu.RUnlock()

	if !ok {
		return Info{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	readers := make([]io.Reader, len(chunks))
	for i, c := range chunks {
		readers[i] = bytes.NewReader(c)
	}
	return info, io.NopCloser(io.MultiReader(readers...)), nil
}

// Count returns the number of stored blobs.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
