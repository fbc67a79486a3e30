package recordset

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BlobChecker reports whether a blob id exists.
type BlobChecker func(ctx context.Context, blobID string) bool

// MemoryStore keeps record sets in process memory.
type MemoryStore struct {
	blobExists BlobChecker
	now        func() time.Time

	mu   sync.RWMutex
	sets map[string]*RecordSet
}

// NewMemoryStore creates an empty store. blobExists enforces that every
// saved record set references a stored blob; nil skips the check.
func NewMemoryStore(blobExists BlobChecker) *MemoryStore {
	return &MemoryStore{
		blobExists: blobExists,
		now:        time.Now,
		sets:       make(map[string]*RecordSet),
	}
}

// Save assigns an id and upload time when unset and stores a copy of rs.
func (m *MemoryStore) Save(ctx context.Context, rs *RecordSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(rs); err != nil {
		return err
	}
	if m.blobExists != nil && !m.blobExists(ctx, rs.BlobID) {
		return fmt.Errorf("%w: %s", ErrMissingBlob, rs.BlobID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rs.ID == "" {
		rs.ID = uuid.NewString()
	}
	if rs.UploadedAt.IsZero() {
		rs.UploadedAt = m.now().UTC()
	}

	stored := *rs
	stored.Columns = slices.Clone(rs.Columns)
	stored.Records = slices.Clone(rs.Records)
	m.sets[rs.ID] = &stored
	return nil
}

// Get returns the record set with the given id.
func (m *MemoryStore) Get(ctx context.Context, id string) (*RecordSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rs, ok := m.sets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := *rs
	return &out, nil
}

// List returns summaries, newest first.
func (m *MemoryStore) List(ctx context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, len(m.sets))
	for _, rs := range m.sets {
		out = append(out, rs.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// All returns every record set with its records, oldest first.
func (m *MemoryStore) All(ctx context.Context) ([]*RecordSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*RecordSet, 0, len(m.sets))
	for _, rs := range m.sets {
		cp := *rs
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.Before(out[j].UploadedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Topics returns the record-set count per topic, alphabetically.
func (m *MemoryStore) Topics(ctx context.Context) ([]TopicCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, rs := range m.sets {
		counts[rs.Topic]++
	}

	out := make([]TopicCount, 0, len(counts))
	for topic, n := range counts {
		out = append(out, TopicCount{Topic: topic, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

// Count returns the number of stored record sets.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sets)
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
