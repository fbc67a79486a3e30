package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	insertBlobSQL = `
		INSERT INTO blobs (id, filename, content_type, length, chunk_size, sha256, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	selectBlobSQL = `
		SELECT id, filename, content_type, length, chunk_size, sha256, uploaded_at
		FROM blobs WHERE id = $1`

	selectChunkSQL = `SELECT data FROM blob_chunks WHERE blob_id = $1 AND n = $2`
)

// PostgresStore persists blobs in the blobs and blob_chunks tables.
type PostgresStore struct {
	pool      *pgxpool.Pool
	chunkSize int
	now       func() time.Time
}

// NewPostgresStore creates a blob store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool, chunkSize int) *PostgresStore {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &PostgresStore{
		pool:      pool,
		chunkSize: chunkSize,
		now:       time.Now,
	}
}

// Put writes the metadata row and every chunk in one transaction, so a blob
// is either fully stored or absent.
func (s *PostgresStore) Put(ctx context.Context, up Upload) (Info, error) {
	info := newInfo(up, s.chunkSize, s.now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("begin blob transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if _, err := tx.Exec(ctx, insertBlobSQL,
		info.ID, info.Filename, info.ContentType, info.Length, info.ChunkSize, info.SHA256, info.UploadedAt,
	); err != nil {
		return Info{}, fmt.Errorf("insert blob metadata: %w", err)
	}

	chunks := splitChunks(up.Data, s.chunkSize)
	rows := make([][]any, len(chunks))
	for n, c := range chunks {
		rows[n] = []any{info.ID, int32(n), c}
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"blob_chunks"},
		[]string{"blob_id", "n", "data"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return Info{}, fmt.Errorf("copy blob chunks: %w", err)
	}
	if int(copied) != len(chunks) {
		return Info{}, fmt.Errorf("copy blob chunks: wrote %d of %d", copied, len(chunks))
	}

	if err := tx.Commit(ctx); err != nil {
		return Info{}, fmt.Errorf("commit blob: %w", err)
	}

	return info, nil
}

// Stat returns the metadata of a blob.
func (s *PostgresStore) Stat(ctx context.Context, id string) (Info, error) {
	var info Info
	err := s.pool.QueryRow(ctx, selectBlobSQL, id).Scan(
		&info.ID, &info.Filename, &info.ContentType, &info.Length, &info.ChunkSize, &info.SHA256, &info.UploadedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Info{}, fmt.Errorf("select blob %s: %w", id, err)
	}
	return info, nil
}

// Open returns the blob metadata and a reader that fetches chunks one at a
// time as it is consumed. The reader is bound to ctx.
func (s *PostgresStore) Open(ctx context.Context, id string) (Info, io.ReadCloser, error) {
	info, err := s.Stat(ctx, id)
	if err != nil {
		return Info{}, nil, err
	}
	return info, &chunkReader{ctx: ctx, pool: s.pool, info: info}, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// chunkReader streams a blob chunk by chunk.
type chunkReader struct {
	ctx  context.Context
	pool *pgxpool.Pool
	info Info
	next int
	buf  []byte
	read int64
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.next >= r.info.NumChunks() {
			if r.read != r.info.Length {
				return 0, fmt.Errorf("blob %s: read %d of %d bytes: %w", r.info.ID, r.read, r.info.Length, io.ErrUnexpectedEOF)
			}
			return 0, io.EOF
		}

		var data []byte
		err := r.pool.QueryRow(r.ctx, selectChunkSQL, r.info.ID, int32(r.next)).Scan(&data)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("blob %s: missing chunk %d: %w", r.info.ID, r.next, io.ErrUnexpectedEOF)
		}
		if err != nil {
			return 0, fmt.Errorf("blob %s: read chunk %d: %w", r.info.ID, r.next, err)
		}
		r.next++
		r.buf = data
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	r.read += int64(n)
	return n, nil
}

func (r *chunkReader) Close() error {
	r.buf = nil
	r.next = r.info.NumChunks()
	return nil
}
