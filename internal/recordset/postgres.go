package recordset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// foreignKeyViolation is the Postgres SQLSTATE for a failed FK check.
const foreignKeyViolation = "23503"

const (
	insertSQL = `
		INSERT INTO record_sets
			(id, name, topic, sheet_name, parent_file, blob_id, columns, records, record_count, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	selectOneSQL = `
		SELECT id, name, topic, sheet_name, parent_file, blob_id, uploaded_at, columns, records
		FROM record_sets WHERE id = $1`

	selectAllSQL = `
		SELECT id, name, topic, sheet_name, parent_file, blob_id, uploaded_at, columns, records
		FROM record_sets ORDER BY uploaded_at ASC, name ASC`

	listSQL = `
		SELECT id, name, topic, sheet_name, parent_file, uploaded_at, record_count
		FROM record_sets ORDER BY uploaded_at DESC, name ASC`

	topicsSQL = `
		SELECT topic, COUNT(*) FROM record_sets GROUP BY topic ORDER BY topic`
)

// PostgresStore persists record sets in the record_sets table, with records
// and column order stored as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a record-set store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// Save inserts rs as a single statement. It assigns an id and upload time
// when they are unset.
func (s *PostgresStore) Save(ctx context.Context, rs *RecordSet) error {
	if err := validate(rs); err != nil {
		return err
	}

	columns, err := json.Marshal(rs.Columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}
	records, err := json.Marshal(rs.Records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	id := rs.ID
	if id == "" {
		id = uuid.NewString()
	}
	uploadedAt := rs.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = s.now().UTC()
	}

	_, err = s.pool.Exec(ctx, insertSQL,
		id, rs.Name, rs.Topic, rs.SheetName, toPgText(rs.ParentFile), rs.BlobID,
		columns, records, len(rs.Records), uploadedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return fmt.Errorf("%w: %s", ErrMissingBlob, rs.BlobID)
		}
		return fmt.Errorf("insert record set %q: %w", rs.Name, err)
	}

	rs.ID = id
	rs.UploadedAt = uploadedAt
	return nil
}

// Get returns the record set with the given id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*RecordSet, error) {
	rs, err := scanRecordSet(s.pool.QueryRow(ctx, selectOneSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select record set %s: %w", id, err)
	}
	return rs, nil
}

// List returns summaries, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, listSQL)
	if err != nil {
		return nil, fmt.Errorf("list record sets: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var parent pgtype.Text
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Topic, &sum.SheetName, &parent, &sum.UploadedAt, &sum.RecordCount); err != nil {
			return nil, fmt.Errorf("scan record set summary: %w", err)
		}
		sum.ParentFile = parent.String
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record sets: %w", err)
	}
	return out, nil
}

// All returns every record set with its records, oldest first.
func (s *PostgresStore) All(ctx context.Context) ([]*RecordSet, error) {
	rows, err := s.pool.Query(ctx, selectAllSQL)
	if err != nil {
		return nil, fmt.Errorf("select record sets: %w", err)
	}
	defer rows.Close()

	var out []*RecordSet
	for rows.Next() {
		rs, err := scanRecordSet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record set: %w", err)
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record sets: %w", err)
	}
	return out, nil
}

// Topics returns the record-set count per topic, alphabetically.
func (s *PostgresStore) Topics(ctx context.Context) ([]TopicCount, error) {
	rows, err := s.pool.Query(ctx, topicsSQL)
	if err != nil {
		return nil, fmt.Errorf("count topics: %w", err)
	}
	defer rows.Close()

	var out []TopicCount
	for rows.Next() {
		var tc TopicCount
		if err := rows.Scan(&tc.Topic, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan topic count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanRecordSet(row pgx.Row) (*RecordSet, error) {
	var rs RecordSet
	var parent pgtype.Text
	var columns, records []byte

	if err := row.Scan(&rs.ID, &rs.Name, &rs.Topic, &rs.SheetName, &parent, &rs.BlobID, &rs.UploadedAt, &columns, &records); err != nil {
		return nil, err
	}
	rs.ParentFile = parent.String

	if err := json.Unmarshal(columns, &rs.Columns); err != nil {
		return nil, fmt.Errorf("decode columns of %s: %w", rs.ID, err)
	}
	if err := json.Unmarshal(records, &rs.Records); err != nil {
		return nil, fmt.Errorf("decode records of %s: %w", rs.ID, err)
	}
	return &rs, nil
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}
