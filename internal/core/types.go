package core

import (
	"context"
	"io"
	"time"

	"github.com/JonMunkholm/LandRegistry/internal/blob"
	"github.com/JonMunkholm/LandRegistry/internal/recordset"
	"github.com/JonMunkholm/LandRegistry/internal/sheet"
)

// BlobStore keeps the raw bytes of every accepted upload.
// Satisfied by *blob.PostgresStore and *blob.MemoryStore.
type BlobStore interface {
	Put(ctx context.Context, up blob.Upload) (blob.Info, error)
	Open(ctx context.Context, id string) (blob.Info, io.ReadCloser, error)
	Ping(ctx context.Context) error
}

// RecordStore persists one record set per ingested sheet.
// Satisfied by *recordset.PostgresStore and *recordset.MemoryStore.
type RecordStore interface {
	Save(ctx context.Context, rs *recordset.RecordSet) error
	Get(ctx context.Context, id string) (*recordset.RecordSet, error)
	List(ctx context.Context) ([]recordset.Summary, error)
	All(ctx context.Context) ([]*recordset.RecordSet, error)
	Topics(ctx context.Context) ([]recordset.TopicCount, error)
	Ping(ctx context.Context) error
}

// WorkbookParser decodes spreadsheet bytes.
type WorkbookParser interface {
	Parse(data []byte) (*sheet.Workbook, error)
}

// Upload is one spreadsheet submitted for ingestion.
type Upload struct {
	Filename    string
	ContentType string
	Topic       string
	Data        []byte
}

// SheetStatus is what happened to one sheet of a workbook.
type SheetStatus string

const (
	SheetSaved   SheetStatus = "saved"
	SheetMissing SheetStatus = "missing"
	SheetEmpty   SheetStatus = "empty"
	SheetFailed  SheetStatus = "failed"
)

// SheetOutcome records the result of ingesting one sheet.
type SheetOutcome struct {
	Index       int         `json:"index"`
	Name        string      `json:"name"`
	Status      SheetStatus `json:"status"`
	RecordSetID string      `json:"record_set_id,omitempty"`
	Records     int         `json:"records"`
	Error       string      `json:"error,omitempty"`

	summary recordset.Summary
}

// IngestResult is the outcome of a successful Ingest.
type IngestResult struct {
	BlobID     string              `json:"blob_id"`
	Filename   string              `json:"filename"`
	Topic      string              `json:"topic"`
	Processed  int                 `json:"processed"`
	Total      int                 `json:"total"`
	Message    string              `json:"message"`
	RecordSets []recordset.Summary `json:"record_sets"`
	Sheets     []SheetOutcome      `json:"sheets"`
	Duration   time.Duration       `json:"-"`
}

// Download is an opened original upload. The caller closes Body.
type Download struct {
	Filename    string
	ContentType string
	Length      int64
	Body        io.ReadCloser
}
