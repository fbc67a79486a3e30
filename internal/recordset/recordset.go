// Package recordset persists the records converted from spreadsheet sheets.
//
// A RecordSet is the stored result of one sheet: its display metadata, the
// blob it came from, and the ordered list of key-value records. Record keys
// are whatever the sheet's header row contained; no schema is imposed.
package recordset

import (
	"errors"
	"time"

	"github.com/JonMunkholm/LandRegistry/internal/sheet"
)

var (
	// ErrNotFound is returned when no record set exists for an id.
	ErrNotFound = errors.New("record set not found")

	// ErrEmptyRecords is returned when saving a record set without records.
	ErrEmptyRecords = errors.New("record set has no records")

	// ErrMissingBlob is returned when a record set references no stored blob.
	ErrMissingBlob = errors.New("record set references a missing blob")
)

// RecordSet is one ingested sheet.
type RecordSet struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Topic      string         `json:"topic"`
	SheetName  string         `json:"sheet_name"`
	ParentFile string         `json:"parent_file,omitempty"`
	BlobID     string         `json:"blob_id"`
	UploadedAt time.Time      `json:"uploaded_at"`
	Columns    []string       `json:"columns"`
	Records    []sheet.Record `json:"records"`
}

// Summary is the listing view of a RecordSet, without the records payload.
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Topic       string    `json:"topic"`
	SheetName   string    `json:"sheet_name"`
	ParentFile  string    `json:"parent_file,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
	RecordCount int       `json:"record_count"`
}

// TopicCount is the number of record sets filed under one topic.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// Summary returns the listing view of rs.
func (rs *RecordSet) Summary() Summary {
	return Summary{
		ID:          rs.ID,
		Name:        rs.Name,
		Topic:       rs.Topic,
		SheetName:   rs.SheetName,
		ParentFile:  rs.ParentFile,
		UploadedAt:  rs.UploadedAt,
		RecordCount: len(rs.Records),
	}
}

func validate(rs *RecordSet) error {
	if len(rs.Records) == 0 {
		return ErrEmptyRecords
	}
	if rs.BlobID == "" {
		return ErrMissingBlob
	}
	return nil
}
