// Package core ingests spreadsheet uploads into the registry.
//
// It has no HTTP or database dependencies of its own; the web server and
// the regctl command both drive the same [Service] over whichever stores
// were configured.
//
// # Ingestion
//
// [Service.Ingest] runs the whole pipeline for one workbook:
//
//  1. [ValidateUpload] rejects missing, oversized, empty or non-Excel files
//  2. an [UploadLimiter] slot is taken, bounding parallel ingestions
//  3. the raw bytes go to the [BlobStore]
//  4. the workbook is decoded into sheets of typed cells
//  5. each sheet becomes a record set in the [RecordStore]
//
// A single-sheet workbook fails when its sheet has no records. Sheets of a
// multi-sheet workbook are processed concurrently and skipped individually;
// the upload only fails when none of them could be saved.
//
// # Errors
//
// Sentinel errors classify failures, [StatusCode] maps them to HTTP codes,
// and [MapError] maps any error to a message with a support code:
//
//   - FILE001-FILE004: upload input
//   - XLS001-XLS004: workbook content
//   - UPL001-UPL003: busy, cancelled, timed out
//   - REC001, DB001-DB004: lookups and storage
package core
