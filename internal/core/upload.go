package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/LandRegistry/internal/blob"
	"github.com/JonMunkholm/LandRegistry/internal/logging"
	"github.com/JonMunkholm/LandRegistry/internal/recordset"
	"github.com/JonMunkholm/LandRegistry/internal/sheet"
)

// Ingest stores an uploaded workbook and saves one record set per sheet.
//
// The raw bytes are written to the blob store before the workbook is
// decoded, so an unreadable file still leaves its blob behind. A workbook
// with one sheet fails as a whole when that sheet has no records. With
// several sheets each one is converted and saved on its own; sheets that
// fail are skipped and only reduce Processed. Ingest fails with
// ErrNoValidData when no sheet could be saved.
func (s *Service) Ingest(ctx context.Context, up Upload) (*IngestResult, error) {
	start := s.now()

	contentType, err := s.ValidateUpload(up.Filename, up.ContentType, int64(len(up.Data)))
	if err != nil {
		return nil, err
	}

	topic := strings.TrimSpace(up.Topic)
	if topic == "" {
		topic = s.cfg.DefaultTopic
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("wait for upload slot: %w", err)
	}
	defer s.limiter.Release()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	logger := logging.ForUpload(ctx, up.Filename, topic)
	if ip, _ := ClientFromContext(ctx); ip != "" {
		logger = logger.With("client_ip", ip)
	}

	info, err := s.blobs.Put(ctx, blob.Upload{
		Filename:    up.Filename,
		ContentType: contentType,
		Data:        up.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	logger = logger.With("blob_id", info.ID)
	logger.Debug("upload stored", "bytes", info.Length, "chunks", info.NumChunks())

	wb, err := s.parser.Parse(up.Data)
	if err != nil {
		if errors.Is(err, sheet.ErrNoSheets) {
			return nil, fmt.Errorf("%w: %s", ErrNoSheets, up.Filename)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreadableWorkbook, err)
	}
	if wb == nil || len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSheets, up.Filename)
	}

	base := recordset.RecordSet{
		Topic:      topic,
		BlobID:     info.ID,
		UploadedAt: info.UploadedAt,
	}

	result := &IngestResult{
		BlobID:   info.ID,
		Filename: up.Filename,
		Topic:    topic,
		Total:    len(wb.Sheets),
	}

	if len(wb.Sheets) == 1 {
		out, err := s.ingestSingle(ctx, base, up.Filename, wb.Sheets[0])
		if err != nil {
			return nil, err
		}
		result.Sheets = []SheetOutcome{out}
	} else {
		result.Sheets = s.ingestSheets(ctx, logger, base, up.Filename, wb.Sheets)
	}

	for _, out := range result.Sheets {
		if out.Status == SheetSaved {
			result.Processed++
			result.RecordSets = append(result.RecordSets, out.summary)
		}
	}
	if result.Processed == 0 {
		logger.Warn("no sheet could be saved", "sheets", result.Total)
		return nil, ErrNoValidData
	}

	result.Message = fmt.Sprintf("Successfully processed %d out of %d sheets", result.Processed, result.Total)
	result.Duration = s.now().Sub(start)

	logger.Info("workbook ingested",
		"processed", result.Processed,
		"total", result.Total,
		"duration", result.Duration.Round(time.Millisecond),
	)
	return result, nil
}

// ingestSingle handles a one-sheet workbook, where any failure fails the
// upload.
func (s *Service) ingestSingle(ctx context.Context, base recordset.RecordSet, filename string, sh *sheet.Sheet) (SheetOutcome, error) {
	if sh == nil {
		return SheetOutcome{}, ErrHeaderAndData
	}

	conv, err := convertSheet(sh)
	if err != nil {
		return SheetOutcome{}, fmt.Errorf("%w: %w", ErrUnreadableWorkbook, err)
	}
	if len(conv.Records) == 0 {
		return SheetOutcome{}, fmt.Errorf("%w: sheet %q", ErrHeaderAndData, sh.Name)
	}

	rs := base
	rs.Name = filename
	rs.SheetName = sh.Name
	rs.Columns = conv.Columns
	rs.Records = conv.Records

	if err := s.records.Save(ctx, &rs); err != nil {
		return SheetOutcome{}, fmt.Errorf("save record set: %w", err)
	}

	return SheetOutcome{
		Name:        sh.Name,
		Status:      SheetSaved,
		RecordSetID: rs.ID,
		Records:     len(rs.Records),
		summary:     rs.Summary(),
	}, nil
}

// ingestSheets converts and saves every sheet concurrently. Tasks never
// return an error, so one failing sheet cannot cancel the others.
func (s *Service) ingestSheets(ctx context.Context, logger *slog.Logger, base recordset.RecordSet, filename string, sheets []*sheet.Sheet) []SheetOutcome {
	outcomes := make([]SheetOutcome, len(sheets))

	var g errgroup.Group
	g.SetLimit(max(s.cfg.SheetConcurrency, 1))

	for i, sh := range sheets {
		g.Go(func() error {
			outcomes[i] = s.ingestSheet(ctx, logger, base, filename, i, sh)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (s *Service) ingestSheet(ctx context.Context, logger *slog.Logger, base recordset.RecordSet, filename string, index int, sh *sheet.Sheet) SheetOutcome {
	out := SheetOutcome{Index: index}
	if sh == nil {
		out.Status = SheetMissing
		logger.Warn("sheet missing from workbook, skipping", "sheet_index", index)
		return out
	}
	out.Name = sh.Name
	log := logging.ForSheet(logger, sh.Name, index)

	conv, err := convertSheet(sh)
	if err != nil {
		out.Status = SheetFailed
		out.Error = err.Error()
		log.Warn("sheet conversion failed, skipping", "error", err)
		return out
	}
	if len(conv.Records) == 0 {
		out.Status = SheetEmpty
		log.Info("sheet has no data rows, skipping")
		return out
	}

	rs := base
	rs.Name = filename + " - " + sh.Name
	rs.SheetName = sh.Name
	rs.ParentFile = filename
	rs.Columns = conv.Columns
	rs.Records = conv.Records

	if err := s.records.Save(ctx, &rs); err != nil {
		out.Status = SheetFailed
		out.Error = err.Error()
		log.Warn("saving sheet failed, skipping", "error", err)
		return out
	}

	out.Status = SheetSaved
	out.RecordSetID = rs.ID
	out.Records = len(rs.Records)
	out.summary = rs.Summary()
	log.Debug("sheet saved", "record_set_id", rs.ID, "records", out.Records)
	return out
}

// convertSheet runs sheet.Convert, turning a panic into an error.
func convertSheet(sh *sheet.Sheet) (conv sheet.Converted, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("convert sheet %q: panic: %v", sh.Name, r)
		}
	}()
	return sheet.Convert(sh), nil
}
