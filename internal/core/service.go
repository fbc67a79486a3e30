package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/LandRegistry/internal/config"
	"github.com/JonMunkholm/LandRegistry/internal/recordset"
	"github.com/JonMunkholm/LandRegistry/internal/sheet"
)

// Service ingests spreadsheets and serves what was ingested.
type Service struct {
	blobs   BlobStore
	records RecordStore
	parser  WorkbookParser
	limiter *UploadLimiter
	cfg     config.UploadConfig
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithParser replaces the default excelize/xls workbook parser.
func WithParser(p WorkbookParser) Option {
	return func(s *Service) { s.parser = p }
}

// WithLimiter replaces the limiter built from the upload config.
func WithLimiter(l *UploadLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// NewService wires the stores together with the upload settings.
func NewService(blobs BlobStore, records RecordStore, cfg config.UploadConfig, opts ...Option) *Service {
	s := &Service{
		blobs:   blobs,
		records: records,
		parser:  sheet.NewParser(),
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewUploadLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime)
	}
	return s
}

// DefaultTopic is the topic applied to uploads that name none.
func (s *Service) DefaultTopic() string {
	return s.cfg.DefaultTopic
}

// ListRecordSets returns every record set, newest first, without records.
func (s *Service) ListRecordSets(ctx context.Context) ([]recordset.Summary, error) {
	list, err := s.records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list record sets: %w", err)
	}
	return list, nil
}

// GetRecordSet returns one record set with its records.
func (s *Service) GetRecordSet(ctx context.Context, id string) (*recordset.RecordSet, error) {
	rs, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get record set %s: %w", id, err)
	}
	return rs, nil
}

// AllRecords flattens the records of every record set, oldest set first.
func (s *Service) AllRecords(ctx context.Context) ([]sheet.Record, error) {
	sets, err := s.records.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load record sets: %w", err)
	}

	n := 0
	for _, rs := range sets {
		n += len(rs.Records)
	}
	out := make([]sheet.Record, 0, n)
	for _, rs := range sets {
		out = append(out, rs.Records...)
	}
	return out, nil
}

// ListTopics returns how many record sets each topic holds.
func (s *Service) ListTopics(ctx context.Context) ([]recordset.TopicCount, error) {
	topics, err := s.records.Topics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics, nil
}

// OpenDownload opens the original file a record set was ingested from.
func (s *Service) OpenDownload(ctx context.Context, recordSetID string) (*Download, error) {
	rs, err := s.records.Get(ctx, recordSetID)
	if err != nil {
		return nil, fmt.Errorf("get record set %s: %w", recordSetID, err)
	}

	info, body, err := s.blobs.Open(ctx, rs.BlobID)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", rs.BlobID, err)
	}

	contentType, ok := ContentTypeFor(info.Filename)
	if !ok {
		contentType = info.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Download{
		Filename:    info.Filename,
		ContentType: contentType,
		Length:      info.Length,
		Body:        body,
	}, nil
}

// UploadStatus reports ingestion slot usage.
func (s *Service) UploadStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until in-flight ingestions finish or ctx ends.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// Ping checks both stores.
func (s *Service) Ping(ctx context.Context) error {
	return errors.Join(
		wrapPing("blob store", s.blobs.Ping(ctx)),
		wrapPing("record store", s.records.Ping(ctx)),
	)
}

func wrapPing(store string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", store, err)
}
