package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/JonMunkholm/LandRegistry/internal/core"
	"github.com/JonMunkholm/LandRegistry/internal/recordset"
)

const (
	// multipartOverhead is allowed on top of the file size limit for the
	// multipart framing and the topic field.
	multipartOverhead = 1 << 20

	// multipartMemory is how much of a form is kept in memory before
	// spilling to temporary files.
	multipartMemory = 32 << 20
)

// UploadResponse is the body of a successful POST /upload/excel_document.
type UploadResponse struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message"`
	Processed  int                 `json:"processed"`
	Total      int                 `json:"total"`
	RecordSets []recordset.Summary `json:"record_sets"`
	Sheets     []core.SheetOutcome `json:"sheets"`
}

// handleUpload ingests the workbook in the multipart field "file", filed
// under the optional form field "topic".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.respondError(w, r, fmt.Errorf("%w: request exceeds %d bytes", core.ErrFileTooLarge, tooBig.Limit), http.StatusBadRequest)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrMissingFile, err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrMissingFile, err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if _, err := s.service.ValidateUpload(header.Filename, contentType, header.Size); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err), http.StatusInternalServerError)
		return
	}

	ctx := withClient(r.Context(), r)
	result, err := s.service.Ingest(ctx, core.Upload{
		Filename:    header.Filename,
		ContentType: contentType,
		Topic:       r.FormValue("topic"),
		Data:        data,
	})
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Success:    true,
		Message:    result.Message,
		Processed:  result.Processed,
		Total:      result.Total,
		RecordSets: result.RecordSets,
		Sheets:     result.Sheets,
	})
}

// handleUploadStatus reports how many ingestion slots are in use.
func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.UploadStatus())
}
