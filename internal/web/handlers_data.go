package web

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/LandRegistry/internal/logging"
	"github.com/JonMunkholm/LandRegistry/internal/recordset"
	"github.com/JonMunkholm/LandRegistry/internal/sheet"
)

// handleListFiles returns every record set without its records.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListRecordSets(r.Context())
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if list == nil {
		list = []recordset.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetFile returns one record set with its records.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	rs, err := s.service.GetRecordSet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.service.ListTopics(r.Context())
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if topics == nil {
		topics = []recordset.TopicCount{}
	}
	writeJSON(w, http.StatusOK, topics)
}

// handleData returns the records of every record set as one flat list.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.AllRecords(r.Context())
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if records == nil {
		records = []sheet.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleDownload streams the original workbook a record set came from.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	dl, err := s.service.OpenDownload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	defer dl.Body.Close()

	// The body may take longer than SERVER_WRITE_TIMEOUT to send; it gets the
	// request timeout instead.
	if d := s.cfg.Server.RequestTimeout; d > 0 {
		err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(d))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			logging.FromContext(r.Context()).Warn("download: extend write deadline", "error", err)
		}
	}

	h := w.Header()
	h.Set("Content-Type", dl.ContentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Filename}))
	h.Set("Content-Length", strconv.FormatInt(dl.Length, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, dl.Body); err != nil {
		logging.FromContext(r.Context()).Error("download interrupted", "error", err, "filename", dl.Filename)
	}
}
