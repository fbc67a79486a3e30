package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/LandRegistry/internal/logging"
	"github.com/JonMunkholm/LandRegistry/internal/web/templates"
)

// healthTimeout bounds the store pings behind /healthz.
const healthTimeout = 2 * time.Second

// handleIndex renders the upload page. A failing listing still renders the
// form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	data := templates.IndexData{
		DefaultTopic: s.service.DefaultTopic(),
		MaxUploadMB:  s.cfg.Upload.MaxFileSize >> 20,
	}

	var err error
	if data.RecordSets, err = s.service.ListRecordSets(ctx); err != nil {
		logger.Error("index: list record sets", "error", err)
	}
	if data.Topics, err = s.service.ListTopics(ctx); err != nil {
		logger.Error("index: list topics", "error", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Index(data).Render(ctx, w); err != nil {
		logger.Error("index: render", "error", err)
	}
}

// handleHealth pings both stores.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		logging.FromContext(ctx).Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
