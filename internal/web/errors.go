package web

// errors.go turns handler errors into responses.
//
// The technical error is logged with the request id. The client gets the
// core.MapError message and code, or core.GenericMessage for 5xx other than
// 503, as JSON or as an HTML page depending on what it asked for.

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/LandRegistry/internal/core"
	"github.com/JonMunkholm/LandRegistry/internal/logging"
	"github.com/JonMunkholm/LandRegistry/internal/web/templates"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the user-facing response. A zero status
// is derived with core.StatusCode.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = core.StatusCode(err)
	}

	msg := core.MapError(err)
	if status >= 500 && status != http.StatusServiceUnavailable {
		msg = core.GenericMessage
	}

	logger := logging.FromContext(r.Context())
	attrs := []any{"path", r.URL.Path, "method", r.Method, "status", status, "code", msg.Code, "error", err}
	if status >= 500 {
		logger.Error("request failed", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = templates.ErrorPage(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
		return
	}
	respondErrorJSON(w, msg, status)
}

func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// wantsHTML is true for browser navigations; API clients and the upload
// page's fetch calls get JSON.
func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}
