package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/JonMunkholm/LandRegistry/internal/blob"
	"github.com/JonMunkholm/LandRegistry/internal/recordset"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error", nil, ""},
		{"too large", fmt.Errorf("%w: 120 MB exceeds 100 MB", ErrFileTooLarge), "FILE001"},
		{"unsupported type", fmt.Errorf("%w: .csv", ErrUnsupportedType), "FILE002"},
		{"missing file", ErrMissingFile, "FILE003"},
		{"empty file", ErrEmptyFile, "FILE004"},
		{"unreadable", fmt.Errorf("%w: zip: not a valid zip file", ErrUnreadableWorkbook), "XLS001"},
		{"no sheets", ErrNoSheets, "XLS002"},
		{"header only", ErrHeaderAndData, "XLS003"},
		{"no valid data", ErrNoValidData, "XLS004"},
		{"busy", ErrTooManyUploads, "UPL001"},
		{"cancelled", fmt.Errorf("store upload: %w", context.Canceled), "UPL002"},
		{"deadline", fmt.Errorf("save record set: %w", context.DeadlineExceeded), "UPL003"},
		{"missing blob", fmt.Errorf("save: %w", recordset.ErrMissingBlob), "DB003"},
		{"record set not found", fmt.Errorf("%w: abc", recordset.ErrNotFound), "REC001"},
		{"blob not found", blob.ErrNotFound, "REC001"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), "DB001"},
		{"io timeout", errors.New("read tcp: i/o timeout"), "DB004"},
		{"unknown", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
		})
	}
}

func TestMapError_HeaderMessageText(t *testing.T) {
	msg := MapError(ErrHeaderAndData)
	if msg.Message != "Sheet must contain header and data rows" {
		t.Errorf("Message = %q", msg.Message)
	}
}

func TestFormatUserError(t *testing.T) {
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}

	want := "No file was selected (Code: FILE003). Choose an Excel workbook to upload"
	if got := FormatUserError(ErrMissingFile); got != want {
		t.Errorf("FormatUserError = %q, want %q", got, want)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrEmptyFile, http.StatusBadRequest},
		{fmt.Errorf("%w: bad zip", ErrUnreadableWorkbook), http.StatusBadRequest},
		{ErrNoValidData, http.StatusBadRequest},
		{fmt.Errorf("%w: x", recordset.ErrNotFound), http.StatusNotFound},
		{blob.ErrNotFound, http.StatusNotFound},
		{ErrTooManyUploads, http.StatusServiceUnavailable},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
