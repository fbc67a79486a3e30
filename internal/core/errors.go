package core

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/LandRegistry/internal/blob"
	"github.com/JonMunkholm/LandRegistry/internal/recordset"
)

// Client input errors. No side effect has happened when one of these is
// returned, except for the workbook errors, which follow the blob write.
var (
	ErrMissingFile        = errors.New("no file provided")
	ErrFileTooLarge       = errors.New("file too large")
	ErrUnsupportedType    = errors.New("unsupported file type")
	ErrEmptyFile          = errors.New("empty file")
	ErrUnreadableWorkbook = errors.New("unable to read workbook")
	ErrNoSheets           = errors.New("workbook contains no sheets")
	ErrHeaderAndData      = errors.New("sheet must contain header and data rows")
	ErrNoValidData        = errors.New("no valid data found in any sheet")
)

// ErrNotFound is returned when a record set or its blob does not exist.
var ErrNotFound = errors.New("not found")

var clientErrors = []error{
	ErrMissingFile,
	ErrFileTooLarge,
	ErrUnsupportedType,
	ErrEmptyFile,
	ErrUnreadableWorkbook,
	ErrNoSheets,
	ErrHeaderAndData,
	ErrNoValidData,
}

// IsClientError reports whether err was caused by the uploaded input.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err means the requested resource is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, recordset.ErrNotFound) ||
		errors.Is(err, blob.ErrNotFound)
}

// StatusCode maps an error returned by Service to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsClientError(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ErrTooManyUploads):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
