package core

// validation.go decides whether an upload is worth storing at all. Every
// check here runs before the blob store is touched.

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// Spreadsheet content types accepted for upload.
const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeXLS  = "application/vnd.ms-excel"
)

var extensionTypes = map[string]string{
	".xlsx": ContentTypeXLSX,
	".xls":  ContentTypeXLS,
}

// genericTypes are declared types that say nothing about the file; browsers
// and curl send them for unknown extensions.
var genericTypes = map[string]bool{
	"":                         true,
	"application/octet-stream": true,
}

// ContentTypeFor returns the spreadsheet content type for filename's
// extension.
func ContentTypeFor(filename string) (string, bool) {
	ct, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]
	return ct, ok
}

// ValidateUpload checks an upload's name, declared type and size against
// maxSize. It returns the content type to store, which is the declared one
// unless that was generic.
func ValidateUpload(filename, contentType string, size, maxSize int64) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", ErrMissingFile
	}
	if maxSize > 0 && size > maxSize {
		return "", fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrFileTooLarge, size, maxSize)
	}

	want, ok := ContentTypeFor(filename)
	if !ok {
		return "", fmt.Errorf("%w: %q is not an .xlsx or .xls file", ErrUnsupportedType, filename)
	}

	declared := strings.ToLower(strings.TrimSpace(contentType))
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		declared = mt
	}
	if !genericTypes[declared] && declared != want {
		return "", fmt.Errorf("%w: %s declared for %s", ErrUnsupportedType, declared, filepath.Ext(filename))
	}

	if size == 0 {
		return "", ErrEmptyFile
	}
	return want, nil
}

// ValidateUpload applies the service's configured size limit.
func (s *Service) ValidateUpload(filename, contentType string, size int64) (string, error) {
	return ValidateUpload(filename, contentType, size, s.cfg.MaxFileSize)
}
