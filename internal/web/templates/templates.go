// Package templates renders the registry's HTML pages as templ components.
// Edit the .templ files and run `templ generate`; the *_templ.go files are
// generated from them.
package templates

import "github.com/JonMunkholm/LandRegistry/internal/recordset"

// IndexData is everything the upload page shows.
type IndexData struct {
	RecordSets   []recordset.Summary
	Topics       []recordset.TopicCount
	DefaultTopic string
	MaxUploadMB  int64
}
