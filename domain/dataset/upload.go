package dataset

import (
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// csvMimeTypes are the declared types accepted as CSV when the name lacks a .csv suffix
var csvMimeTypes = map[string]bool{
	"text/csv":        true,
	"application/csv": true,
	"text/x-csv":      true,
}

// FileRef describes a file picked or dropped by the user
type FileRef struct {
	Name     string `json:"name"`
	MimeType string `json:"type"`
	Size     int64  `json:"size,omitempty"`
}

// IsCSV accepts a .csv suffix (any case) or a declared CSV MIME type
func (f FileRef) IsCSV() bool {
	if strings.EqualFold(filepath.Ext(f.Name), ".csv") {
		return true
	}
	if f.MimeType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(f.MimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(f.MimeType))
	}
	return csvMimeTypes[mediaType]
}

// Upload represents a selected file together with its content
type Upload struct {
	FileRef
	Content io.Reader
}
