// Package export renders a plan into HTML, CSV, DOCX, JSON, PDF and plain text.
package export

import (
	"errors"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatCSV  Format = "csv"
	FormatDOCX Format = "docx"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
	FormatText Format = "txt"
)

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	// Attachment is set for binary formats that should download rather than display
	Attachment bool
}

var (
	// ErrUnsupportedFormat indicates no renderer matches the requested format.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrRenderFailed wraps failures inside a renderer.
	ErrRenderFailed = errors.New("export render failed")
)
