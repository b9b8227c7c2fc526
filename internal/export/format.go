package export

import (
	"strconv"
	"strings"

	"github.com/munnerz/goautoneg"
)

var mediaTypes = map[Format]string{
	FormatHTML: "text/html",
	FormatCSV:  "text/csv",
	FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FormatJSON: "application/json",
	FormatPDF:  "application/pdf",
	FormatText: "text/plain",
}

// negotiationOrder is the preference among formats a wildcard range matches
var negotiationOrder = []Format{FormatHTML, FormatJSON, FormatCSV, FormatText, FormatPDF, FormatDOCX}

// MediaType returns the content type for a format, or "" if unknown
func (f Format) MediaType() string {
	return mediaTypes[f]
}

// ContentType is the header value sent with a rendered result
func (f Format) ContentType() string {
	mt := f.MediaType()
	if strings.HasPrefix(mt, "text/") || mt == "application/json" {
		return mt + "; charset=utf-8"
	}
	return mt
}

// FormatFromExtension maps a path extension (without dot) to a format.
// Only the explicit download extensions are accepted; html is the
// negotiated default and has no extension.
func FormatFromExtension(ext string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimPrefix(ext, "."))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatDOCX:
		return FormatDOCX, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatPDF:
		return FormatPDF, nil
	case FormatText:
		return FormatText, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Negotiate picks a format from an Accept header. An empty header or a
// wildcard selects HTML. Media types refused with q=0 are never chosen.
// Nothing acceptable yields ErrUnsupportedFormat.
func Negotiate(accept string) (Format, error) {
	accept = strings.ToLower(strings.TrimSpace(accept))
	if accept == "" {
		return FormatHTML, nil
	}

	refused := make(map[string]bool)
	ranges := make([]string, 0, 4)
	for _, clause := range goautoneg.ParseAccept(accept) {
		mediaType := clause.Type + "/" + clause.SubType
		if clause.Q <= 0 {
			refused[mediaType] = true
			continue
		}
		ranges = append(ranges, mediaType+";q="+strconv.FormatFloat(clause.Q, 'f', -1, 64))
	}

	alternatives := make([]string, 0, len(negotiationOrder))
	for _, f := range negotiationOrder {
		if !refused[mediaTypes[f]] {
			alternatives = append(alternatives, mediaTypes[f])
		}
	}
	chosen := goautoneg.Negotiate(strings.Join(ranges, ","), alternatives)
	for _, f := range negotiationOrder {
		if mediaTypes[f] == chosen {
			return f, nil
		}
	}
	return "", ErrUnsupportedFormat
}
