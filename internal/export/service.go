package export

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/dmp"
)

// PDFRenderer turns a rendered HTML document into PDF bytes
type PDFRenderer interface {
	Convert(ctx context.Context, html string) ([]byte, error)
}

// Archive stores finished binary renditions. Get reports found=false for a
// missing key.
type Archive interface {
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Service renders plans in every supported format
type Service struct {
	pdf     PDFRenderer
	archive Archive
	log     zerolog.Logger
}

// NewService creates a new export service. archive may be nil.
func NewService(pdf PDFRenderer, archive Archive, logger zerolog.Logger) *Service {
	return &Service{pdf: pdf, archive: archive, log: logger.With().Str("component", "export").Logger()}
}

// Render generates the plan in the requested format
func (s *Service) Render(ctx context.Context, plan *dmp.Plan, format Format, opts Options) (*Result, error) {
	if plan == nil {
		return nil, fmt.Errorf("%w: nil plan", ErrRenderFailed)
	}
	result := &Result{
		Filename: sanitizeFilename(plan.Title) + "." + string(format),
		MimeType: format.ContentType(),
	}

	switch format {
	case FormatHTML:
		result.Data = []byte(RenderHTML(opts.Display, opts.Page, plan))
	case FormatText:
		result.Data = []byte(RenderText(RenderHTML(opts.Display, opts.Page, plan)))
	case FormatJSON:
		data, err := json.Marshal(plan)
		if err != nil {
			return nil, fmt.Errorf("%w: json: %w", ErrRenderFailed, err)
		}
		result.Data = data
	case FormatCSV:
		data, err := RenderCSV(opts.Display, plan)
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %w", ErrRenderFailed, err)
		}
		result.Data = data
	case FormatPDF, FormatDOCX:
		data, err := s.renderArchived(ctx, plan, format, opts)
		if err != nil {
			return nil, err
		}
		result.Data = data
		result.Attachment = true
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return result, nil
}

// renderArchived serves PDF and DOCX from the rendition archive when one is
// configured. Archive failures are logged and never fail the render.
func (s *Service) renderArchived(ctx context.Context, plan *dmp.Plan, format Format, opts Options) ([]byte, error) {
	key := archiveKey(plan, format, opts)
	if s.archive != nil {
		data, found, err := s.archive.Get(ctx, key)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("key", key).Msg("rendition archive lookup failed")
		case found:
			return data, nil
		}
	}

	document := RenderHTML(opts.Display, opts.Page, plan)
	var (
		data []byte
		err  error
	)
	if format == FormatPDF {
		if s.pdf == nil {
			return nil, fmt.Errorf("%w: no pdf renderer configured", ErrPDFDependencyMissing)
		}
		data, err = s.pdf.Convert(ctx, document)
	} else {
		modified, _ := dmp.ParseDate(plan.Modified)
		data, err = RenderDOCX(document, opts.Page, plan.Title, modified)
	}
	if err != nil {
		if errors.Is(err, ErrPDFDependencyMissing) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrRenderFailed, format, err)
	}

	if s.archive != nil {
		if err := s.archive.Put(ctx, key, data, format.ContentType()); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("rendition archive store failed")
		}
	}
	return data, nil
}

// archiveKey identifies one rendition: the same plan version rendered with
// the same options always maps to the same key.
func archiveKey(plan *dmp.Plan, format Format, opts Options) string {
	encodedOpts, _ := json.Marshal(opts)
	h := blake3.New()
	for _, part := range [][]byte{
		[]byte(plan.DMPID.Identifier),
		[]byte(plan.Modified),
		[]byte(format),
		encodedOpts,
	} {
		_, _ = h.Write(part)
		_, _ = h.Write([]byte{0})
	}
	return "renditions/" + hex.EncodeToString(h.Sum(nil)) + "." + string(format)
}
