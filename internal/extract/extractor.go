// Package extract normalizes raw uploads into clean text plus any images
// found inside the document. It never writes to storage.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrPayloadTooLarge = errors.New("extract: payload exceeds maximum upload size")
	ErrUnsupportedType = errors.New("extract: unsupported file type")
	ErrEmptyContent    = errors.New("extract: no usable text content")
	ErrOCRFailure      = errors.New("extract: ocr provider failed")
)

// ImageCandidate is an image located inside a document during extraction.
// Candidates without a caption are retained but cannot be embedded.
type ImageCandidate struct {
	Data    []byte
	Caption string
}

// PageText is one page of a structured document.
type PageText struct {
	PageNumber int
	Text       string
}

// Content is the result of a successful extraction.
type Content struct {
	Text   string
	Images []ImageCandidate
	Pages  []PageText // nil when the source has no page structure
}

// OCRResult is what an external OCR provider returns for a scanned or
// structured document.
type OCRResult struct {
	Text   string
	Pages  []PageText
	Images []ImageCandidate
}

// OCRProvider is the capability the extractor requires for scanned and
// structured formats. The concrete provider is external.
type OCRProvider interface {
	Process(ctx context.Context, data []byte) (*OCRResult, error)
}

// Extensions routed to the OCR provider when one is configured.
var ocrExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".tiff": true,
}

type Extractor struct {
	maxSize int64
	allowed map[string]bool
	ocr     OCRProvider // nil disables OCR-only types
}

func New(maxSize int64, allowedFormats []string, ocr OCRProvider) *Extractor {
	allowed := make(map[string]bool, len(allowedFormats))
	for _, f := range allowedFormats {
		allowed[strings.ToLower(f)] = true
	}
	return &Extractor{maxSize: maxSize, allowed: allowed, ocr: ocr}
}

// Supported reports whether a filename passes the type policy.
func (e *Extractor) Supported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return e.allowed[ext] || (e.ocr != nil && ocrExtensions[ext])
}

// Extract normalizes an upload. Size policy is enforced before anything else.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename string) (*Content, error) {
	if e.maxSize > 0 && int64(len(data)) > e.maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".html" || ext == ".htm":
		if !e.allowed[ext] {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
		}
		return e.extractHTML(data)
	case e.allowed[ext]:
		return e.extractPlainText(data)
	case e.ocr != nil && ocrExtensions[ext]:
		return e.extractOCR(ctx, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
}

func (e *Extractor) extractPlainText(data []byte) (*Content, error) {
	text := sanitize(string(data))
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}
	return &Content{Text: text}, nil
}

func (e *Extractor) extractOCR(ctx context.Context, data []byte) (*Content, error) {
	result, err := e.ocr.Process(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOCRFailure, err)
	}

	text := result.Text
	if text == "" && len(result.Pages) > 0 {
		// Collapse the page array to a synthetic full text
		parts := make([]string, 0, len(result.Pages))
		for _, p := range result.Pages {
			parts = append(parts, p.Text)
		}
		text = strings.Join(parts, "\n\n")
	}

	text = sanitize(text)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}

	return &Content{
		Text:   text,
		Images: result.Images,
		Pages:  result.Pages,
	}, nil
}

// sanitize drops NUL and non-printing control characters while keeping tab,
// newline and carriage return.
func sanitize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			sb.WriteRune(r)
		case r < 0x20 || r == 0x7F:
			// 0x00-0x08, 0x0B-0x0C, 0x0E-0x1F and DEL are stripped
		case r == 0xFFFD:
			// invalid UTF-8 replacement
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
