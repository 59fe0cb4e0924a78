package extract

import (
	"context"
	"time"
)

// Method names the strategy that produced the text.
const (
	MethodPDFText  = "pdf-text"
	MethodPDFOCR   = "pdf-ocr"
	MethodImageOCR = "image-ocr"
)

// TextExtractor is the public surface consumed by upload handlers: document in, text out.
type TextExtractor interface {
	ExtractFromFile(ctx context.Context, data []byte, declaredMime string) (string, error)
	ExtractFromURL(ctx context.Context, url string) (string, error)
}

// Result is the extracted text plus how it was obtained.
type Result struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | constants.IMAGE
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr"
	Language   string
	Duration   time.Duration
	Warnings   []string
}
