// Package pdf defines the open-document handle the extraction pipeline reads
// text layers from and rasterizes scanned pages with.
package pdf

import (
	"bytes"
	"image"
	"image/png"
	"strings"

	"github.com/joseph-ayodele/doctext/internal/extract"
)

// Document is one open PDF. Pages are 1-based and only valid until Close.
// A Document is not safe for concurrent page access.
type Document interface {
	PageCount() int
	// PageText returns the page's text runs, trimmed and joined with single spaces,
	// in the order the parser reports them.
	PageText(page int) (string, error)
	// RenderPage rasterizes one page at scale (1.0 = 72 DPI).
	RenderPage(page int, scale float64) (*PixelBuffer, error)
	Close() error
}

// Opener parses a byte stream into a Document. Failures are PdfParse errors.
type Opener interface {
	Open(data []byte) (Document, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(data []byte) (Document, error)

func (f OpenerFunc) Open(data []byte) (Document, error) { return f(data) }

// PixelBuffer holds one rendered page. It is handed to an OCR session and dropped.
type PixelBuffer struct {
	Width  int
	Height int
	Scale  float64
	Image  image.Image
}

// NewPixelBuffer wraps a rendered image.
func NewPixelBuffer(img image.Image, scale float64) *PixelBuffer {
	b := img.Bounds()
	return &PixelBuffer{Width: b.Dx(), Height: b.Dy(), Scale: scale, Image: img}
}

// PNG encodes the buffer for engines that consume encoded images.
func (p *PixelBuffer) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, p.Image); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JoinRuns trims each run, drops blank ones and joins the rest with one space.
func JoinRuns(runs []string) string {
	out := make([]string, 0, len(runs))
	for _, r := range runs {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return strings.Join(out, " ")
}

func checkPage(kind extract.Kind, page, count int) error {
	if page < 1 || page > count {
		return extract.Errorf(kind, "page %d out of range 1..%d", page, count)
	}
	return nil
}
