// Package ocr defines scoped recognition sessions and the tesseract CLI engine.
package ocr

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/doctext/internal/pdf"
)

// Engine opens recognition sessions for a language ("eng", "eng+deu").
// A language the engine cannot load is an EngineInit error.
type Engine interface {
	Open(ctx context.Context, lang string) (Session, error)
}

// Session is one initialized recognizer. Recognize calls are serialized; Close releases
// native or on-disk state and must run exactly once on every path.
type Session interface {
	Recognize(ctx context.Context, img Image) (string, error)
	Close() error
}

// Image is either a rendered page or an encoded image as uploaded.
type Image struct {
	Pixels *pdf.PixelBuffer
	Data   []byte
	MIME   string
}

// FromPixels wraps a rendered page.
func FromPixels(p *pdf.PixelBuffer) Image { return Image{Pixels: p, MIME: "image/png"} }

// FromBytes wraps encoded image bytes with their declared MIME.
func FromBytes(data []byte, mime string) Image { return Image{Data: data, MIME: mime} }

// Encoded returns bytes an engine can read: the raw data, or the page encoded as PNG.
func (im Image) Encoded() ([]byte, error) {
	if im.Pixels != nil {
		return im.Pixels.PNG()
	}
	if len(im.Data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	return im.Data, nil
}

// Config configures the engines and image preparation.
type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	Language      string // default "eng"
	TessdataDir   string
	PSM           int    // e.g., 6 is good for uniform block of text; 0 leaves tesseract's default
	HeicConverter string // "heif-convert" | "magick" | "sips"

	ArtifactCacheDir string
}

func (c Config) withDefaults() Config {
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Language == "" {
		c.Language = "eng"
	}
	return c
}
