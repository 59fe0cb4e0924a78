package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/extract"
)

// Preparer turns uploaded images into something every engine reads: HEIC/HEIF goes
// through the configured converter, webp/bmp/tiff are decoded and re-encoded as PNG,
// everything else passes through untouched.
type Preparer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// NewPreparer creates a Preparer. A nil runner runs real commands.
func NewPreparer(cfg Config, runner Runner, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &Preparer{cfg: cfg, runner: runner, logger: logger}
}

// Prepare returns img unchanged or converted to PNG. Failures are Recognition errors:
// an image nothing can decode contributes no text.
func (p *Preparer) Prepare(ctx context.Context, img Image) (Image, error) {
	if img.Pixels != nil {
		return img, nil
	}
	mime := constants.NormalizeMime(img.MIME)
	if constants.IsHEICMime(mime) {
		out, err := convertHEICtoPNG(ctx, p.runner, p.logger, p.cfg.HeicConverter, img.Data, p.cfg.ArtifactCacheDir)
		if err != nil {
			return img, extract.NewError(extract.KindRecognition, "convert heic", err)
		}
		return FromBytes(out, "image/png"), nil
	}

	var decode func([]byte) (image.Image, error)
	switch mime {
	case "image/webp":
		decode = func(b []byte) (image.Image, error) { return webp.Decode(bytes.NewReader(b)) }
	case "image/bmp", "image/x-ms-bmp":
		decode = func(b []byte) (image.Image, error) { return bmp.Decode(bytes.NewReader(b)) }
	case "image/tiff":
		decode = func(b []byte) (image.Image, error) { return tiff.Decode(bytes.NewReader(b)) }
	default:
		return img, nil
	}

	decoded, err := decode(img.Data)
	if err != nil {
		return img, extract.NewError(extract.KindRecognition, fmt.Sprintf("decode %s", mime), err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return img, extract.NewError(extract.KindRecognition, "encode png", err)
	}
	p.logger.Debug("image re-encoded", "from", mime, "to", "image/png", "bytes", buf.Len())
	return FromBytes(buf.Bytes(), "image/png"), nil
}
