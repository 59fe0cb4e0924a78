package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// convertHEICtoPNG converts HEIC/HEIF bytes to PNG with an external converter.
// When cacheDir is set the PNG is persisted (and reused) at {cacheDir}/{sha256}.png.
func convertHEICtoPNG(
	ctx context.Context,
	r Runner,
	logger *slog.Logger,
	converter string,
	data []byte,
	cacheDir string,
) ([]byte, error) {
	sum := sha256.Sum256(data)
	hashHex := hex.EncodeToString(sum[:])

	var cached string
	if cacheDir != "" {
		cached = filepath.Join(cacheDir, hashHex+".png")
		if png, err := os.ReadFile(cached); err == nil && len(png) > 0 {
			logger.Debug("using cached heic->png", "cache", cached)
			return png, nil
		}
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, err
		}
	}

	tmpDir, err := os.MkdirTemp("", "doctext-heic-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	in := filepath.Join(tmpDir, "in.heic")
	out := filepath.Join(tmpDir, "out.png")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	switch converter {
	case "heif-convert":
		if _, errb, err2 := r.Run(ctx, "heif-convert", in, out); err2 != nil {
			return nil, fmt.Errorf("heif-convert failed: %w: %s", err2, truncate(string(errb), 512))
		}
	case "magick":
		if _, errb, err2 := r.Run(ctx, "magick", in, out); err2 != nil {
			return nil, fmt.Errorf("magick convert failed: %w: %s", err2, truncate(string(errb), 512))
		}
	case "sips":
		if _, errb, err2 := r.Run(ctx, "sips", "-s", "format", "png", in, "--out", out); err2 != nil {
			return nil, fmt.Errorf("sips convert failed: %w: %s", err2, truncate(string(errb), 512))
		}
	default:
		return nil, fmt.Errorf("HEIC not supported: set HEIC_CONVERTER to one of: heif-convert | magick | sips")
	}

	png, err := os.ReadFile(out)
	if err != nil || len(png) == 0 {
		return nil, fmt.Errorf("HEIC conversion produced no output: %v", err)
	}

	if cached != "" {
		// write then rename so concurrent readers never see a partial file
		tmp := cached + ".tmp-" + filepath.Base(tmpDir)
		if err := os.WriteFile(tmp, png, 0o644); err != nil {
			logger.Warn("failed to cache heic->png", "cache", cached, "error", err)
		} else if err := os.Rename(tmp, cached); err != nil {
			_ = os.Remove(tmp)
			logger.Warn("failed to cache heic->png", "cache", cached, "error", err)
		} else {
			logger.Debug("cached heic->png", "cache", cached)
		}
	}
	return png, nil
}
