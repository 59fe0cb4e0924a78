package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/bootstrap"
	"github.com/joseph-ayodele/doctext/internal/common"
	"github.com/joseph-ayodele/doctext/internal/ocr"
)

// runocr forces OCR on every page of a document, ignoring any text layer, and prints
// each page's recognized text. Useful for judging scan quality and tessdata choices.
func main() {
	cfg := common.LoadConfig()
	logger := bootstrap.NewLogger(cfg.LogLevel)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <file>")
		os.Exit(2)
	}
	path := os.Args[1]
	mime := constants.MimeForExt(filepath.Ext(path))
	format := constants.MapMimeToFormat(mime)
	if format == "" {
		logger.Error("unsupported file type", "path", path, "mime", mime)
		os.Exit(2)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ocrCfg := ocr.Config{
		Tesseract:        cfg.OCR.Tesseract,
		Language:         cfg.OCR.Language,
		TessdataDir:      cfg.OCR.TessdataDir,
		HeicConverter:    cfg.OCR.HeicConverter,
		ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
	}
	runner := ocr.NewExecRunner(logger, bootstrap.TesseractEnv...)
	engine := bootstrap.NewEngine(cfg.OCR.Engine, ocrCfg, runner, logger)

	sess, err := engine.Open(ctx, cfg.OCR.Language)
	if err != nil {
		logger.Error("open ocr session", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("close ocr session", "error", cerr)
		}
	}()

	start := time.Now()
	pages := 0
	if format == constants.IMAGE {
		img, err := ocr.NewPreparer(ocrCfg, runner, logger).Prepare(ctx, ocr.FromBytes(data, mime))
		if err != nil {
			logger.Error("prepare image", "error", err)
			os.Exit(1)
		}
		text, err := sess.Recognize(ctx, img)
		if err != nil {
			logger.Error("recognize", "error", err)
			os.Exit(1)
		}
		pages = 1
		fmt.Printf("=== page 1 ===\n%s\n", text)
	} else {
		doc, err := bootstrap.NewPDFOpener(cfg.PDF.TextBackend).Open(data)
		if err != nil {
			logger.Error("open pdf", "error", err)
			os.Exit(1)
		}
		defer doc.Close()

		for page := 1; page <= doc.PageCount(); page++ {
			pb, err := doc.RenderPage(page, cfg.PDF.RenderScale)
			if err != nil {
				logger.Warn("render failed", "page", page, "error", err)
				continue
			}
			text, err := sess.Recognize(ctx, ocr.FromPixels(pb))
			if err != nil {
				logger.Warn("recognition failed", "page", page, "error", err)
				continue
			}
			pages++
			fmt.Printf("=== page %d (%dx%d) ===\n%s\n", page, pb.Width, pb.Height, text)
		}
	}

	logger.Info("ocr complete",
		"path", path,
		"engine", cfg.OCR.Engine,
		"pages", pages,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
