package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joseph-ayodele/doctext/internal/extract"
)

// CLIEngine recognizes through the tesseract binary. Each session owns a scratch
// directory where pages are written before tesseract reads them.
type CLIEngine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// NewCLIEngine creates a tesseract CLI engine. A nil runner runs real commands.
func NewCLIEngine(cfg Config, runner Runner, logger *slog.Logger) *CLIEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &CLIEngine{cfg: cfg.withDefaults(), runner: runner, logger: logger}
}

// Open checks that every requested language is installed, then allocates the session.
func (e *CLIEngine) Open(ctx context.Context, lang string) (Session, error) {
	if lang == "" {
		lang = e.cfg.Language
	}
	available, err := e.listLanguages(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range strings.Split(lang, "+") {
		if _, ok := available[l]; !ok {
			return nil, extract.Errorf(extract.KindEngineInit, "language %q is not installed", l)
		}
	}

	dir, err := os.MkdirTemp("", "doctext-ocr-*")
	if err != nil {
		return nil, extract.NewError(extract.KindEngineInit, "create scratch dir", err)
	}
	e.logger.Debug("ocr session opened", "engine", "cli", "lang", lang, "dir", dir)
	return &cliSession{engine: e, lang: lang, dir: dir}, nil
}

func (e *CLIEngine) listLanguages(ctx context.Context) (map[string]struct{}, error) {
	args := []string{"--list-langs"}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return nil, extract.NewError(extract.KindEngineInit,
			fmt.Sprintf("%s --list-langs: %s", e.cfg.Tesseract, truncate(strings.TrimSpace(string(errb)), 512)), err)
	}
	// tesseract 3 printed the list on stderr
	langs := make(map[string]struct{})
	for _, ln := range strings.Split(string(out)+"\n"+string(errb), "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "List of available languages") {
			continue
		}
		langs[ln] = struct{}{}
	}
	return langs, nil
}

type cliSession struct {
	engine *CLIEngine
	lang   string
	dir    string

	mu     sync.Mutex
	seq    int
	closed bool
}

func (s *cliSession) Recognize(ctx context.Context, img Image) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", extract.Errorf(extract.KindRecognition, "session closed")
	}

	data, err := img.Encoded()
	if err != nil {
		return "", extract.NewError(extract.KindRecognition, "encode image", err)
	}
	s.seq++
	path := filepath.Join(s.dir, fmt.Sprintf("page-%04d%s", s.seq, extFor(img.MIME)))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", extract.NewError(extract.KindRecognition, "write page image", err)
	}
	defer func() { _ = os.Remove(path) }()

	cfg := s.engine.cfg
	// tesseract <file> stdout -l <lang>
	args := []string{path, "stdout", "-l", s.lang}
	if cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", cfg.TessdataDir)
	}
	if cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(cfg.PSM))
	}
	out, errb, err := s.engine.runner.Run(ctx, cfg.Tesseract, args...)
	if err != nil {
		return "", extract.NewError(extract.KindRecognition,
			"tesseract: "+truncate(strings.TrimSpace(string(errb)), 512), err)
	}
	return Normalize(string(out)), nil
}

func (s *cliSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.engine.logger.Debug("ocr session closed", "engine", "cli", "pages", s.seq)
	return os.RemoveAll(s.dir)
}

func extFor(mime string) string {
	switch strings.ToLower(mime) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/tiff":
		return ".tif"
	case "image/bmp":
		return ".bmp"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".img"
}
