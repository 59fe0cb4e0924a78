// Package gosseract runs recognition in-process through libtesseract.
package gosseract

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/ocr"
)

// Engine holds one gosseract.Client per session.
type Engine struct {
	tessdataDir string
	language    string
	logger      *slog.Logger
}

// New creates an engine. tessdataDir may be empty to use libtesseract's default lookup.
func New(cfg ocr.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	return &Engine{tessdataDir: cfg.TessdataDir, language: lang, logger: logger}
}

func (e *Engine) Open(_ context.Context, lang string) (ocr.Session, error) {
	if lang == "" {
		lang = e.language
	}
	langs := strings.Split(lang, "+")
	available, err := e.availableLanguages()
	if err != nil {
		return nil, extract.NewError(extract.KindEngineInit, "list tesseract languages", err)
	}
	for _, l := range langs {
		if _, ok := available[l]; !ok {
			return nil, extract.Errorf(extract.KindEngineInit, "language %q is not installed", l)
		}
	}

	client := gosseract.NewClient()
	if e.tessdataDir != "" {
		client.SetTessdataPrefix(e.tessdataDir)
	}
	if err := client.SetLanguage(langs...); err != nil {
		_ = client.Close()
		return nil, extract.NewError(extract.KindEngineInit, "set language", err)
	}
	e.logger.Debug("ocr session opened", "engine", "gosseract", "lang", lang)
	return &session{client: client, logger: e.logger}, nil
}

func (e *Engine) availableLanguages() (map[string]struct{}, error) {
	var names []string
	if e.tessdataDir != "" {
		matches, err := filepath.Glob(filepath.Join(e.tessdataDir, "*.traineddata"))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			if _, err := os.Stat(e.tessdataDir); err != nil {
				return nil, err
			}
		}
		for _, m := range matches {
			names = append(names, strings.TrimSuffix(filepath.Base(m), ".traineddata"))
		}
	} else {
		langs, err := gosseract.GetAvailableLanguages()
		if err != nil {
			return nil, err
		}
		names = langs
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out, nil
}

type session struct {
	mu     sync.Mutex
	client *gosseract.Client
	logger *slog.Logger
	pages  int
	closed bool
}

func (s *session) Recognize(_ context.Context, img ocr.Image) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", extract.Errorf(extract.KindRecognition, "session closed")
	}
	data, err := img.Encoded()
	if err != nil {
		return "", extract.NewError(extract.KindRecognition, "encode image", err)
	}
	s.pages++
	if err := s.client.SetImageFromBytes(data); err != nil {
		return "", extract.NewError(extract.KindRecognition, "set image", err)
	}
	text, err := s.client.Text()
	if err != nil {
		return "", extract.NewError(extract.KindRecognition, "recognize text", err)
	}
	return ocr.Normalize(text), nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("ocr session closed", "engine", "gosseract", "pages", s.pages)
	return s.client.Close()
}
