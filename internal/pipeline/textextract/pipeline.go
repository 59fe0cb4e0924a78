// Package textextract turns one document (PDF, image, or PDF URL) into a single
// trimmed string, reading the PDF text layer when there is one and falling back to
// page-by-page OCR when there is not.
package textextract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/ocr"
	"github.com/joseph-ayodele/doctext/internal/pdf"
	"github.com/joseph-ayodele/doctext/internal/source"
)

// Loader resolves an input into bytes.
type Loader interface {
	Load(ctx context.Context, in source.Input) (source.Loaded, error)
}

// ImagePreparer converts uploaded images into a format the engine reads.
type ImagePreparer interface {
	Prepare(ctx context.Context, img ocr.Image) (ocr.Image, error)
}

// Pipeline is safe for concurrent use: every Run owns its document and OCR session.
type Pipeline struct {
	loader  Loader
	pdfs    pdf.Opener
	engine  ocr.Engine
	prepare ImagePreparer
	lang    string
	scale   float64
	logger  *slog.Logger
	onState func(State)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLanguage sets the OCR language, "eng" by default.
func WithLanguage(lang string) Option {
	return func(p *Pipeline) {
		if lang != "" {
			p.lang = lang
		}
	}
}

// WithRenderScale sets the rasterization scale used for every page of a scanned PDF.
func WithRenderScale(scale float64) Option {
	return func(p *Pipeline) {
		if scale > 0 {
			p.scale = scale
		}
	}
}

// WithImagePreparer converts uploaded images before recognition.
func WithImagePreparer(ip ImagePreparer) Option {
	return func(p *Pipeline) { p.prepare = ip }
}

// WithStateHook is called on every state transition.
func WithStateHook(fn func(State)) Option {
	return func(p *Pipeline) { p.onState = fn }
}

// New creates a Pipeline.
func New(loader Loader, pdfs pdf.Opener, engine ocr.Engine, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		loader: loader,
		pdfs:   pdfs,
		engine: engine,
		lang:   "eng",
		scale:  1.0,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExtractFromFile extracts text from bytes the caller already holds.
func (p *Pipeline) ExtractFromFile(ctx context.Context, data []byte, declaredMime string) (string, error) {
	res, err := p.Run(ctx, source.LocalFile(data, declaredMime))
	return res.Text, err
}

// ExtractFromURL fetches a PDF and extracts its text.
func (p *Pipeline) ExtractFromURL(ctx context.Context, url string) (string, error) {
	res, err := p.Run(ctx, source.RemoteURL(url))
	return res.Text, err
}

// run carries one extraction through the state machine.
type run struct {
	in     source.Input
	format string
	loaded source.Loaded
	doc    pdf.Document
	texts  []string
	res    extract.Result
	err    error
}

// Run extracts text and reports how. Only fatal errors are returned; page-local
// render and recognition failures end up in Result.Warnings.
func (p *Pipeline) Run(ctx context.Context, in source.Input) (extract.Result, error) {
	start := time.Now()
	r := &run{in: in}
	defer func() {
		if r.doc != nil {
			if err := r.doc.Close(); err != nil {
				p.logger.Warn("textextract.pdf.close_error", "error", err)
			}
		}
	}()

	state := StateLoading
	for state != StateDone && state != StateFailed {
		p.enter(state)
		switch state {
		case StateLoading:
			state = p.load(ctx, r)
		case StateDetecting:
			state = p.detect(ctx, r)
		case StateNativeExtracting:
			state = p.extractNative(r)
		case StateRecognizing:
			state = p.recognizePages(ctx, r)
		case StateAggregating:
			state = p.aggregate(r)
		default:
			r.err = fmt.Errorf("unexpected state %s", state)
			state = StateFailed
		}
	}
	p.enter(state)

	r.res.Duration = time.Since(start)
	if r.err != nil {
		p.logger.Error("textextract.failed",
			"source", in.Describe(),
			"mime", in.DeclaredMime(),
			"kind", extract.KindOf(r.err),
			"error", r.err,
			"duration_ms", r.res.Duration.Milliseconds(),
		)
		return extract.Result{Warnings: r.res.Warnings, Duration: r.res.Duration}, r.err
	}
	p.logger.Info("textextract.ok",
		"source", in.Describe(),
		"method", r.res.Method,
		"pages", r.res.Pages,
		"chars", len(r.res.Text),
		"warnings", len(r.res.Warnings),
		"duration_ms", r.res.Duration.Milliseconds(),
	)
	return r.res, nil
}

func (p *Pipeline) enter(s State) {
	p.logger.Debug("textextract.state", "state", s.String())
	if p.onState != nil {
		p.onState(s)
	}
}

func (r *run) fail(err error) State {
	r.err = err
	return StateFailed
}

func (r *run) warn(p *Pipeline, msg string, page int, err error) {
	p.logger.Warn(msg, "page", page, "kind", extract.KindOf(err), "error", err)
	r.res.Warnings = append(r.res.Warnings, fmt.Sprintf("page %d: %v", page, err))
}

// load rejects unsupported declared types before any bytes are fetched or parsed.
func (p *Pipeline) load(ctx context.Context, r *run) State {
	r.format = constants.MapMimeToFormat(r.in.DeclaredMime())
	if r.format == "" {
		return r.fail(extract.Errorf(extract.KindUnsupportedFormat,
			"format %q not supported by this extractor", r.in.DeclaredMime()))
	}
	loaded, err := p.loader.Load(ctx, r.in)
	if err != nil {
		return r.fail(extract.Wrap(extract.KindIO, "load input", err))
	}
	r.loaded = loaded
	return StateDetecting
}

func (p *Pipeline) detect(ctx context.Context, r *run) State {
	switch r.format {
	case constants.IMAGE:
		r.res.SourceType = constants.IMAGE
		return p.recognizeImage(ctx, r)
	case constants.PDF:
		r.res.SourceType = constants.PDF
		doc, err := p.pdfs.Open(r.loaded.Data)
		if err != nil {
			return r.fail(extract.Wrap(extract.KindPDFParse, "open pdf", err))
		}
		r.doc = doc
		r.res.Pages = doc.PageCount()
		return StateNativeExtracting
	}
	return r.fail(extract.Errorf(extract.KindUnsupportedFormat, "format %q not supported by this extractor", r.in.DeclaredMime()))
}

func (p *Pipeline) extractNative(r *run) State {
	if r.res.Pages == 0 {
		return r.fail(extract.Errorf(extract.KindEmptyResult, "pdf has no pages"))
	}
	texts := make([]string, 0, r.res.Pages)
	for page := 1; page <= r.res.Pages; page++ {
		txt, err := r.doc.PageText(page)
		if err != nil {
			r.warn(p, "textextract.pdf.page_text_error", page, err)
			txt = ""
		}
		texts = append(texts, txt)
	}
	if needsOCR(strings.Join(texts, "\n")) {
		p.logger.Info("textextract.pdf.no_text_layer", "pages", r.res.Pages)
		return StateRecognizing
	}
	r.texts = texts
	r.res.Method = extract.MethodPDFText
	return StateAggregating
}

// recognizePages renders and recognizes every page in order with one session,
// closed before leaving the state on every path.
func (p *Pipeline) recognizePages(ctx context.Context, r *run) State {
	sess, err := p.engine.Open(ctx, p.lang)
	if err != nil {
		return r.fail(extract.Wrap(extract.KindEngineInit, "open ocr session", err))
	}
	defer p.closeSession(sess, r)

	r.res.Method = extract.MethodPDFOCR
	r.res.Language = p.lang
	r.texts = make([]string, 0, r.res.Pages)
	for page := 1; page <= r.res.Pages; page++ {
		buf, err := r.doc.RenderPage(page, p.scale)
		if err != nil {
			r.warn(p, "textextract.ocr.render_error", page, extract.Wrap(extract.KindRender, "render", err))
			r.texts = append(r.texts, "")
			continue
		}
		txt, err := sess.Recognize(ctx, ocr.FromPixels(buf))
		if err != nil {
			r.warn(p, "textextract.ocr.recognition_error", page, extract.Wrap(extract.KindRecognition, "recognize", err))
			r.texts = append(r.texts, "")
			continue
		}
		r.texts = append(r.texts, txt)
	}
	return StateAggregating
}

// recognizeImage sends the image bytes through one session and one recognition.
func (p *Pipeline) recognizeImage(ctx context.Context, r *run) State {
	sess, err := p.engine.Open(ctx, p.lang)
	if err != nil {
		return r.fail(extract.Wrap(extract.KindEngineInit, "open ocr session", err))
	}
	defer p.closeSession(sess, r)

	r.res.Method = extract.MethodImageOCR
	r.res.Language = p.lang
	r.res.Pages = 1
	r.texts = []string{""}

	img := ocr.FromBytes(r.loaded.Data, r.loaded.MIME)
	if p.prepare != nil {
		prepared, err := p.prepare.Prepare(ctx, img)
		if err != nil {
			r.warn(p, "textextract.ocr.prepare_error", 1, extract.Wrap(extract.KindRecognition, "prepare image", err))
			return StateAggregating
		}
		img = prepared
	}
	txt, err := sess.Recognize(ctx, img)
	if err != nil {
		r.warn(p, "textextract.ocr.recognition_error", 1, extract.Wrap(extract.KindRecognition, "recognize", err))
		return StateAggregating
	}
	r.texts[0] = txt
	return StateAggregating
}

func (p *Pipeline) closeSession(sess ocr.Session, r *run) {
	if err := sess.Close(); err != nil {
		p.logger.Warn("textextract.ocr.close_error", "error", err)
		r.res.Warnings = append(r.res.Warnings, fmt.Sprintf("close ocr session: %v", err))
	}
}

func (p *Pipeline) aggregate(r *run) State {
	text := trimmed(strings.Join(r.texts, "\n"))
	if text == "" {
		return r.fail(extract.Errorf(extract.KindEmptyResult, "no text recognized in %d page(s)", len(r.texts)))
	}
	r.res.Text = text
	return StateDone
}

func trimmed(s string) string { return strings.TrimSpace(s) }
