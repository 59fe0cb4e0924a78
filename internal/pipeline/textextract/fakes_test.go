package textextract

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/ocr"
	"github.com/joseph-ayodele/doctext/internal/pdf"
	"github.com/joseph-ayodele/doctext/internal/source"
)

type countingLoader struct {
	inner Loader
	calls int
}

func (l *countingLoader) Load(ctx context.Context, in source.Input) (source.Loaded, error) {
	l.calls++
	return l.inner.Load(ctx, in)
}

// fakePDFs opens every byte stream as a document with the configured pages.
type fakePDFs struct {
	pages     []string
	renderErr map[int]error
	openErr   error

	opens, closes int
	scales        []float64
}

func (f *fakePDFs) Open([]byte) (pdf.Document, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	return &fakeDoc{f: f}, nil
}

type fakeDoc struct {
	f      *fakePDFs
	closed bool
}

func (d *fakeDoc) PageCount() int { return len(d.f.pages) }

func (d *fakeDoc) PageText(page int) (string, error) {
	if d.closed {
		return "", errors.New("closed")
	}
	return d.f.pages[page-1], nil
}

func (d *fakeDoc) RenderPage(page int, scale float64) (*pdf.PixelBuffer, error) {
	if d.closed {
		return nil, errors.New("closed")
	}
	d.f.scales = append(d.f.scales, scale)
	if err := d.f.renderErr[page]; err != nil {
		return nil, err
	}
	img := image.NewGray(image.Rect(0, 0, page, 1)) // width encodes the page number
	return pdf.NewPixelBuffer(img, scale), nil
}

func (d *fakeDoc) Close() error {
	d.closed = true
	d.f.closes++
	return nil
}

// fakeEngine recognizes through fn; it tracks sessions so tests can assert
// that every opened session is closed exactly once.
type fakeEngine struct {
	mu      sync.Mutex
	openErr error
	fn      func(img ocr.Image) (string, error)

	opens, closes, recognitions int
	langs                       []string
	doubleClose                 bool
}

func (e *fakeEngine) Open(_ context.Context, lang string) (ocr.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.opens++
	e.langs = append(e.langs, lang)
	return &fakeSession{e: e}, nil
}

type fakeSession struct {
	e      *fakeEngine
	closed bool
}

func (s *fakeSession) Recognize(_ context.Context, img ocr.Image) (string, error) {
	s.e.mu.Lock()
	s.e.recognitions++
	fn := s.e.fn
	s.e.mu.Unlock()
	if s.closed {
		return "", extract.Errorf(extract.KindRecognition, "session closed")
	}
	if fn == nil {
		return "", nil
	}
	return fn(img)
}

func (s *fakeSession) Close() error {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	if s.closed {
		s.e.doubleClose = true
	}
	s.closed = true
	s.e.closes++
	return nil
}

// pageOf recovers the page number encoded by fakeDoc.RenderPage.
func pageOf(img ocr.Image) int {
	if img.Pixels == nil {
		return 0
	}
	return img.Pixels.Width
}

type fakePreparer struct {
	calls int
	err   error
}

func (p *fakePreparer) Prepare(_ context.Context, img ocr.Image) (ocr.Image, error) {
	p.calls++
	if p.err != nil {
		return img, p.err
	}
	return ocr.FromBytes(append([]byte("prepared:"), img.Data...), "image/png"), nil
}
