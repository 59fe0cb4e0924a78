package textextract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/ocr"
	"github.com/joseph-ayodele/doctext/internal/pdf"
	"github.com/joseph-ayodele/doctext/internal/pdf/pdftest"
	"github.com/joseph-ayodele/doctext/internal/source"
)

type harness struct {
	loader *countingLoader
	pdfs   *fakePDFs
	engine *fakeEngine
	states []State
	p      *Pipeline
}

func newHarness(pages []string, opts ...Option) *harness {
	h := &harness{
		loader: &countingLoader{inner: source.NewLoader(nil)},
		pdfs:   &fakePDFs{pages: pages},
		engine: &fakeEngine{},
	}
	opts = append(opts, WithStateHook(func(s State) { h.states = append(h.states, s) }))
	h.p = New(h.loader, h.pdfs, h.engine, nil, opts...)
	return h
}

func (h *harness) assertBalanced(t *testing.T) {
	t.Helper()
	if h.engine.opens != h.engine.closes || h.engine.doubleClose {
		t.Errorf("ocr sessions opened=%d closed=%d doubleClose=%v", h.engine.opens, h.engine.closes, h.engine.doubleClose)
	}
	if h.pdfs.opens != h.pdfs.closes {
		t.Errorf("pdf documents opened=%d closed=%d", h.pdfs.opens, h.pdfs.closes)
	}
}

func TestNativeTextLayerSkipsOCR(t *testing.T) {
	h := newHarness([]string{"Alpha", "", "Gamma"})

	res, err := h.p.Run(context.Background(), source.LocalFile([]byte("%PDF"), "application/pdf"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Text != "Alpha\n\nGamma" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Method != extract.MethodPDFText || res.Pages != 3 || res.SourceType != constants.PDF {
		t.Errorf("result = %+v", res)
	}
	if h.engine.opens != 0 || h.engine.recognitions != 0 {
		t.Errorf("ocr was invoked: opens=%d recognitions=%d", h.engine.opens, h.engine.recognitions)
	}
	want := []State{StateLoading, StateDetecting, StateNativeExtracting, StateAggregating, StateDone}
	if !reflect.DeepEqual(h.states, want) {
		t.Errorf("states = %v, want %v", h.states, want)
	}
	h.assertBalanced(t)
}

func TestOuterWhitespaceTrimmed(t *testing.T) {
	h := newHarness([]string{"", "  Jane Doe  ", ""})
	got, err := h.p.ExtractFromFile(context.Background(), []byte("%PDF"), "pdf")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "Jane Doe" {
		t.Errorf("text = %q", got)
	}
}

func TestScannedPDFUsesOneSession(t *testing.T) {
	h := newHarness([]string{"", " ", "\n\t"}, WithLanguage("eng+deu"), WithRenderScale(2))
	h.engine.fn = func(img ocr.Image) (string, error) {
		return fmt.Sprintf("page %d", pageOf(img)), nil
	}

	res, err := h.p.Run(context.Background(), source.LocalFile([]byte("%PDF"), "application/pdf"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Text != "page 1\npage 2\npage 3" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Method != extract.MethodPDFOCR || res.Language != "eng+deu" {
		t.Errorf("result = %+v", res)
	}
	if h.engine.opens != 1 || h.engine.recognitions != 3 {
		t.Errorf("opens=%d recognitions=%d", h.engine.opens, h.engine.recognitions)
	}
	if !reflect.DeepEqual(h.engine.langs, []string{"eng+deu"}) {
		t.Errorf("langs = %v", h.engine.langs)
	}
	if !reflect.DeepEqual(h.pdfs.scales, []float64{2, 2, 2}) {
		t.Errorf("render scales = %v", h.pdfs.scales)
	}
	want := []State{StateLoading, StateDetecting, StateNativeExtracting, StateRecognizing, StateAggregating, StateDone}
	if !reflect.DeepEqual(h.states, want) {
		t.Errorf("states = %v, want %v", h.states, want)
	}
	h.assertBalanced(t)
}

func TestPunctuationOnlyTextLayerCountsAsText(t *testing.T) {
	h := newHarness([]string{"", "."})
	got, err := h.p.ExtractFromFile(context.Background(), []byte("%PDF"), "application/pdf")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "." || h.engine.opens != 0 {
		t.Errorf("text=%q opens=%d", got, h.engine.opens)
	}
}

func TestPageFailuresAreNonFatal(t *testing.T) {
	h := newHarness([]string{"", "", "", ""})
	h.pdfs.renderErr = map[int]error{3: errors.New("corrupt page object")}
	h.engine.fn = func(img ocr.Image) (string, error) {
		if pageOf(img) == 2 {
			return "", errors.New("tesseract crashed")
		}
		return fmt.Sprintf("p%d", pageOf(img)), nil
	}

	res, err := h.p.Run(context.Background(), source.LocalFile([]byte("%PDF"), "application/pdf"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Text != "p1\n\n\np4" {
		t.Errorf("text = %q", res.Text)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	if !strings.Contains(res.Warnings[0], "page 2") || !strings.Contains(res.Warnings[0], string(extract.KindRecognition)) {
		t.Errorf("warning[0] = %q", res.Warnings[0])
	}
	if !strings.Contains(res.Warnings[1], "page 3") || !strings.Contains(res.Warnings[1], string(extract.KindRender)) {
		t.Errorf("warning[1] = %q", res.Warnings[1])
	}
	h.assertBalanced(t)
}

func TestSinglePageRecognitionFailureIsEmptyResult(t *testing.T) {
	h := newHarness([]string{""})
	h.engine.fn = func(ocr.Image) (string, error) { return "", errors.New("boom") }

	_, err := h.p.ExtractFromFile(context.Background(), []byte("%PDF"), "application/pdf")
	if !errors.Is(err, extract.ErrEmptyResult) {
		t.Fatalf("want EmptyResult, got %v", err)
	}
	if h.states[len(h.states)-1] != StateFailed {
		t.Errorf("final state = %v", h.states[len(h.states)-1])
	}
	h.assertBalanced(t)
}

func TestEngineInitFailureIsFatal(t *testing.T) {
	h := newHarness([]string{"", ""})
	h.engine.openErr = extract.Errorf(extract.KindEngineInit, "language %q is not installed", "eng")

	_, err := h.p.ExtractFromFile(context.Background(), []byte("%PDF"), "application/pdf")
	if !errors.Is(err, extract.ErrEngineInit) {
		t.Fatalf("want EngineInit, got %v", err)
	}
	h.assertBalanced(t)

	h.engine.openErr = errors.New("no such binary")
	_, err = h.p.ExtractFromFile(context.Background(), []byte("png"), "image/png")
	if extract.KindOf(err) != extract.KindEngineInit {
		t.Fatalf("unkinded open failure should surface as EngineInit, got %v", err)
	}
}

func TestImageUsesOneSessionAndNoParser(t *testing.T) {
	prep := &fakePreparer{}
	h := newHarness(nil, WithImagePreparer(prep))
	h.engine.fn = func(img ocr.Image) (string, error) {
		return "  " + string(img.Data) + "\n", nil
	}

	res, err := h.p.Run(context.Background(), source.LocalFile([]byte("jpeg-bytes"), "image/jpeg"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Text != "prepared:jpeg-bytes" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Method != extract.MethodImageOCR || res.Pages != 1 || res.SourceType != constants.IMAGE {
		t.Errorf("result = %+v", res)
	}
	if h.pdfs.opens != 0 {
		t.Errorf("pdf parser opened %d times", h.pdfs.opens)
	}
	if h.engine.opens != 1 || h.engine.recognitions != 1 || prep.calls != 1 {
		t.Errorf("opens=%d recognitions=%d prepares=%d", h.engine.opens, h.engine.recognitions, prep.calls)
	}
	want := []State{StateLoading, StateDetecting, StateAggregating, StateDone}
	if !reflect.DeepEqual(h.states, want) {
		t.Errorf("states = %v, want %v", h.states, want)
	}
	h.assertBalanced(t)
}

func TestImagePreparationFailureIsEmptyResult(t *testing.T) {
	prep := &fakePreparer{err: errors.New("cannot decode")}
	h := newHarness(nil, WithImagePreparer(prep))

	_, err := h.p.ExtractFromFile(context.Background(), []byte("heic"), "image/heic")
	if !errors.Is(err, extract.ErrEmptyResult) {
		t.Fatalf("want EmptyResult, got %v", err)
	}
	if h.engine.recognitions != 0 {
		t.Errorf("recognize called after preparation failed")
	}
	h.assertBalanced(t)
}

func TestUnsupportedFormatNeverLoads(t *testing.T) {
	h := newHarness([]string{"Alpha"})

	_, err := h.p.ExtractFromFile(context.Background(), []byte("PK\x03\x04"), constants.MimeDOCX)
	if !errors.Is(err, extract.ErrUnsupportedFormat) {
		t.Fatalf("want UnsupportedFormat, got %v", err)
	}
	if h.loader.calls != 0 || h.pdfs.opens != 0 || h.engine.opens != 0 {
		t.Errorf("loader=%d pdf=%d ocr=%d", h.loader.calls, h.pdfs.opens, h.engine.opens)
	}
	if !reflect.DeepEqual(h.states, []State{StateLoading, StateFailed}) {
		t.Errorf("states = %v", h.states)
	}
}

func TestLoadFailures(t *testing.T) {
	h := newHarness([]string{"Alpha"})
	_, err := h.p.ExtractFromFile(context.Background(), nil, "application/pdf")
	if !errors.Is(err, extract.ErrIO) {
		t.Fatalf("want IO, got %v", err)
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err = h.p.ExtractFromURL(context.Background(), srv.URL+"/cv.pdf")
	if !errors.Is(err, extract.ErrFetch) {
		t.Fatalf("want Fetch, got %v", err)
	}
	if h.pdfs.opens != 0 {
		t.Errorf("pdf parser reached after failed fetch")
	}
}

func TestPDFParseFailure(t *testing.T) {
	h := newHarness(nil)
	h.pdfs.openErr = errors.New("xref table broken")

	_, err := h.p.ExtractFromFile(context.Background(), []byte("nope"), "application/pdf")
	if !errors.Is(err, extract.ErrPDFParse) {
		t.Fatalf("want PdfParse, got %v", err)
	}
	if h.engine.opens != 0 {
		t.Errorf("ocr opened after parse failure")
	}
}

func TestZeroPagePDFIsEmptyResult(t *testing.T) {
	h := newHarness([]string{})
	_, err := h.p.ExtractFromFile(context.Background(), []byte("%PDF"), "application/pdf")
	if !errors.Is(err, extract.ErrEmptyResult) {
		t.Fatalf("want EmptyResult, got %v", err)
	}
	if h.engine.opens != 0 {
		t.Errorf("ocr opened for a document with no pages")
	}
	h.assertBalanced(t)
}

func TestSessionClosedWhenRecognitionPanics(t *testing.T) {
	h := newHarness([]string{"", ""})
	h.engine.fn = func(img ocr.Image) (string, error) {
		if pageOf(img) == 2 {
			panic("native crash")
		}
		return "ok", nil
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("expected panic to propagate")
			}
		}()
		_, _ = h.p.ExtractFromFile(context.Background(), []byte("%PDF"), "application/pdf")
	}()
	h.assertBalanced(t)
}

func TestSessionsBalancedAcrossFailureInjection(t *testing.T) {
	failures := []struct {
		name      string
		pages     []string
		mime      string
		renderErr map[int]error
		fn        func(ocr.Image) (string, error)
	}{
		{"all pages fail", []string{"", "", ""}, "application/pdf", nil,
			func(ocr.Image) (string, error) { return "", errors.New("x") }},
		{"last page fails", []string{"", ""}, "application/pdf", nil,
			func(img ocr.Image) (string, error) {
				if pageOf(img) == 2 {
					return "", errors.New("x")
				}
				return "text", nil
			}},
		{"render fails everywhere", []string{"", ""}, "application/pdf",
			map[int]error{1: errors.New("r"), 2: errors.New("r")}, nil},
		{"image fails", nil, "image/png", nil,
			func(ocr.Image) (string, error) { return "", errors.New("x") }},
		{"image ok", nil, "image/png", nil,
			func(ocr.Image) (string, error) { return "hi", nil }},
	}

	h := newHarness(nil)
	runs := 0
	for _, f := range failures {
		h.pdfs.pages = f.pages
		h.pdfs.renderErr = f.renderErr
		h.engine.fn = f.fn
		for i := 0; i < 3; i++ {
			_, _ = h.p.ExtractFromFile(context.Background(), []byte("data"), f.mime)
			runs++
		}
		if h.engine.opens != runs {
			t.Errorf("%s: opens=%d after %d runs", f.name, h.engine.opens, runs)
		}
		h.assertBalanced(t)
	}
}

func TestEndToEndWithPureParser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdftest.Build("Alpha", "", "Gamma"))
	}))
	defer srv.Close()

	engine := &fakeEngine{}
	p := New(source.NewLoader(nil, source.WithHTTPClient(srv.Client())), pdf.PureOpener(nil), engine, nil)

	got, err := p.ExtractFromURL(context.Background(), srv.URL+"/cv.pdf")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "Alpha\n\nGamma" {
		t.Errorf("text = %q", got)
	}
	if engine.opens != 0 {
		t.Errorf("ocr invoked for a text pdf")
	}
}
