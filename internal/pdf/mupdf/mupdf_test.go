package mupdf

import (
	"errors"
	"testing"

	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/pdf/pdftest"
)

func TestOpenReadsTextAndRenders(t *testing.T) {
	doc, err := Open(pdftest.Build("Alpha beta", "", "Gamma"))
	if err != nil {
		t.Skipf("mupdf unavailable: %v", err)
	}
	defer doc.Close()

	if doc.PageCount() != 3 {
		t.Fatalf("pages = %d, want 3", doc.PageCount())
	}
	got, err := doc.PageText(1)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if got != "Alpha beta" {
		t.Errorf("page 1 = %q", got)
	}
	if got, _ := doc.PageText(2); got != "" {
		t.Errorf("page 2 = %q, want empty", got)
	}

	buf, err := doc.RenderPage(1, 1.0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if buf.Width < 600 || buf.Width > 620 || buf.Height < 780 || buf.Height > 800 {
		t.Errorf("unexpected size %dx%d for a letter page at 72 dpi", buf.Width, buf.Height)
	}
	half, err := doc.RenderPage(1, 0.5)
	if err != nil {
		t.Fatalf("render half: %v", err)
	}
	if half.Width >= buf.Width {
		t.Errorf("scale 0.5 width %d not smaller than %d", half.Width, buf.Width)
	}
}

func TestPageTextJoinsRunsWithSpaces(t *testing.T) {
	tests := []struct {
		name string
		runs []pdftest.Run
		want string
	}{
		{"same baseline", []pdftest.Run{{X: 72, Y: 700, Text: "Jane"}, {X: 200, Y: 700, Text: "Doe"}}, "Jane Doe"},
		{"lower run first", []pdftest.Run{{X: 72, Y: 100, Text: "Second"}, {X: 72, Y: 700, Text: "First"}}, "Second First"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Open(pdftest.BuildRuns(tt.runs))
			if err != nil {
				t.Skipf("mupdf unavailable: %v", err)
			}
			defer doc.Close()
			got, err := doc.PageText(1)
			if err != nil {
				t.Fatalf("page 1: %v", err)
			}
			if got != tt.want {
				t.Errorf("PageText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	_, err := Open([]byte("definitely not a pdf"))
	if !errors.Is(err, extract.ErrPDFParse) {
		t.Fatalf("want PdfParse error, got %v", err)
	}
	_, err = Open(nil)
	if !errors.Is(err, extract.ErrPDFParse) {
		t.Fatalf("want PdfParse error for empty input, got %v", err)
	}
}

func TestPageBoundsAndClose(t *testing.T) {
	doc, err := Open(pdftest.Build("one"))
	if err != nil {
		t.Skipf("mupdf unavailable: %v", err)
	}
	if _, err := doc.PageText(0); !errors.Is(err, extract.ErrPDFParse) {
		t.Errorf("page 0: %v", err)
	}
	if _, err := doc.RenderPage(2, 1); !errors.Is(err, extract.ErrRender) {
		t.Errorf("page 2 render: %v", err)
	}
	if err := doc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := doc.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := doc.RenderPage(1, 1); !errors.Is(err, extract.ErrRender) {
		t.Errorf("render after close: %v", err)
	}
}
