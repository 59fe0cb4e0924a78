// Package mupdf serves text layers and page rasters from one MuPDF document.
package mupdf

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/pdf"
)

const baseDPI = 72.0

// Opener opens documents with MuPDF.
func Opener() pdf.Opener {
	return pdf.OpenerFunc(Open)
}

// Open parses data with MuPDF. The returned Document owns a native handle until Close.
func Open(data []byte) (pdf.Document, error) {
	if len(data) == 0 {
		return nil, extract.NewError(extract.KindPDFParse, "empty pdf stream", nil)
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, extract.NewError(extract.KindPDFParse, "open pdf", err)
	}
	return &document{doc: doc, pages: doc.NumPage()}, nil
}

type document struct {
	mu     sync.Mutex
	doc    *fitz.Document
	pages  int
	closed bool
}

func (d *document) PageCount() int { return d.pages }

// PageText treats each non-blank line MuPDF reports as one text run.
func (d *document) PageText(page int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(extract.KindPDFParse, page); err != nil {
		return "", err
	}
	txt, err := d.doc.Text(page - 1)
	if err != nil {
		return "", extract.NewError(extract.KindPDFParse, fmt.Sprintf("page %d text", page), err)
	}
	return pdf.JoinRuns(strings.Split(txt, "\n")), nil
}

func (d *document) RenderPage(page int, scale float64) (*pdf.PixelBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(extract.KindRender, page); err != nil {
		return nil, err
	}
	if scale <= 0 {
		return nil, extract.Errorf(extract.KindRender, "page %d: invalid scale %v", page, scale)
	}
	img, err := d.doc.ImageDPI(page-1, baseDPI*scale)
	if err != nil {
		return nil, extract.NewError(extract.KindRender, fmt.Sprintf("render page %d", page), err)
	}
	return pdf.NewPixelBuffer(img, scale), nil
}

func (d *document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}

func (d *document) check(kind extract.Kind, page int) error {
	if d.closed {
		return extract.Errorf(kind, "page %d: document closed", page)
	}
	if page < 1 || page > d.pages {
		return extract.Errorf(kind, "page %d out of range 1..%d", page, d.pages)
	}
	return nil
}
