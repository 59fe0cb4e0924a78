package pdf

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"sync"

	ledongpdf "github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/doctext/internal/extract"
)

// PureOpener reads text layers with the pure-Go ledongthuc/pdf parser. Rendering is
// delegated to a Document opened lazily by raster on the same bytes; the two are
// closed together. A nil raster makes every RenderPage fail with a Render error.
func PureOpener(raster Opener) Opener {
	return OpenerFunc(func(data []byte) (Document, error) {
		return openPure(data, raster)
	})
}

type pureDocument struct {
	data   []byte
	reader *ledongpdf.Reader
	pages  int
	raster Opener

	mu       sync.Mutex
	rendered Document
	closed   bool
}

func openPure(data []byte, raster Opener) (doc Document, err error) {
	if len(data) == 0 {
		return nil, extract.NewError(extract.KindPDFParse, "empty pdf stream", nil)
	}
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = extract.NewError(extract.KindPDFParse, "open pdf", fmt.Errorf("parser panic: %v", r))
		}
	}()
	rdr, err := ledongpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, extract.NewError(extract.KindPDFParse, "open pdf", err)
	}
	return &pureDocument{data: data, reader: rdr, pages: rdr.NumPage(), raster: raster}, nil
}

func (d *pureDocument) PageCount() int { return d.pages }

func (d *pureDocument) PageText(page int) (text string, err error) {
	if err := checkPage(extract.KindPDFParse, page, d.pages); err != nil {
		return "", err
	}
	defer func() {
		if r := recover(); r != nil {
			err = extract.Errorf(extract.KindPDFParse, "page %d: parser panic: %v", page, r)
		}
	}()
	p := d.reader.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	return JoinRuns(contentRuns(p.Content().Text)), nil
}

// runGap is the offset, as a fraction of the font size, beyond which the next
// glyph is taken to start a new run.
const runGap = 0.25

// contentRuns groups glyphs into runs in content-stream order. A run ends where
// the next glyph does not continue from the previous one's advance, or at the
// line break the parser emits after each TJ array.
func contentRuns(glyphs []ledongpdf.Text) []string {
	var (
		runs []string
		cur  strings.Builder
		prev *ledongpdf.Text
	)
	flush := func() {
		if cur.Len() > 0 {
			runs = append(runs, cur.String())
			cur.Reset()
		}
		prev = nil
	}
	for i := range glyphs {
		g := &glyphs[i]
		if g.S == "\n" {
			flush()
			continue
		}
		if prev != nil && !continues(prev, g) {
			flush()
		}
		cur.WriteString(g.S)
		prev = g
	}
	flush()
	return runs
}

func continues(prev, next *ledongpdf.Text) bool {
	tol := runGap * math.Max(math.Abs(prev.FontSize), 1)
	if math.Abs(next.Y-prev.Y) > tol {
		return false
	}
	return math.Abs(next.X-(prev.X+prev.W)) <= tol
}

func (d *pureDocument) RenderPage(page int, scale float64) (*PixelBuffer, error) {
	if err := checkPage(extract.KindRender, page, d.pages); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, extract.Errorf(extract.KindRender, "page %d: document closed", page)
	}
	if d.raster == nil {
		return nil, extract.Errorf(extract.KindRender, "page %d: no rasterizer configured", page)
	}
	if d.rendered == nil {
		r, err := d.raster.Open(d.data)
		if err != nil {
			return nil, extract.NewError(extract.KindRender, "open rasterizer", err)
		}
		d.rendered = r
	}
	return d.rendered.RenderPage(page, scale)
}

func (d *pureDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.rendered != nil {
		return d.rendered.Close()
	}
	return nil
}
