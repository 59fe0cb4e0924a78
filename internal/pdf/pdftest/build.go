// Package pdftest builds small, well-formed PDFs for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Run is one string drawn in 12pt Helvetica with its baseline origin at X, Y.
type Run struct {
	X, Y float64
	Text string
}

// Build returns a PDF with one Letter-size page per entry. A non-empty entry is drawn
// as a single Helvetica line; an empty entry yields a page with no text layer.
func Build(pages ...string) []byte {
	runs := make([][]Run, len(pages))
	for i, text := range pages {
		if text != "" {
			runs[i] = []Run{{X: 72, Y: 720, Text: text}}
		}
	}
	return BuildRuns(runs...)
}

// BuildRuns returns a PDF with one Letter-size page per entry. Runs are written to
// the content stream in the order given, each with its own text matrix, so the
// stream order need not match the reading order on the page.
func BuildRuns(pages ...[]Run) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	// 1 catalog, 2 page tree, 3 font, then (page, content) pairs
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, runs := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		var content string
		if len(runs) > 0 {
			var sb strings.Builder
			sb.WriteString("BT /F1 12 Tf")
			for _, r := range runs {
				fmt.Fprintf(&sb, " 1 0 0 1 %g %g Tm (%s) Tj", r.X, r.Y, escape(r.Text))
			}
			sb.WriteString(" ET")
			content = sb.String()
		}
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
