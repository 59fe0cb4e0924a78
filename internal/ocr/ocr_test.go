package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/pdf"
)

type call struct {
	name string
	args []string
}

// fakeRunner answers --list-langs with langs and every other call with run.
type fakeRunner struct {
	mu    sync.Mutex
	langs string
	run   func(name string, args []string) ([]byte, []byte, error)
	calls []call
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name, append([]string(nil), args...)})
	f.mu.Unlock()
	if len(args) > 0 && args[0] == "--list-langs" {
		return []byte(f.langs), nil, nil
	}
	if f.run == nil {
		return nil, nil, nil
	}
	return f.run(name, args)
}

func (f *fakeRunner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

const langList = "List of available languages in \"/usr/share/tessdata/\" (2):\neng\nosd\n"

func testPage() *pdf.PixelBuffer {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.SetGray(1, 1, color.Gray{Y: 255})
	return pdf.NewPixelBuffer(img, 1)
}

func TestCLIEngineOpenRejectsMissingLanguage(t *testing.T) {
	r := &fakeRunner{langs: langList}
	eng := NewCLIEngine(Config{}, r, nil)

	_, err := eng.Open(context.Background(), "fra")
	if !errors.Is(err, extract.ErrEngineInit) {
		t.Fatalf("want EngineInit, got %v", err)
	}
	_, err = eng.Open(context.Background(), "eng+deu")
	if !errors.Is(err, extract.ErrEngineInit) {
		t.Fatalf("want EngineInit for partial match, got %v", err)
	}
}

func TestCLIEngineOpenFailsWhenBinaryMissing(t *testing.T) {
	eng := NewCLIEngine(Config{Tesseract: "/nope/tesseract"}, runnerFunc(func(string, []string) ([]byte, []byte, error) {
		return nil, []byte("not found"), errors.New("exec: not found")
	}), nil)
	if _, err := eng.Open(context.Background(), ""); !errors.Is(err, extract.ErrEngineInit) {
		t.Fatalf("want EngineInit, got %v", err)
	}
}

type runnerFunc func(name string, args []string) ([]byte, []byte, error)

func (f runnerFunc) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	return f(name, args)
}

func TestCLISessionRecognizesAndCleansUp(t *testing.T) {
	var seenPaths []string
	r := &fakeRunner{langs: langList}
	r.run = func(name string, args []string) ([]byte, []byte, error) {
		if _, err := os.Stat(args[0]); err != nil {
			t.Errorf("page image missing during recognition: %v", err)
		}
		seenPaths = append(seenPaths, args[0])
		if args[1] != "stdout" || args[2] != "-l" || args[3] != "eng" {
			t.Errorf("unexpected args %v", args)
		}
		return []byte("Jane  Doe\r\n\n\n\nEngineer\t Go\n"), nil, nil
	}
	eng := NewCLIEngine(Config{TessdataDir: "/td", PSM: 6}, r, nil)

	sess, err := eng.Open(context.Background(), "eng")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	txt, err := sess.Recognize(context.Background(), FromPixels(testPage()))
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if txt != "Jane Doe\n\nEngineer Go" {
		t.Errorf("text = %q", txt)
	}
	if _, err := sess.Recognize(context.Background(), FromBytes([]byte("jpegdata"), "image/jpeg")); err != nil {
		t.Fatalf("recognize bytes: %v", err)
	}
	if !strings.HasSuffix(seenPaths[1], ".jpg") {
		t.Errorf("jpeg written as %s", seenPaths[1])
	}
	last := r.calls[len(r.calls)-1].args
	if !strings.Contains(strings.Join(last, " "), "--tessdata-dir /td --psm 6") {
		t.Errorf("missing tessdata/psm args: %v", last)
	}

	dir := filepath.Dir(seenPaths[0])
	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("scratch dir %s survived close", dir)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := sess.Recognize(context.Background(), FromPixels(testPage())); !errors.Is(err, extract.ErrRecognition) {
		t.Errorf("recognize after close: %v", err)
	}
}

func TestCLISessionRecognitionFailure(t *testing.T) {
	r := &fakeRunner{langs: langList}
	r.run = func(string, []string) ([]byte, []byte, error) {
		return nil, []byte("Error in pixReadStream"), errors.New("exit status 1")
	}
	sess, err := NewCLIEngine(Config{}, r, nil).Open(context.Background(), "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	_, err = sess.Recognize(context.Background(), FromBytes([]byte("x"), "image/png"))
	if !errors.Is(err, extract.ErrRecognition) {
		t.Fatalf("want Recognition, got %v", err)
	}
	if !strings.Contains(err.Error(), "pixReadStream") {
		t.Errorf("stderr not surfaced: %v", err)
	}
	if _, err := sess.Recognize(context.Background(), Image{}); !errors.Is(err, extract.ErrRecognition) {
		t.Errorf("empty image: %v", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"  \n\n ", ""},
		{"a\r\nb", "a\nb"},
		{"a\t\tb   c", "a b c"},
		{"a\n\n\n\n\nb", "a\n\nb"},
		{"head\n-----\nbody\f", "head\n\nbody"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func sampleImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.Set(x, y, color.RGBA{R: uint8(80 * x), G: 40, B: 200, A: 255})
		}
	}
	return img
}

func TestPreparerReencodesDecodableFormats(t *testing.T) {
	var bmpBuf, tiffBuf bytes.Buffer
	if err := bmp.Encode(&bmpBuf, sampleImage()); err != nil {
		t.Fatal(err)
	}
	if err := tiff.Encode(&tiffBuf, sampleImage(), nil); err != nil {
		t.Fatal(err)
	}
	p := NewPreparer(Config{}, &fakeRunner{}, nil)

	for mime, data := range map[string][]byte{"image/bmp": bmpBuf.Bytes(), "image/tiff": tiffBuf.Bytes()} {
		out, err := p.Prepare(context.Background(), FromBytes(data, mime))
		if err != nil {
			t.Fatalf("%s: %v", mime, err)
		}
		if out.MIME != "image/png" {
			t.Errorf("%s: mime = %s", mime, out.MIME)
		}
		cfg, err := png.DecodeConfig(bytes.NewReader(out.Data))
		if err != nil || cfg.Width != 3 || cfg.Height != 2 {
			t.Errorf("%s: decoded %+v, %v", mime, cfg, err)
		}
	}

	if _, err := p.Prepare(context.Background(), FromBytes([]byte("junk"), "image/webp")); !errors.Is(err, extract.ErrRecognition) {
		t.Errorf("bad webp: %v", err)
	}
	in := FromBytes([]byte("jpeg"), "image/jpeg")
	out, err := p.Prepare(context.Background(), in)
	if err != nil || !bytes.Equal(out.Data, in.Data) {
		t.Errorf("jpeg should pass through: %v", err)
	}
}

func TestPreparerConvertsHEICWithCache(t *testing.T) {
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, sampleImage()); err != nil {
		t.Fatal(err)
	}
	r := &fakeRunner{}
	r.run = func(name string, args []string) ([]byte, []byte, error) {
		if name != "magick" {
			t.Errorf("converter = %s", name)
		}
		return nil, nil, os.WriteFile(args[len(args)-1], pngBuf.Bytes(), 0o600)
	}
	cache := t.TempDir()
	p := NewPreparer(Config{HeicConverter: "magick", ArtifactCacheDir: cache}, r, nil)

	for i := 0; i < 2; i++ {
		out, err := p.Prepare(context.Background(), FromBytes([]byte("heic-bytes"), "image/heic"))
		if err != nil {
			t.Fatalf("prepare %d: %v", i, err)
		}
		if !bytes.Equal(out.Data, pngBuf.Bytes()) || out.MIME != "image/png" {
			t.Fatalf("prepare %d returned unexpected image", i)
		}
	}
	if n := r.count("magick"); n != 1 {
		t.Errorf("converter ran %d times, want 1 (second call cached)", n)
	}
	entries, _ := os.ReadDir(cache)
	if len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), ".png") {
		t.Errorf("cache entries = %v", entries)
	}

	bad := NewPreparer(Config{HeicConverter: "paint"}, r, nil)
	if _, err := bad.Prepare(context.Background(), FromBytes([]byte("x"), "image/heif")); !errors.Is(err, extract.ErrRecognition) {
		t.Errorf("unknown converter: %v", err)
	}
}
