// Package source resolves a document input (bytes already in memory, or a URL) into
// one immutable byte buffer tagged with its declared MIME type.
package source

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/extract"
)

// Input is exactly one of a local buffer or a remote URL.
type Input struct {
	data []byte
	url  string
	mime string
}

// LocalFile wraps bytes the caller already holds.
func LocalFile(data []byte, declaredMime string) Input {
	return Input{data: data, mime: declaredMime}
}

// RemoteURL names a document to fetch. Without an explicit MIME it is declared a PDF.
func RemoteURL(rawURL string, declaredMime ...string) Input {
	in := Input{url: rawURL, mime: constants.MimePDF}
	if len(declaredMime) > 0 && strings.TrimSpace(declaredMime[0]) != "" {
		in.mime = declaredMime[0]
	}
	return in
}

// IsRemote reports whether the input must be fetched.
func (in Input) IsRemote() bool { return in.url != "" }

// URL is the remote location, or "" for local input.
func (in Input) URL() string { return in.url }

// DeclaredMime is the MIME the caller asserted.
func (in Input) DeclaredMime() string { return in.mime }

// Describe is a short label for logs and the job log.
func (in Input) Describe() string {
	if in.IsRemote() {
		return in.url
	}
	return "upload"
}

// Loaded is the resolved document. Callers must not mutate Data.
type Loaded struct {
	Data []byte
	MIME string
}

// ObjectGetter fetches s3://bucket/key objects.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Loader resolves inputs. Remote fetches are single attempts; failures are Fetch errors.
type Loader struct {
	client   *http.Client
	objects  ObjectGetter
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithObjectGetter enables s3:// URLs.
func WithObjectGetter(g ObjectGetter) Option {
	return func(l *Loader) { l.objects = g }
}

// WithMaxBytes caps remote bodies; 0 disables the cap.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) { l.maxBytes = n }
}

// NewLoader creates a Loader with a 30s HTTP client.
func NewLoader(logger *slog.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxBytes: 50 << 20,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the input's bytes. Local input is used as-is; empty buffers are IO errors.
func (l *Loader) Load(ctx context.Context, in Input) (Loaded, error) {
	if !in.IsRemote() {
		if len(in.data) == 0 {
			return Loaded{}, extract.NewError(extract.KindIO, "empty input buffer", nil)
		}
		return Loaded{Data: in.data, MIME: in.mime}, nil
	}

	u, err := url.Parse(strings.TrimSpace(in.url))
	if err != nil {
		return Loaded{}, extract.NewError(extract.KindFetch, "parse url", err)
	}

	var data []byte
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		data, err = l.fetchHTTP(ctx, u.String())
	case "s3":
		data, err = l.fetchS3(ctx, u)
	default:
		return Loaded{}, extract.Errorf(extract.KindFetch, "unsupported url scheme %q", u.Scheme)
	}
	if err != nil {
		return Loaded{}, err
	}
	if len(data) == 0 {
		return Loaded{}, extract.Errorf(extract.KindFetch, "empty response body from %s", u.Redacted())
	}
	return Loaded{Data: data, MIME: in.mime}, nil
}
