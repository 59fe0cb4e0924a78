package source

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/doctext/internal/extract"
)

// fetchHTTP issues one GET. Non-2xx, transport and read failures are Fetch errors.
func (l *Loader) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	reqID := uuid.New().String()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		l.logger.Error("source.http.build_request_error", "req_id", reqID, "error", err)
		return nil, extract.NewError(extract.KindFetch, "build request", err)
	}

	l.logger.Info("source.http.request", "req_id", reqID, "url", req.URL.Redacted())

	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.Error("source.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, extract.NewError(extract.KindFetch, "GET "+req.URL.Redacted(), err)
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			l.logger.Warn("source.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	if resp.StatusCode/100 != 2 {
		l.logger.Warn("source.http.non_2xx", "req_id", reqID, "status", resp.StatusCode)
		return nil, extract.Errorf(extract.KindFetch, "GET %s: non-2xx status: %d", req.URL.Redacted(), resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if l.maxBytes > 0 {
		body = io.LimitReader(resp.Body, l.maxBytes+1)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, extract.NewError(extract.KindFetch, "read body", err)
	}
	if l.maxBytes > 0 && int64(len(raw)) > l.maxBytes {
		return nil, extract.Errorf(extract.KindFetch, "body exceeds %d bytes", l.maxBytes)
	}

	l.logger.Info("source.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return raw, nil
}
