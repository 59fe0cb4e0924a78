package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/doctext/internal/common"
	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/source"
)

var timeNow = time.Now

func newRequestID() string { return uuid.New().String() }

// JobExporter renders the job log as a workbook.
type JobExporter interface {
	ExportJobsXLSX(ctx context.Context, limit int) ([]byte, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context, timeout time.Duration, logger *slog.Logger) error
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	MaxUploadBytes int64
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// HTTPHandler serves the REST API.
type HTTPHandler struct {
	svc       Extractor
	exporter  JobExporter
	health    HealthChecker
	cfg       HTTPConfig
	urlSchema *jsonschema.Schema
	logger    *slog.Logger
}

const urlRequestSchema = `{
	"type": "object",
	"required": ["url"],
	"additionalProperties": false,
	"properties": {
		"url":  {"type": "string", "minLength": 1, "maxLength": 2048, "pattern": "^(https?|s3)://"},
		"mime": {"type": "string", "maxLength": 255}
	}
}`

// NewHTTPHandler builds the handler. exporter and health may be nil.
func NewHTTPHandler(svc Extractor, exporter JobExporter, health HealthChecker, cfg HTTPConfig, logger *slog.Logger) (*HTTPHandler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extract_url.json", strings.NewReader(urlRequestSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("extract_url.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &HTTPHandler{svc: svc, exporter: exporter, health: health, cfg: cfg, urlSchema: schema, logger: logger}, nil
}

// Routes wires all endpoints.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.cfg.RequestTimeout))
	if len(h.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			ExposedHeaders: []string{"X-Job-Id"},
		}))
	}

	r.Get("/healthz", h.Healthz)
	r.Route("/v1", func(api chi.Router) {
		api.Post("/extract", h.ExtractFile)
		api.Post("/extract/url", h.ExtractURL)
		api.Get("/jobs", h.ListJobs)
		api.Get("/jobs/export.xlsx", h.ExportJobs)
	})
	return r
}

func (h *HTTPHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		if reqID == "" {
			reqID = newRequestID()
		}
		r = r.WithContext(common.WithRequestID(r.Context(), reqID))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := timeNow()
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", reqID,
			"duration_ms", timeNow().Sub(start).Milliseconds(),
		)
	})
}

type extractResponse struct {
	JobID    string   `json:"job_id,omitempty"`
	Text     string   `json:"text"`
	Method   string   `json:"method"`
	Pages    int      `json:"pages"`
	Language string   `json:"language,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// ExtractFile handles multipart uploads: field "file", MIME from field "mime" or the part header.
func (h *HTTPHandler) ExtractFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.writeError(w, r, err)
			return
		}
		h.writeError(w, r, common.InvalidArgumentErrorf("invalid multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, common.InvalidArgumentError("file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, extract.NewError(extract.KindIO, "read upload", err))
		return
	}
	mime := strings.TrimSpace(r.FormValue("mime"))
	if mime == "" {
		mime = header.Header.Get("Content-Type")
	}

	v := common.NewValidator().
		Field("file", data, common.Required).
		Field("mime", mime, common.Required, common.DeclaredMime)
	if err := common.ValidateAndReturnError(v); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.extract(w, r, source.LocalFile(data, mime))
}

type urlRequest struct {
	URL  string `json:"url"`
	MIME string `json:"mime"`
}

// ExtractURL handles {"url": "...", "mime": "..."}; mime defaults to application/pdf.
func (h *HTTPHandler) ExtractURL(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		h.writeError(w, r, common.InvalidArgumentError("unreadable body"))
		return
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		h.writeError(w, r, common.InvalidArgumentErrorf("invalid json: %v", err))
		return
	}
	if err := h.urlSchema.Validate(doc); err != nil {
		h.writeError(w, r, common.InvalidArgumentErrorf("json does not match schema: %v", err))
		return
	}
	var req urlRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		h.writeError(w, r, common.InvalidArgumentErrorf("invalid json: %v", err))
		return
	}
	v := common.NewValidator().Field("url", req.URL, common.RemoteURL)
	if req.MIME != "" {
		v.Field("mime", req.MIME, common.DeclaredMime)
	}
	if err := common.ValidateAndReturnError(v); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.extract(w, r, source.RemoteURL(req.URL, req.MIME))
}

func (h *HTTPHandler) extract(w http.ResponseWriter, r *http.Request, in source.Input) {
	out, err := h.svc.Extract(r.Context(), in)
	if out.JobID != uuid.Nil {
		w.Header().Set("X-Job-Id", out.JobID.String())
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := extractResponse{
		Text:     out.Result.Text,
		Method:   out.Result.Method,
		Pages:    out.Result.Pages,
		Language: out.Result.Language,
		Warnings: out.Result.Warnings,
	}
	if out.JobID != uuid.Nil {
		resp.JobID = out.JobID.String()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type jobResponse struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	MIME         string `json:"mime"`
	Status       string `json:"status"`
	Method       string `json:"method,omitempty"`
	Pages        int    `json:"pages"`
	TextBytes    int    `json:"text_bytes"`
	Warnings     int    `json:"warnings"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	StartedAt    string `json:"started_at"`
	DurationMS   int64  `json:"duration_ms"`
}

// ListJobs returns recent jobs; ?limit=N caps the count (default 100, max 1000).
func (h *HTTPHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jobs, err := h.svc.ListJobs(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobResponse{
			ID:           j.ID.String(),
			Source:       j.Source,
			MIME:         j.MIME,
			Status:       string(j.Status),
			Method:       j.Method,
			Pages:        j.Pages,
			TextBytes:    j.TextBytes,
			Warnings:     j.Warnings,
			ErrorKind:    j.ErrorKind,
			ErrorMessage: j.ErrorMessage,
			StartedAt:    j.StartedAt.UTC().Format(time.RFC3339Nano),
			DurationMS:   j.Duration().Milliseconds(),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

// ExportJobs streams the job log as an XLSX workbook.
func (h *HTTPHandler) ExportJobs(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "export not configured"})
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	data, err := h.exporter.ExportJobsXLSX(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="extract_jobs.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Healthz reports ok, or 503 when the job database is unreachable.
func (h *HTTPHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.HealthCheck(r.Context(), 2*time.Second, h.logger); err != nil {
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 100, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 1000 {
		return 0, common.InvalidArgumentError("limit must be between 1 and 1000")
	}
	return n, nil
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	resp := errorResponse{Error: err.Error(), Kind: string(extract.KindOf(err))}
	if code == http.StatusInternalServerError && resp.Kind == "" {
		resp.Error = "internal error"
	}
	if code >= 500 {
		h.logger.Error("http request failed", "path", r.URL.Path, "status", code, "error", err)
	}
	h.writeJSON(w, code, resp)
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}
