// Package bootstrap wires configuration into a ready-to-use extraction stack.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joseph-ayodele/doctext/internal/common"
	"github.com/joseph-ayodele/doctext/internal/export"
	"github.com/joseph-ayodele/doctext/internal/ocr"
	"github.com/joseph-ayodele/doctext/internal/ocr/gosseract"
	"github.com/joseph-ayodele/doctext/internal/pdf"
	"github.com/joseph-ayodele/doctext/internal/pdf/mupdf"
	"github.com/joseph-ayodele/doctext/internal/pipeline/textextract"
	repo "github.com/joseph-ayodele/doctext/internal/repository"
	"github.com/joseph-ayodele/doctext/internal/services/extraction"
	"github.com/joseph-ayodele/doctext/internal/source"
)

// TesseractEnv limits each tesseract process to one OpenMP thread; parallelism comes from
// running several sessions at once.
var TesseractEnv = []string{"OMP_THREAD_LIMIT=1"}

// InMemoryDSN keeps the job log for the lifetime of the process only.
const InMemoryDSN = "file:doctext?mode=memory&cache=shared"

// Options adjusts what Build wires.
type Options struct {
	InMemoryDB bool // use an in-memory sqlite job log regardless of DB_DRIVER
	NoJobLog   bool // skip the database entirely
}

// App is the wired extraction stack.
type App struct {
	Config   *common.Config
	DB       *repo.DB // nil when the job log is disabled
	Jobs     repo.ExtractJobRepository
	Pipeline *textextract.Pipeline
	Service  *extraction.Service
	Exporter *export.Service
	logger   *slog.Logger
}

// NewLogger returns the JSON slog logger every binary uses.
func NewLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// Build opens the job log and assembles the pipeline described by cfg.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{Config: cfg, logger: logger}

	if !opts.NoJobLog {
		dbCfg := repo.Config{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.DSN,
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        1,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			DialTimeout:     cfg.Database.DialTimeout,
		}
		if opts.InMemoryDB {
			dbCfg.Driver, dbCfg.DSN = repo.DriverSQLite, InMemoryDSN
		}
		db, err := repo.Open(ctx, dbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("open job log: %w", err)
		}
		app.DB = db
		app.Jobs = repo.NewExtractJobRepository(db, logger)
	}

	loader := newLoader(ctx, cfg.Fetch, logger)

	ocrCfg := ocr.Config{
		Tesseract:        cfg.OCR.Tesseract,
		Language:         cfg.OCR.Language,
		TessdataDir:      cfg.OCR.TessdataDir,
		HeicConverter:    cfg.OCR.HeicConverter,
		ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
	}
	runner := ocr.NewExecRunner(logger, TesseractEnv...)

	app.Pipeline = textextract.New(
		loader,
		NewPDFOpener(cfg.PDF.TextBackend),
		NewEngine(cfg.OCR.Engine, ocrCfg, runner, logger),
		logger,
		textextract.WithLanguage(cfg.OCR.Language),
		textextract.WithRenderScale(cfg.PDF.RenderScale),
		textextract.WithImagePreparer(ocr.NewPreparer(ocrCfg, runner, logger)),
	)
	app.Service = extraction.NewService(app.Pipeline, app.Jobs, logger)
	if app.Jobs != nil {
		app.Exporter = export.NewService(app.Jobs, logger)
	}

	logger.Info("extraction stack ready",
		"ocr_engine", cfg.OCR.Engine,
		"pdf_backend", cfg.PDF.TextBackend,
		"language", cfg.OCR.Language,
		"job_log", app.DB != nil,
	)
	return app, nil
}

// Close releases the job log.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close(a.logger)
		a.DB = nil
	}
}

// NewPDFOpener selects the text-layer backend. The pure backend still rasterizes with MuPDF.
func NewPDFOpener(backend string) pdf.Opener {
	if strings.EqualFold(backend, "pure") {
		return pdf.PureOpener(mupdf.Opener())
	}
	return mupdf.Opener()
}

// NewEngine selects the OCR engine.
func NewEngine(kind string, cfg ocr.Config, runner ocr.Runner, logger *slog.Logger) ocr.Engine {
	if strings.EqualFold(kind, "gosseract") {
		return gosseract.New(cfg, logger)
	}
	return ocr.NewCLIEngine(cfg, runner, logger)
}

func newLoader(ctx context.Context, cfg common.FetchConfig, logger *slog.Logger) *source.Loader {
	opts := []source.Option{
		source.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		source.WithMaxBytes(cfg.MaxBytes),
	}
	s3c, err := source.NewS3Client(ctx, source.S3Options{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Endpoint:        cfg.S3Endpoint,
	})
	if err != nil {
		// s3:// inputs then fail with a Fetch error; http(s) keeps working
		logger.Warn("s3 client unavailable", "error", err)
	} else {
		opts = append(opts, source.WithObjectGetter(s3c))
	}
	return source.NewLoader(logger, opts...)
}
