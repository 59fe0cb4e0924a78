package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/async"
	"github.com/joseph-ayodele/doctext/internal/bootstrap"
	"github.com/joseph-ayodele/doctext/internal/common"
	"github.com/joseph-ayodele/doctext/internal/ingest"
	"github.com/joseph-ayodele/doctext/internal/server"
	"github.com/joseph-ayodele/doctext/internal/source"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

type flags struct {
	mime     string
	dir      string
	watch    bool
	out      string
	export   string
	exts     string
	workers  int
	inmem    bool
	noJobLog bool
	remote   string
}

func main() {
	var f flags
	flag.StringVar(&f.mime, "mime", "", "declared MIME type (default: inferred from the file extension; application/pdf for URLs)")
	flag.StringVar(&f.dir, "dir", "", "extract every supported document under this directory")
	flag.BoolVar(&f.watch, "watch", false, "with -dir, keep running and extract files as they appear")
	flag.StringVar(&f.out, "out", "", "with -dir, write <name>.txt files here (default: next to each document)")
	flag.StringVar(&f.export, "export", "", "write the job log to this XLSX file when done")
	flag.StringVar(&f.exts, "ext", "", "comma-separated extensions to pick up with -dir (default: all supported)")
	flag.IntVar(&f.workers, "workers", 0, "parallel extractions with -dir (default: BATCH_WORKERS)")
	flag.BoolVar(&f.inmem, "inmem", false, "keep the job log in memory")
	flag.BoolVar(&f.noJobLog, "no-job-log", false, "do not record jobs")
	flag.StringVar(&f.remote, "server", "", "send the document to a doctextd gRPC address instead of extracting locally")
	flag.Parse()

	target := flag.Arg(0)
	if f.dir == "" && target == "" {
		printError("usage: doctext [flags] <file|url>\n       doctext [flags] -dir <directory>\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if f.watch && f.dir == "" {
		printError("Error: -watch requires -dir\n")
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	logger := bootstrap.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.remote != "" {
		if err := extractRemote(ctx, f, target); err != nil {
			printError("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{InMemoryDB: f.inmem, NoJobLog: f.noJobLog})
	if err != nil {
		logger.Error("failed to build extraction stack", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	code := 0
	if f.dir != "" {
		code = runBatch(ctx, app, f, logger)
	} else if err := extractOne(ctx, app, f, target); err != nil {
		printError("Error: %v\n", err)
		code = 1
	}

	if f.export != "" {
		if err := writeExport(context.WithoutCancel(ctx), app, f.export); err != nil {
			logger.Error("failed to export job log", "path", f.export, "error", err)
			code = 1
		} else {
			logger.Info("exported job log", "path", f.export)
		}
	}
	if code != 0 {
		app.Close()
		os.Exit(code)
	}
}

func isURL(s string) bool {
	return strings.Contains(s, "://")
}

func inputFor(target, mime string) (source.Input, error) {
	if isURL(target) {
		return source.RemoteURL(target, mime), nil
	}
	if mime == "" {
		mime = constants.MimeForExt(filepath.Ext(target))
	}
	return source.ReadFile(target, mime)
}

func extractOne(ctx context.Context, app *bootstrap.App, f flags, target string) error {
	in, err := inputFor(target, f.mime)
	if err != nil {
		return err
	}
	out, err := app.Service.Extract(ctx, in)
	if err != nil {
		return err
	}
	for _, w := range out.Result.Warnings {
		printError("warning: %s\n", w)
	}
	fmt.Println(out.Result.Text)
	return nil
}

func extractRemote(ctx context.Context, f flags, target string) error {
	conn, err := grpc.NewClient(f.remote, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.remote, err)
	}
	defer conn.Close()
	client := server.NewExtractorClient(conn)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	var text string
	if isURL(target) {
		text, err = client.ExtractFromURL(ctx, target)
	} else {
		data, rerr := os.ReadFile(target)
		if rerr != nil {
			return rerr
		}
		mime := f.mime
		if mime == "" {
			mime = constants.MimeForExt(filepath.Ext(target))
		}
		text, err = client.ExtractFromFile(ctx, data, mime)
	}
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func runBatch(ctx context.Context, app *bootstrap.App, f flags, logger *slog.Logger) int {
	workers := f.workers
	if workers <= 0 {
		workers = app.Config.Batch.Workers
	}
	if f.out != "" {
		if err := os.MkdirAll(f.out, 0o755); err != nil {
			logger.Error("failed to create output directory", "path", f.out, "error", err)
			return 1
		}
	}

	var ok, failed atomic.Int32
	queue := async.NewWorkerQueue(func(ctx context.Context, job async.Job) error {
		if err := extractToFile(ctx, app, job, f.out); err != nil {
			failed.Add(1)
			return err
		}
		ok.Add(1)
		return nil
	}, logger,
		async.WithWorkers(workers),
		async.WithQueueSize(workers*4),
		async.WithProcessTimeout(app.Config.Batch.Timeout),
	)

	enqueue := func(c ingest.Candidate) error {
		return queue.Enqueue(ctx, async.Job{Path: c.Path, MIME: c.MIME, TraceID: uuid.NewString()})
	}

	var includeExts []string
	if f.exts != "" {
		includeExts = strings.Split(f.exts, ",")
	}

	var runErr error
	if f.watch {
		runErr = watch(ctx, f.dir, includeExts, enqueue, logger)
	} else {
		var stats ingest.DirStats
		stats, runErr = ingest.ScanDirectory(ctx, f.dir, ingest.ScanOptions{
			IncludeExts: includeExts,
			SkipHidden:  true,
			Dedupe:      true,
		}, enqueue)
		logger.Info("directory scanned",
			"root", f.dir,
			"scanned", stats.Scanned,
			"matched", stats.Matched,
			"deduplicated", stats.Deduplicated,
			"failed", stats.Failed,
		)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), app.Config.Batch.Timeout)
	defer cancel()
	if err := queue.Shutdown(drainCtx); err != nil {
		logger.Warn("batch did not drain", "error", err)
	}

	logger.Info("batch complete", "succeeded", ok.Load(), "failed", failed.Load())
	if runErr != nil && ctx.Err() == nil {
		logger.Error("batch stopped", "error", runErr)
		return 1
	}
	if failed.Load() > 0 {
		return 1
	}
	return 0
}

func watch(ctx context.Context, root string, includeExts []string, enqueue func(ingest.Candidate) error, logger *slog.Logger) error {
	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{root},
		IncludeExts: includeExts,
		InitialScan: true,
		Debounce:    500 * time.Millisecond,
	}, logger)
	if err != nil {
		return err
	}
	logger.Info("watching for documents", "root", root)
	for {
		select {
		case c, ok := <-events:
			if !ok {
				return nil
			}
			if err := enqueue(c); err != nil {
				return err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watch error", "error", err)
		}
	}
}

func extractToFile(ctx context.Context, app *bootstrap.App, job async.Job, outDir string) error {
	in, err := source.ReadFile(job.Path, job.MIME)
	if err != nil {
		return err
	}
	out, err := app.Service.Extract(ctx, in)
	if err != nil {
		return err
	}
	dest := job.Path + ".txt"
	if outDir != "" {
		dest = filepath.Join(outDir, filepath.Base(job.Path)+".txt")
	}
	return os.WriteFile(dest, []byte(out.Result.Text+"\n"), 0o644)
}

func writeExport(ctx context.Context, app *bootstrap.App, path string) error {
	if app.Exporter == nil {
		return fmt.Errorf("job log is disabled")
	}
	data, err := app.Exporter.ExportJobsXLSX(ctx, 0)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
