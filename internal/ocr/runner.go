package ocr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner executes external tools (tesseract, HEIC converters). Tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// NewExecRunner runs commands with os/exec. env entries ("KEY=value") are appended to the
// process environment of every command.
func NewExecRunner(logger *slog.Logger, env ...string) Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return execRunner{logger: logger, env: env}
}

type execRunner struct {
	logger *slog.Logger
	env    []string
}

const maxLoggedStderr = 8 << 10

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	attrs := []any{
		"cmd", name,
		"args", strings.Join(args, " "),
		"duration_ms", time.Since(start).Milliseconds(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		r.logger.Debug("ocr.exec.ok", append(attrs, "stdout_bytes", stdout.Len(), "stderr_bytes", stderr.Len())...)
	case errors.Is(err, exec.ErrNotFound):
		r.logger.Error("ocr.exec.not_found", append(attrs, "error", err)...)
	case ctx.Err() != nil:
		r.logger.Warn("ocr.exec.canceled", append(attrs, "error", ctx.Err())...)
	case errors.As(err, &exitErr):
		r.logger.Error("ocr.exec.failed", append(attrs,
			"exit_code", exitErr.ExitCode(),
			"stderr", truncate(stderr.String(), maxLoggedStderr),
		)...)
	default:
		r.logger.Error("ocr.exec.failed", append(attrs, "error", err)...)
	}

	return stdout.Bytes(), stderr.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
