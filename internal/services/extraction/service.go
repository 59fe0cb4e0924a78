package extraction

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/repository"
	"github.com/joseph-ayodele/doctext/internal/source"
)

// Runner runs one extraction.
type Runner interface {
	Run(ctx context.Context, in source.Input) (extract.Result, error)
}

// Service wraps the pipeline with the extract_job log. Log writes never change the outcome.
type Service struct {
	runner Runner
	jobs   repository.ExtractJobRepository
	logger *slog.Logger
}

var _ extract.TextExtractor = (*Service)(nil)

// NewService creates a new extraction service. jobs may be nil to disable the job log.
func NewService(runner Runner, jobs repository.ExtractJobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, jobs: jobs, logger: logger}
}

// Outcome is an extraction plus the job that recorded it.
type Outcome struct {
	JobID  uuid.UUID // uuid.Nil when the job log is disabled or failed
	Result extract.Result
}

// Extract runs the pipeline and records the job.
func (s *Service) Extract(ctx context.Context, in source.Input) (Outcome, error) {
	jobID := s.startJob(ctx, in)

	res, err := s.runner.Run(ctx, in)
	if err != nil {
		s.finishFailure(ctx, jobID, err)
		return Outcome{JobID: jobID, Result: res}, err
	}
	s.finishSuccess(ctx, jobID, res)
	return Outcome{JobID: jobID, Result: res}, nil
}

// ExtractFromFile extracts text from an in-memory document.
func (s *Service) ExtractFromFile(ctx context.Context, data []byte, declaredMime string) (string, error) {
	out, err := s.Extract(ctx, source.LocalFile(data, declaredMime))
	return out.Result.Text, err
}

// ExtractFromURL fetches and extracts a PDF.
func (s *Service) ExtractFromURL(ctx context.Context, url string) (string, error) {
	out, err := s.Extract(ctx, source.RemoteURL(url))
	return out.Result.Text, err
}

// ListJobs returns recent jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, limit int) ([]*repository.ExtractJob, error) {
	if s.jobs == nil {
		return nil, nil
	}
	return s.jobs.List(ctx, limit)
}

func (s *Service) startJob(ctx context.Context, in source.Input) uuid.UUID {
	if s.jobs == nil {
		return uuid.Nil
	}
	job, err := s.jobs.Start(ctx, in.Describe(), in.DeclaredMime())
	if err != nil {
		s.logger.Warn("extraction job log unavailable", "source", in.Describe(), "error", err)
		return uuid.Nil
	}
	return job.ID
}

func (s *Service) finishSuccess(ctx context.Context, jobID uuid.UUID, res extract.Result) {
	if s.jobs == nil || jobID == uuid.Nil {
		return
	}
	if err := s.jobs.FinishSuccess(ctx, jobID, res); err != nil {
		s.logger.Warn("extraction job not finalized", "job_id", jobID, "error", err)
	}
}

func (s *Service) finishFailure(ctx context.Context, jobID uuid.UUID, cause error) {
	if s.jobs == nil || jobID == uuid.Nil {
		return
	}
	// record the failure even when the caller's context is already done
	ctx = context.WithoutCancel(ctx)
	if err := s.jobs.FinishFailure(ctx, jobID, extract.KindOf(cause), cause.Error()); err != nil {
		s.logger.Warn("extraction job not finalized", "job_id", jobID, "error", err)
	}
}
