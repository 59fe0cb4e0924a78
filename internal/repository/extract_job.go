package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/common"
	"github.com/joseph-ayodele/doctext/internal/extract"
)

// ExtractJob is one row of the extraction log. The extracted text itself is not stored.
type ExtractJob struct {
	ID           uuid.UUID
	Source       string
	MIME         string
	Status       constants.JobStatus
	Method       string
	Pages        int
	TextBytes    int
	Language     string
	Warnings     int
	ErrorKind    string
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Duration is zero while the job is running.
func (j *ExtractJob) Duration() time.Duration {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

type ExtractJobRepository interface {
	Start(ctx context.Context, source, mime string) (*ExtractJob, error)
	FinishSuccess(ctx context.Context, jobID uuid.UUID, res extract.Result) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, kind extract.Kind, message string) error
	GetByID(ctx context.Context, jobID uuid.UUID) (*ExtractJob, error)
	List(ctx context.Context, limit int) ([]*ExtractJob, error)
}

type extractJobRepo struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

func NewExtractJobRepository(db *DB, log *slog.Logger) ExtractJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &extractJobRepo{db: db, log: log, now: time.Now}
}

func (r *extractJobRepo) Start(ctx context.Context, source, mime string) (*ExtractJob, error) {
	job := &ExtractJob{
		ID:        uuid.New(),
		Source:    source,
		MIME:      mime,
		Status:    constants.JobStatusRunning,
		StartedAt: r.now().UTC().Truncate(time.Millisecond),
	}
	_, err := r.db.ExecContext(ctx, r.db.rebind(
		`INSERT INTO extract_job (id, source, mime, status, started_at) VALUES (?, ?, ?, ?, ?)`),
		job.ID.String(), job.Source, job.MIME, string(job.Status), job.StartedAt.UnixMilli())
	if err != nil {
		r.log.Error("extract_job start failed", "source", source, "err", err)
		return nil, common.DatabaseError("start extract_job", err)
	}
	r.log.Info("extract_job started", "job_id", job.ID, "source", source, "mime", mime)
	return job, nil
}

func (r *extractJobRepo) FinishSuccess(ctx context.Context, jobID uuid.UUID, res extract.Result) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE extract_job
		    SET status = ?, method = ?, pages = ?, text_bytes = ?, language = ?, warnings = ?, finished_at = ?
		  WHERE id = ?`),
		string(constants.JobStatusOK), res.Method, res.Pages, len(res.Text), res.Language, len(res.Warnings),
		r.now().UTC().UnixMilli(), jobID.String())
	if err != nil {
		r.log.Error("extract_job finish(OK) failed", "job_id", jobID, "err", err)
		return common.DatabaseError("finish extract_job", err)
	}
	r.log.Info("extract_job finished (OK)", "job_id", jobID, "method", res.Method, "pages", res.Pages)
	return nil
}

func (r *extractJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, kind extract.Kind, message string) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE extract_job SET status = ?, error_kind = ?, error_message = ?, finished_at = ? WHERE id = ?`),
		string(constants.JobStatusFailed), string(kind), message, r.now().UTC().UnixMilli(), jobID.String())
	if err != nil {
		r.log.Error("extract_job finish(FAILED) failed", "job_id", jobID, "err", err)
		return common.DatabaseError("finish extract_job", err)
	}
	r.log.Warn("extract_job finished (FAILED)", "job_id", jobID, "kind", kind, "error", message)
	return nil
}

const selectJob = `SELECT id, source, mime, status, method, pages, text_bytes, language, warnings,
	error_kind, error_message, started_at, finished_at FROM extract_job`

func (r *extractJobRepo) GetByID(ctx context.Context, jobID uuid.UUID) (*ExtractJob, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(selectJob+` WHERE id = ?`), jobID.String())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundError("extract_job "+jobID.String())
	}
	if err != nil {
		return nil, common.DatabaseError("get extract_job", err)
	}
	return job, nil
}

// List returns the most recent jobs first. limit <= 0 means 100.
func (r *extractJobRepo) List(ctx context.Context, limit int) ([]*ExtractJob, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, r.db.rebind(selectJob+` ORDER BY started_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, common.DatabaseError("list extract_job", err)
	}
	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			r.log.Warn("failed to close rows", "error", err)
		}
	}(rows)

	var out []*ExtractJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, common.DatabaseError("scan extract_job", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, common.DatabaseError("list extract_job", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*ExtractJob, error) {
	var (
		job      ExtractJob
		id       string
		started  int64
		finished sql.NullInt64
	)
	err := s.Scan(&id, &job.Source, &job.MIME, &job.Status, &job.Method, &job.Pages, &job.TextBytes,
		&job.Language, &job.Warnings, &job.ErrorKind, &job.ErrorMessage, &started, &finished)
	if err != nil {
		return nil, err
	}
	job.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	job.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		job.FinishedAt = &t
	}
	return &job, nil
}
