package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/siap-dev/siap-atk-api/internal/models"
)

// ReportRepository persists background report job metadata.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message`

// Create inserts a queued report job.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = newID()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	const query = `INSERT INTO report_jobs (` + reportColumns + `)
VALUES (:id, :type, :params, :status, :progress, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("insert report job: %w", err)
	}
	return nil
}

// GetByID fetches one report job.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	var job models.ReportJob
	query := `SELECT ` + reportColumns + ` FROM report_jobs WHERE id = $1`
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateReportJobParams carries the optional fields of a job update. Nil
// pointers leave the column untouched.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	Progress     *int
	ResultURL    *string
	FinishedAt   *time.Time
	ErrorMessage *string
}

// Update applies a partial update to a job row.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	const query = `UPDATE report_jobs SET
	status = COALESCE($2, status),
	progress = COALESCE($3, progress),
	result_url = COALESCE($4, result_url),
	finished_at = COALESCE($5, finished_at),
	error_message = COALESCE($6, error_message)
WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id,
		params.Status, params.Progress, params.ResultURL, params.FinishedAt, params.ErrorMessage)
	if err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	return nil
}

// ListQueued returns jobs still waiting for a worker, oldest first. Used at
// startup to re-enqueue work that survived a restart.
func (r *ReportRepository) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []models.ReportJob
	query := `SELECT ` + reportColumns + ` FROM report_jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	if err := r.db.SelectContext(ctx, &jobs, query, models.ReportStatusQueued, limit); err != nil {
		return nil, fmt.Errorf("list queued report jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore returns finished jobs older than the cutoff, for the
// artifact cleanup loop.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 100
	}
	var jobs []models.ReportJob
	query := `SELECT ` + reportColumns + ` FROM report_jobs WHERE status = $1 AND finished_at < $2 ORDER BY finished_at ASC LIMIT $3`
	if err := r.db.SelectContext(ctx, &jobs, query, models.ReportStatusFinished, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished report jobs: %w", err)
	}
	return jobs, nil
}
