package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lineup-tv/lineup-api/internal/models"
)

const lineupJobColumns = `id, type, params, status, progress, lineup_id, result_url, created_by, created_at, finished_at, error_message`

// LineupJobRepository persists generation and export job metadata.
type LineupJobRepository struct {
	db *sqlx.DB
}

// NewLineupJobRepository constructs the repository.
func NewLineupJobRepository(db *sqlx.DB) *LineupJobRepository {
	return &LineupJobRepository{db: db}
}

// Create inserts a new job row with generated defaults.
func (r *LineupJobRepository) Create(ctx context.Context, job *models.LineupJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO lineup_jobs (` + lineupJobColumns + `)
VALUES (:id, :type, :params, :status, :progress, :lineup_id, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create lineup job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *LineupJobRepository) GetByID(ctx context.Context, id string) (*models.LineupJob, error) {
	const query = `SELECT ` + lineupJobColumns + ` FROM lineup_jobs WHERE id = $1`
	var job models.LineupJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get lineup job: %w", err)
	}
	return &job, nil
}

// UpdateLineupJobParams defines the mutable fields.
type UpdateLineupJobParams struct {
	Status       *models.JobStatus
	Progress     *int
	LineupID     *string
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a job row.
func (r *LineupJobRepository) Update(ctx context.Context, id string, params UpdateLineupJobParams) error {
	set := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.Progress != nil {
		set = append(set, fmt.Sprintf("progress = $%d", argPos))
		args = append(args, *params.Progress)
		argPos++
	}
	if params.LineupID != nil {
		set = append(set, fmt.Sprintf("lineup_id = $%d", argPos))
		args = append(args, *params.LineupID)
		argPos++
	}
	if params.ResultURL != nil {
		set = append(set, fmt.Sprintf("result_url = $%d", argPos))
		args = append(args, *params.ResultURL)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.FinishedAt != nil {
		set = append(set, fmt.Sprintf("finished_at = $%d", argPos))
		args = append(args, *params.FinishedAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE lineup_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update lineup job: %w", err)
	}
	return nil
}

// ListQueued fetches queued jobs (used for cold start recovery).
func (r *LineupJobRepository) ListQueued(ctx context.Context, limit int) ([]models.LineupJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT ` + lineupJobColumns + `
FROM lineup_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var jobs []models.LineupJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued lineup jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore retrieves completed export jobs prior to cutoff for cleanup.
func (r *LineupJobRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.LineupJob, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT ` + lineupJobColumns + `
FROM lineup_jobs WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2`
	var jobs []models.LineupJob
	if err := r.db.SelectContext(ctx, &jobs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished lineup jobs: %w", err)
	}
	return jobs, nil
}
