package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lineup-tv/lineup-api/internal/dto"
	"github.com/lineup-tv/lineup-api/internal/engine"
	"github.com/lineup-tv/lineup-api/internal/models"
	"github.com/lineup-tv/lineup-api/internal/repository"
	appErrors "github.com/lineup-tv/lineup-api/pkg/errors"
	"github.com/lineup-tv/lineup-api/pkg/jobs"
)

type lineupJobStore interface {
	Create(ctx context.Context, job *models.LineupJob) error
	GetByID(ctx context.Context, id string) (*models.LineupJob, error)
	Update(ctx context.Context, id string, params repository.UpdateLineupJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.LineupJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.LineupJob, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// JobService orchestrates background lineup jobs: generation runs too long
// for a synchronous request, and file exports of saved lineups.
type JobService struct {
	repo     lineupJobStore
	profiles profileReader
	lineups  lineupSource
	queue    jobQueue
	exporter *ExportService
	logger   *zap.Logger
	cfg      JobServiceConfig
}

// JobServiceConfig governs queue recovery and cleanup.
type JobServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
	MaxIterations   int
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// NewJobService constructs the job service.
func NewJobService(repo lineupJobStore, profiles profileReader, lineups lineupSource, queue jobQueue, exporter *ExportService, logger *zap.Logger, cfg JobServiceConfig) *JobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10000
	}
	return &JobService{
		repo:     repo,
		profiles: profiles,
		lineups:  lineups,
		queue:    queue,
		exporter: exporter,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateGenerationJob persists an async generation job and enqueues it.
func (s *JobService) CreateGenerationJob(ctx context.Context, req dto.GenerateLineupRequest, actor string) (*dto.LineupJobResponse, error) {
	if err := s.validateGenerate(ctx, req); err != nil {
		return nil, err
	}
	job := &models.LineupJob{
		Type: models.JobTypeGenerate,
		Params: models.LineupJobParams{
			ProfileID:        req.ProfileID,
			Iterations:       req.Iterations,
			Seed:             req.Seed,
			Parallelism:      req.Parallelism,
			IncludeBreakdown: req.IncludeBreakdown,
			ItemIDs:          req.ItemIDs,
		},
		Status:    models.JobStatusQueued,
		Progress:  0,
		CreatedBy: actor,
	}
	return s.submit(ctx, job)
}

// CreateExportJob persists an export job for a saved lineup and enqueues it.
func (s *JobService) CreateExportJob(ctx context.Context, lineupID string, req dto.ExportLineupRequest, actor string) (*dto.LineupJobResponse, error) {
	format := req.Format
	if format == "" {
		format = models.ExportFormatCSV
	}
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if _, err := s.lineups.GetByID(ctx, lineupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lineup not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lineup")
	}
	job := &models.LineupJob{
		Type:      models.JobTypeExport,
		Params:    models.LineupJobParams{LineupID: lineupID, Format: format},
		Status:    models.JobStatusQueued,
		Progress:  0,
		CreatedBy: actor,
	}
	return s.submit(ctx, job)
}

func (s *JobService) submit(ctx context.Context, job *models.LineupJob) (*dto.LineupJobResponse, error) {
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lineup job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		status := models.JobStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, job.ID, repository.UpdateLineupJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue lineup job")
	}
	return &dto.LineupJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to clients.
func (s *JobService) GetStatus(ctx context.Context, id string) (*dto.LineupJobStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lineup job")
	}
	resp := &dto.LineupJobStatusResponse{
		ID:       job.ID,
		Type:     job.Type,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.LineupID != nil {
		resp.LineupID = job.LineupID
	}
	if job.ResultURL != nil {
		resp.ResultURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *JobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lineup job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.JobStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	filename := filepath.Base(relPath)
	return &ExportDownload{
		File:      file,
		Filename:  filename,
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs (e.g. after process restart).
func (s *JobService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued lineup jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *JobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *JobService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	for {
		finished, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
		if err != nil {
			s.logger.Sugar().Warnw("cleanup list failed", "error", err)
			return
		}
		if len(finished) == 0 {
			break
		}
		for _, job := range finished {
			if job.ResultURL == nil {
				continue
			}
			token := extractToken(*job.ResultURL)
			if token == "" {
				continue
			}
			_, relPath, _, err := s.exporter.ParseToken(token, true)
			if err != nil {
				continue
			}
			if err := s.exporter.Delete(relPath); err != nil {
				s.logger.Sugar().Warnw("cleanup delete failed", "job_id", job.ID, "error", err)
			}
		}
		if len(finished) < 100 {
			break
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
	}
}

func (s *JobService) validateGenerate(ctx context.Context, req dto.GenerateLineupRequest) error {
	if req.ProfileID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "profileId is required")
	}
	if req.Iterations < 0 || req.Iterations > s.cfg.MaxIterations {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("iterations must be between 0 and %d", s.cfg.MaxIterations))
	}
	if req.Parallelism < 0 {
		return appErrors.Clone(appErrors.ErrValidation, "parallelism must be >= 0")
	}
	if _, err := s.profiles.GetByID(ctx, req.ProfileID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate profile")
	}
	return nil
}

func extractToken(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// --- Worker ---

type lineupGenerator interface {
	RunGeneration(ctx context.Context, job *models.LineupJob, progress engine.ProgressSink) (*models.Lineup, error)
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.LineupJob) (*ExportResult, error)
}

// JobWorker bridges queue jobs to the programmer and exporter.
type JobWorker struct {
	repo       lineupJobStore
	generator  lineupGenerator
	exporter   exportGenerator
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
}

// NewJobWorker constructs a worker.
func NewJobWorker(repo lineupJobStore, generator lineupGenerator, exporter exportGenerator, metrics *MetricsService, maxRetries int, logger *zap.Logger) *JobWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &JobWorker{
		repo:       repo,
		generator:  generator,
		exporter:   exporter,
		metrics:    metrics,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Handle processes a queue job.
func (w *JobWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.JobStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateLineupJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	var (
		lineupID  *string
		resultURL *string
		runErr    error
	)
	switch record.Type {
	case models.JobTypeGenerate:
		lineup, err := w.generator.RunGeneration(ctx, record, w.progressSink(ctx, record.ID))
		if err != nil {
			runErr = err
		} else {
			lineupID = &lineup.ID
		}
	case models.JobTypeExport:
		result, err := w.exporter.Generate(ctx, record)
		if err != nil {
			runErr = err
		} else {
			resultURL = &result.URL
		}
	default:
		runErr = fmt.Errorf("unsupported job type %s", record.Type)
	}

	if runErr != nil {
		msg := runErr.Error()
		if job.Attempt >= w.maxRetries {
			failed := models.JobStatusFailed
			progress = 100
			now := time.Now().UTC()
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateLineupJobParams{
				Status:       &failed,
				Progress:     &progress,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", updateErr)
			}
			w.metrics.RecordJobOutcome(record.Type, models.JobStatusFailed)
		} else {
			queued := models.JobStatusQueued
			reset := 0
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateLineupJobParams{
				Status:       &queued,
				Progress:     &reset,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark job queued", "job_id", job.ID, "error", updateErr)
			}
		}
		return runErr
	}

	finished := models.JobStatusFinished
	progress = 100
	now := time.Now().UTC()
	clear := ""
	params := repository.UpdateLineupJobParams{
		Status:       &finished,
		Progress:     &progress,
		LineupID:     lineupID,
		ResultURL:    resultURL,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}
	if err := w.repo.Update(ctx, job.ID, params); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID, "error", err)
		return err
	}
	w.metrics.RecordJobOutcome(record.Type, models.JobStatusFinished)
	return nil
}

// progressSink maps optimizer progress onto the job row. Generation holds
// the 10 to 95 percent band; the final update to 100 happens with the
// terminal status. Updates are throttled to step changes.
func (w *JobWorker) progressSink(ctx context.Context, jobID string) engine.ProgressSink {
	var mu sync.Mutex
	last := 10
	return engine.ProgressFunc(func(completed, total int, bestScore float64) {
		if total <= 0 {
			return
		}
		pct := 10 + completed*85/total
		if pct > 95 {
			pct = 95
		}
		mu.Lock()
		if pct <= last {
			mu.Unlock()
			return
		}
		last = pct
		mu.Unlock()
		if err := w.repo.Update(ctx, jobID, repository.UpdateLineupJobParams{Progress: &pct}); err != nil {
			w.logger.Sugar().Debugw("progress update failed", "job_id", jobID, "error", err)
		}
	})
}
