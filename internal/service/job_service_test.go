package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lineup-tv/lineup-api/internal/dto"
	"github.com/lineup-tv/lineup-api/internal/engine"
	"github.com/lineup-tv/lineup-api/internal/models"
	"github.com/lineup-tv/lineup-api/internal/repository"
	"github.com/lineup-tv/lineup-api/pkg/jobs"
)

type jobRepoStub struct {
	jobs map[string]*models.LineupJob
}

func newJobRepoStub() *jobRepoStub {
	return &jobRepoStub{jobs: map[string]*models.LineupJob{}}
}

func (r *jobRepoStub) Create(ctx context.Context, job *models.LineupJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *jobRepoStub) GetByID(ctx context.Context, id string) (*models.LineupJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return job, nil
}

func (r *jobRepoStub) Update(ctx context.Context, id string, params repository.UpdateLineupJobParams) error {
	job, ok := r.jobs[id]
	if !ok {
		return errors.New("not found")
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.LineupID != nil {
		job.LineupID = params.LineupID
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *jobRepoStub) ListQueued(ctx context.Context, limit int) ([]models.LineupJob, error) {
	var queued []models.LineupJob
	for _, job := range r.jobs {
		if job.Status == models.JobStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (r *jobRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.LineupJob, error) {
	return nil, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type profileReaderStub struct {
	profiles map[string]*models.Profile
}

func (s *profileReaderStub) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	profile, ok := s.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return profile, nil
}

func newJobServiceForTest(t *testing.T) (*JobService, *jobRepoStub, *queueStub, *ExportService) {
	t.Helper()
	repo := newJobRepoStub()
	queue := &queueStub{}
	exportSvc, _ := newExportServiceForTest(t)
	profiles := &profileReaderStub{profiles: map[string]*models.Profile{
		"profile-1": {ID: "profile-1", Name: "Weekend"},
	}}
	lineups := &lineupSourceStub{lineups: map[string]*models.Lineup{"lineup-1": exportLineupFixture()}}
	svc := NewJobService(repo, profiles, lineups, queue, exportSvc, zap.NewNop(), JobServiceConfig{
		ResultTTL:       time.Hour,
		CleanupInterval: time.Hour,
		MaxRetries:      3,
	})
	return svc, repo, queue, exportSvc
}

func TestJobServiceCreateGenerationJob(t *testing.T) {
	svc, repo, queue, _ := newJobServiceForTest(t)
	resp, err := svc.CreateGenerationJob(context.Background(), dto.GenerateLineupRequest{
		ProfileID:  "profile-1",
		Iterations: 200,
	}, "scheduler-ui")
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, models.JobStatusQueued, resp.Status)
	assert.Contains(t, repo.jobs, resp.ID)
	assert.Equal(t, models.JobTypeGenerate, repo.jobs[resp.ID].Type)
	assert.Equal(t, 200, repo.jobs[resp.ID].Params.Iterations)
}

func TestJobServiceCreateGenerationJobUnknownProfile(t *testing.T) {
	svc, _, queue, _ := newJobServiceForTest(t)
	_, err := svc.CreateGenerationJob(context.Background(), dto.GenerateLineupRequest{
		ProfileID: "missing",
	}, "")
	require.Error(t, err)
	assert.Empty(t, queue.jobs)
}

func TestJobServiceCreateExportJob(t *testing.T) {
	svc, repo, queue, _ := newJobServiceForTest(t)
	resp, err := svc.CreateExportJob(context.Background(), "lineup-1", dto.ExportLineupRequest{Format: models.ExportFormatPDF}, "")
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, models.JobTypeExport, repo.jobs[resp.ID].Type)
	assert.Equal(t, models.ExportFormatPDF, repo.jobs[resp.ID].Params.Format)
	assert.Equal(t, "lineup-1", repo.jobs[resp.ID].Params.LineupID)
}

func TestJobServiceCreateExportJobDefaultsToCSV(t *testing.T) {
	svc, repo, _, _ := newJobServiceForTest(t)
	resp, err := svc.CreateExportJob(context.Background(), "lineup-1", dto.ExportLineupRequest{}, "")
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatCSV, repo.jobs[resp.ID].Params.Format)
}

func TestJobServiceCreateExportJobUnknownLineup(t *testing.T) {
	svc, _, queue, _ := newJobServiceForTest(t)
	_, err := svc.CreateExportJob(context.Background(), "missing", dto.ExportLineupRequest{Format: models.ExportFormatCSV}, "")
	require.Error(t, err)
	assert.Empty(t, queue.jobs)
}

func TestJobServiceGetStatus(t *testing.T) {
	svc, repo, _, _ := newJobServiceForTest(t)
	lineupID := "lineup-1"
	job := &models.LineupJob{
		ID:       "job-1",
		Type:     models.JobTypeGenerate,
		Params:   models.LineupJobParams{ProfileID: "profile-1"},
		Status:   models.JobStatusFinished,
		Progress: 100,
		LineupID: &lineupID,
	}
	repo.jobs[job.ID] = job
	resp, err := svc.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Status, resp.Status)
	assert.Equal(t, job.Progress, resp.Progress)
	require.NotNil(t, resp.LineupID)
	assert.Equal(t, lineupID, *resp.LineupID)
}

func TestJobServiceResolveDownload(t *testing.T) {
	svc, repo, _, exportSvc := newJobServiceForTest(t)
	job := &models.LineupJob{
		ID:     "job-download",
		Type:   models.JobTypeExport,
		Params: models.LineupJobParams{LineupID: "lineup-1", Format: models.ExportFormatCSV},
		Status: models.JobStatusFinished,
	}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL
	now := time.Now()
	job.FinishedAt = &now

	download, err := svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(result.RelativePath), download.Filename)
	download.File.Close()
}

func TestJobServiceResolveDownloadNotReady(t *testing.T) {
	svc, repo, _, exportSvc := newJobServiceForTest(t)
	job := &models.LineupJob{
		ID:     "job-pending",
		Type:   models.JobTypeExport,
		Params: models.LineupJobParams{LineupID: "lineup-1", Format: models.ExportFormatCSV},
		Status: models.JobStatusProcessing,
	}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL

	_, err = svc.ResolveDownload(context.Background(), result.Token)
	require.Error(t, err)
}

// --- Worker ---

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(ctx context.Context, job *models.LineupJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

type generatorStub struct {
	lineup *models.Lineup
	err    error
	steps  int
}

func (g generatorStub) RunGeneration(ctx context.Context, job *models.LineupJob, progress engine.ProgressSink) (*models.Lineup, error) {
	if g.err != nil {
		return nil, g.err
	}
	if progress != nil {
		for i := 1; i <= g.steps; i++ {
			progress.Progress(i, g.steps, 1.0)
		}
	}
	return g.lineup, nil
}

func TestJobWorkerHandleGenerate(t *testing.T) {
	repo := &jobRepoStub{
		jobs: map[string]*models.LineupJob{
			"job-1": {
				ID:     "job-1",
				Type:   models.JobTypeGenerate,
				Params: models.LineupJobParams{ProfileID: "profile-1", Iterations: 10},
				Status: models.JobStatusQueued,
			},
		},
	}
	generator := generatorStub{lineup: &models.Lineup{ID: "lineup-9", Score: 2.5}, steps: 4}
	worker := NewJobWorker(repo, generator, exportStub{}, nil, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFinished, repo.jobs["job-1"].Status)
	require.Equal(t, 100, repo.jobs["job-1"].Progress)
	require.NotNil(t, repo.jobs["job-1"].LineupID)
	assert.Equal(t, "lineup-9", *repo.jobs["job-1"].LineupID)
}

func TestJobWorkerHandleExport(t *testing.T) {
	repo := &jobRepoStub{
		jobs: map[string]*models.LineupJob{
			"job-1": {
				ID:     "job-1",
				Type:   models.JobTypeExport,
				Params: models.LineupJobParams{LineupID: "lineup-1", Format: models.ExportFormatCSV},
				Status: models.JobStatusQueued,
			},
		},
	}
	exporter := exportStub{result: &ExportResult{URL: "/api/v1/export/token"}}
	worker := NewJobWorker(repo, generatorStub{}, exporter, nil, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFinished, repo.jobs["job-1"].Status)
	require.NotNil(t, repo.jobs["job-1"].ResultURL)
	assert.Equal(t, "/api/v1/export/token", *repo.jobs["job-1"].ResultURL)
}

func TestJobWorkerHandleFailureRequeues(t *testing.T) {
	repo := &jobRepoStub{
		jobs: map[string]*models.LineupJob{
			"job-1": {
				ID:     "job-1",
				Type:   models.JobTypeExport,
				Params: models.LineupJobParams{LineupID: "lineup-1", Format: models.ExportFormatCSV},
				Status: models.JobStatusQueued,
			},
		},
	}
	exporter := exportStub{err: errors.New("boom")}
	worker := NewJobWorker(repo, generatorStub{}, exporter, nil, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 0})
	require.Error(t, err)
	require.Equal(t, models.JobStatusQueued, repo.jobs["job-1"].Status)
	require.NotNil(t, repo.jobs["job-1"].ErrorMessage)
}

func TestJobWorkerHandleFailureExhaustsRetries(t *testing.T) {
	repo := &jobRepoStub{
		jobs: map[string]*models.LineupJob{
			"job-1": {
				ID:     "job-1",
				Type:   models.JobTypeExport,
				Params: models.LineupJobParams{LineupID: "lineup-1", Format: models.ExportFormatCSV},
				Status: models.JobStatusQueued,
			},
		},
	}
	exporter := exportStub{err: errors.New("boom")}
	worker := NewJobWorker(repo, generatorStub{}, exporter, nil, 2, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 2})
	require.Error(t, err)
	require.Equal(t, models.JobStatusFailed, repo.jobs["job-1"].Status)
	require.Equal(t, 100, repo.jobs["job-1"].Progress)
}

func TestJobWorkerProgressSinkSteps(t *testing.T) {
	repo := &jobRepoStub{
		jobs: map[string]*models.LineupJob{
			"job-1": {ID: "job-1", Type: models.JobTypeGenerate, Status: models.JobStatusProcessing, Progress: 10},
		},
	}
	worker := NewJobWorker(repo, generatorStub{}, exportStub{}, nil, 3, zap.NewNop())
	sink := worker.progressSink(context.Background(), "job-1")

	sink.Progress(1, 4, 1.0)
	assert.Equal(t, 31, repo.jobs["job-1"].Progress)
	sink.Progress(2, 4, 1.2)
	assert.Equal(t, 52, repo.jobs["job-1"].Progress)
	sink.Progress(4, 4, 1.2)
	assert.Equal(t, 95, repo.jobs["job-1"].Progress)
	// stale notification must not regress the row
	sink.Progress(3, 4, 1.2)
	assert.Equal(t, 95, repo.jobs["job-1"].Progress)
}
