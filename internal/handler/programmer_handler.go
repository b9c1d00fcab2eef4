package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lineup-tv/lineup-api/internal/dto"
	"github.com/lineup-tv/lineup-api/internal/middleware"
	"github.com/lineup-tv/lineup-api/internal/models"
	"github.com/lineup-tv/lineup-api/internal/service"
	appErrors "github.com/lineup-tv/lineup-api/pkg/errors"
	"github.com/lineup-tv/lineup-api/pkg/response"
)

type lineupProgrammer interface {
	Generate(ctx context.Context, req dto.GenerateLineupRequest) (*dto.GenerateLineupResponse, error)
	SaveProposal(ctx context.Context, req dto.SaveLineupRequest) (*models.Lineup, error)
	Analyze(ctx context.Context, req dto.AnalyzeLineupRequest) (*models.AnalysisReport, bool, error)
}

type lineupJobManager interface {
	CreateGenerationJob(ctx context.Context, req dto.GenerateLineupRequest, actor string) (*dto.LineupJobResponse, error)
	CreateExportJob(ctx context.Context, lineupID string, req dto.ExportLineupRequest, actor string) (*dto.LineupJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.LineupJobStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ProgrammerHandler exposes lineup generation, analysis, job, and export
// endpoints.
type ProgrammerHandler struct {
	programmer lineupProgrammer
	jobs       lineupJobManager
}

// NewProgrammerHandler constructs the handler.
func NewProgrammerHandler(programmer *service.ProgrammerService, jobs *service.JobService) *ProgrammerHandler {
	return &ProgrammerHandler{programmer: programmer, jobs: jobs}
}

// Generate godoc
// @Summary Generate a lineup proposal synchronously
// @Description Runs the optimizer within the synchronous iteration cap and parks the result as a TTL-bound proposal. Larger runs belong on the job queue.
// @Tags Programmer
// @Accept json
// @Produce json
// @Param payload body dto.GenerateLineupRequest true "Generation payload"
// @Success 200 {object} response.Envelope
// @Router /lineups/generate [post]
func (h *ProgrammerHandler) Generate(c *gin.Context) {
	var req dto.GenerateLineupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.programmer.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Save godoc
// @Summary Persist a generated proposal
// @Tags Programmer
// @Accept json
// @Produce json
// @Param payload body dto.SaveLineupRequest true "Save payload"
// @Success 201 {object} response.Envelope
// @Router /lineups/save [post]
func (h *ProgrammerHandler) Save(c *gin.Context) {
	var req dto.SaveLineupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	lineup, err := h.programmer.SaveProposal(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lineup)
}

// Analyze godoc
// @Summary Score an existing set of placements
// @Description Evaluates the given placements against a profile without building anything. Repeated calls for the same placements are served from cache.
// @Tags Programmer
// @Accept json
// @Produce json
// @Param payload body dto.AnalyzeLineupRequest true "Analysis payload"
// @Success 200 {object} response.Envelope
// @Router /lineups/analyze [post]
func (h *ProgrammerHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzeLineupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid analysis payload"))
		return
	}
	start := time.Now()
	report, cacheHit, err := h.programmer.Analyze(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, report, nil, meta)
}

// EnqueueGeneration godoc
// @Summary Queue an asynchronous generation job
// @Description Accepts the same payload as synchronous generation but without the iteration cap. Progress is polled via the job status endpoint.
// @Tags Jobs
// @Accept json
// @Produce json
// @Param payload body dto.GenerateLineupRequest true "Generation payload"
// @Success 202 {object} response.Envelope
// @Router /jobs/lineups [post]
func (h *ProgrammerHandler) EnqueueGeneration(c *gin.Context) {
	var req dto.GenerateLineupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	job, err := h.jobs.CreateGenerationJob(c.Request.Context(), req, requesterID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// JobStatus godoc
// @Summary Poll job progress
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/lineups/{id} [get]
func (h *ProgrammerHandler) JobStatus(c *gin.Context) {
	status, err := h.jobs.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Export godoc
// @Summary Queue an export of a saved lineup
// @Tags Jobs
// @Accept json
// @Produce json
// @Param id path string true "Lineup ID"
// @Param payload body dto.ExportLineupRequest false "Export payload"
// @Success 202 {object} response.Envelope
// @Router /lineups/{id}/export [post]
func (h *ProgrammerHandler) Export(c *gin.Context) {
	var req dto.ExportLineupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
			return
		}
	}
	job, err := h.jobs.CreateExportJob(c.Request.Context(), c.Param("id"), req, requesterID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Download godoc
// @Summary Download an export via signed token
// @Tags Jobs
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /export/{token} [get]
func (h *ProgrammerHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.jobs.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	info, err := result.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), exportContentType(result.Format), result.File, nil)
}

func exportContentType(format models.ExportFormat) string {
	switch format {
	case models.ExportFormatPDF:
		return "application/pdf"
	case models.ExportFormatCSV:
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// requesterID identifies the caller for job attribution. The API carries no
// authentication, so the client-supplied header is taken at face value.
func requesterID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader("X-Client-ID")); id != "" {
		return id
	}
	return "anonymous"
}
