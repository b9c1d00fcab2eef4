package dto

import (
	"time"

	"github.com/lineup-tv/lineup-api/internal/models"
)

// GenerateLineupRequest instructs the programmer to build a lineup proposal.
// When ItemIDs is empty the whole library forms the candidate pool.
type GenerateLineupRequest struct {
	ProfileID        string   `json:"profileId" validate:"required"`
	Iterations       int      `json:"iterations" validate:"omitempty,min=1,max=10000"`
	Seed             *int64   `json:"seed"`
	Parallelism      int      `json:"parallelism" validate:"omitempty,min=0,max=64"`
	IncludeBreakdown bool     `json:"includeBreakdown"`
	ItemIDs          []string `json:"itemIds"`
}

// GenerateLineupResponse returns the built proposal. The proposal id stays
// valid until the TTL elapses or the proposal is saved.
type GenerateLineupResponse struct {
	ProposalID string        `json:"proposalId"`
	ExpiresAt  time.Time     `json:"expiresAt"`
	Iterations int           `json:"iterations"`
	Lineup     models.Lineup `json:"lineup"`
}

// SaveLineupRequest commits a previously generated proposal.
type SaveLineupRequest struct {
	ProposalID string `json:"proposalId" validate:"required"`
	Name       string `json:"name"`
	MarkPlayed bool   `json:"markPlayed"`
}

// LineupQuery filters saved lineup listings.
type LineupQuery struct {
	ProfileID string `form:"profileId" json:"profileId"`
	Status    string `form:"status" json:"status"`
	Page      int    `form:"page" json:"page"`
	PageSize  int    `form:"pageSize" json:"pageSize"`
	SortBy    string `form:"sortBy" json:"sortBy"`
	SortOrder string `form:"sortOrder" json:"sortOrder"`
}

// PlacementRequest names one already-scheduled item for analysis.
type PlacementRequest struct {
	BlockName string `json:"blockName" validate:"required"`
	ItemID    string `json:"itemId" validate:"required"`
}

// AnalyzeLineupRequest scores an existing set of placements under a profile.
type AnalyzeLineupRequest struct {
	ProfileID  string             `json:"profileId" validate:"required"`
	Placements []PlacementRequest `json:"placements" validate:"required,min=1,dive"`
}

// LineupJobResponse is returned after enqueueing a generation or export job.
type LineupJobResponse struct {
	ID       string           `json:"id"`
	Status   models.JobStatus `json:"status"`
	Progress int              `json:"progress"`
}

// LineupJobStatusResponse exposes job progress metadata.
type LineupJobStatusResponse struct {
	ID        string           `json:"id"`
	Type      models.JobType   `json:"type"`
	Status    models.JobStatus `json:"status"`
	Progress  int              `json:"progress"`
	LineupID  *string          `json:"lineupId,omitempty"`
	ResultURL *string          `json:"resultUrl,omitempty"`
	Error     *string          `json:"error,omitempty"`
}

// ExportLineupRequest renders a saved lineup to a downloadable file.
type ExportLineupRequest struct {
	Format models.ExportFormat `json:"format"`
}
