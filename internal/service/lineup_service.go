package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/lineup-tv/lineup-api/internal/dto"
	"github.com/lineup-tv/lineup-api/internal/models"
	appErrors "github.com/lineup-tv/lineup-api/pkg/errors"
)

type lineupRepository interface {
	GetByID(ctx context.Context, id string) (*models.Lineup, error)
	List(ctx context.Context, filter models.LineupFilter) ([]models.Lineup, int, error)
	Delete(ctx context.Context, id string) error
}

// LineupService serves saved lineups.
type LineupService struct {
	repo   lineupRepository
	logger *zap.Logger
}

// NewLineupService constructs the lineup service.
func NewLineupService(repo lineupRepository, logger *zap.Logger) *LineupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LineupService{repo: repo, logger: logger}
}

// List returns saved lineups and pagination metadata.
func (s *LineupService) List(ctx context.Context, query dto.LineupQuery) ([]models.Lineup, *models.Pagination, error) {
	filter := models.LineupFilter{
		ProfileID: query.ProfileID,
		Status:    query.Status,
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	lineups, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lineups")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return lineups, pagination, nil
}

// Get returns one saved lineup with its full block fills.
func (s *LineupService) Get(ctx context.Context, id string) (*models.Lineup, error) {
	lineup, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lineup not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lineup")
	}
	return lineup, nil
}

// Delete removes a saved lineup.
func (s *LineupService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "lineup not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lineup")
	}
	return nil
}
