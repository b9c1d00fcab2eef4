package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lineup-tv/lineup-api/internal/dto"
	"github.com/lineup-tv/lineup-api/internal/models"
	appErrors "github.com/lineup-tv/lineup-api/pkg/errors"
)

type profileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	List(ctx context.Context, search string, page, pageSize int) ([]models.Profile, int, error)
	Update(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, id string) error
}

type analysisInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// ProfileService handles programming profile use-cases. Profiles carry the
// block layout, criterion weights, and rule strengths the engine runs with,
// so every mutation revalidates the whole document before it is persisted.
type ProfileService struct {
	repo      profileRepository
	cache     analysisInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfileService constructs the profile service.
func NewProfileService(repo profileRepository, cache analysisInvalidator, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns profiles and pagination metadata.
func (s *ProfileService) List(ctx context.Context, query dto.ProfileQuery) ([]models.Profile, *models.Pagination, error) {
	profiles, total, err := s.repo.List(ctx, query.Search, query.Page, query.PageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list profiles")
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return profiles, pagination, nil
}

// Get returns one profile.
func (s *ProfileService) Get(ctx context.Context, id string) (*models.Profile, error) {
	profile, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

// Create registers a new programming profile.
func (s *ProfileService) Create(ctx context.Context, req dto.ProfileRequest) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	profile := &models.Profile{
		Name:       req.Name,
		Blocks:     req.Blocks,
		Weights:    req.Weights,
		Rules:      req.Rules,
		Iterations: req.Iterations,
		AllowReuse: req.AllowReuse,
	}
	if err := domainValidationError(profile.Validate()); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create profile")
	}
	return profile, nil
}

// Update replaces an existing profile document and drops stale analysis
// results cached under it.
func (s *ProfileService) Update(ctx context.Context, id string, req dto.ProfileRequest) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	existing.Name = req.Name
	existing.Blocks = req.Blocks
	existing.Weights = req.Weights
	existing.Rules = req.Rules
	existing.Iterations = req.Iterations
	existing.AllowReuse = req.AllowReuse
	if err := domainValidationError(existing.Validate()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	s.invalidateAnalysis(ctx, id)
	return existing, nil
}

// Delete removes a profile. Saved lineups keep their profile reference.
func (s *ProfileService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete profile")
	}
	s.invalidateAnalysis(ctx, id)
	return nil
}

func (s *ProfileService) invalidateAnalysis(ctx context.Context, profileID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "analysis:"+profileID+":*"); err != nil {
		s.logger.Warn("failed to invalidate analysis cache", zap.String("profile_id", profileID), zap.Error(err))
	}
}

// domainValidationError maps engine configuration failures onto API errors.
// Weight problems get their own code so clients can route users to the
// weight editor.
func domainValidationError(err error) error {
	if err == nil {
		return nil
	}
	var cfgErr *models.ConfigError
	if errors.As(err, &cfgErr) {
		if strings.HasPrefix(cfgErr.Field, "weights") {
			return appErrors.Clone(appErrors.ErrInvalidWeights, cfgErr.Error())
		}
		return appErrors.Clone(appErrors.ErrValidation, cfgErr.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile configuration")
}
