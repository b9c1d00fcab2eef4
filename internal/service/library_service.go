package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lineup-tv/lineup-api/internal/dto"
	"github.com/lineup-tv/lineup-api/internal/models"
	appErrors "github.com/lineup-tv/lineup-api/pkg/errors"
)

type mediaRepository interface {
	Create(ctx context.Context, item *models.MediaItem) error
	Update(ctx context.Context, item *models.MediaItem) error
	BulkUpsert(ctx context.Context, items []models.MediaItem) error
	GetByID(ctx context.Context, id string) (*models.MediaItem, error)
	List(ctx context.Context, filter models.MediaFilter) ([]models.MediaItem, int, error)
	Delete(ctx context.Context, id string) error
}

// LibraryService manages the media catalog the programmer draws candidates
// from.
type LibraryService struct {
	repo      mediaRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLibraryService constructs the library service.
func NewLibraryService(repo mediaRepository, validate *validator.Validate, logger *zap.Logger) *LibraryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LibraryService{repo: repo, validator: validate, logger: logger}
}

// List returns library items and pagination metadata.
func (s *LibraryService) List(ctx context.Context, query dto.MediaQuery) ([]models.MediaItem, *models.Pagination, error) {
	filter := models.MediaFilter{
		Type:      query.Type,
		Genre:     query.Genre,
		Studio:    query.Studio,
		Search:    query.Search,
		Filler:    query.Filler,
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list media items")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return items, pagination, nil
}

// Get returns one library item.
func (s *LibraryService) Get(ctx context.Context, id string) (*models.MediaItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "media item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load media item")
	}
	return item, nil
}

// Create adds a single item to the library.
func (s *LibraryService) Create(ctx context.Context, req dto.MediaItemRequest) (*models.MediaItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid media item payload")
	}
	item := mediaItemFromRequest(req)
	if err := s.repo.Create(ctx, &item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create media item")
	}
	return &item, nil
}

// Update replaces an item's content fields. Air history is untouched.
func (s *LibraryService) Update(ctx context.Context, id string, req dto.MediaItemRequest) (*models.MediaItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid media item payload")
	}
	item := mediaItemFromRequest(req)
	item.ID = id
	if err := s.repo.Update(ctx, &item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "media item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update media item")
	}
	return &item, nil
}

// Import bulk-loads items, inserting new ids and refreshing existing ones.
func (s *LibraryService) Import(ctx context.Context, req dto.ImportLibraryRequest) (*dto.ImportLibraryResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import payload")
	}
	items := make([]models.MediaItem, 0, len(req.Items))
	seen := make(map[string]bool, len(req.Items))
	for _, itemReq := range req.Items {
		item := mediaItemFromRequest(itemReq)
		if item.ID != "" && seen[item.ID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate item id in import payload: "+item.ID)
		}
		seen[item.ID] = true
		items = append(items, item)
	}
	if err := s.repo.BulkUpsert(ctx, items); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import media items")
	}
	s.logger.Info("library import finished", zap.Int("items", len(items)))
	return &dto.ImportLibraryResponse{Imported: len(items)}, nil
}

// Delete removes an item from the library.
func (s *LibraryService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "media item not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete media item")
	}
	return nil
}

func mediaItemFromRequest(req dto.MediaItemRequest) models.MediaItem {
	return models.MediaItem{
		ID:              req.ID,
		Title:           req.Title,
		Type:            models.ContentType(req.Type),
		DurationSeconds: req.DurationSeconds,
		Genres:          req.Genres,
		AgeRating:       req.AgeRating,
		Rating:          req.Rating,
		Keywords:        req.Keywords,
		Studio:          req.Studio,
		CollectionID:    req.CollectionID,
		CollectionIndex: req.CollectionIndex,
		Blockbuster:     req.Blockbuster,
		Filler:          req.Filler,
	}
}
