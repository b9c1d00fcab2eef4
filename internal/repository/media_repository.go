package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lineup-tv/lineup-api/internal/models"
)

const mediaColumns = `id, title, type, duration_seconds, genres, age_rating, rating, keywords, studio, collection_id, collection_index, last_played_at, blockbuster, filler, created_at, updated_at`

// MediaRepository provides database access to the media library.
type MediaRepository struct {
	db *sqlx.DB
}

// NewMediaRepository creates a new instance of MediaRepository.
func NewMediaRepository(db *sqlx.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Create inserts a new media item with generated defaults.
func (r *MediaRepository) Create(ctx context.Context, item *models.MediaItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	const query = `INSERT INTO media_items (` + mediaColumns + `)
VALUES (:id, :title, :type, :duration_seconds, :genres, :age_rating, :rating, :keywords, :studio, :collection_id, :collection_index, :last_played_at, :blockbuster, :filler, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create media item: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of a media item.
func (r *MediaRepository) Update(ctx context.Context, item *models.MediaItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE media_items SET title = :title, type = :type, duration_seconds = :duration_seconds, genres = :genres, age_rating = :age_rating, rating = :rating, keywords = :keywords, studio = :studio, collection_id = :collection_id, collection_index = :collection_index, blockbuster = :blockbuster, filler = :filler, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("update media item: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// BulkUpsert inserts or updates multiple items in a transaction. Used by
// library imports where the feed carries stable external identifiers.
func (r *MediaRepository) BulkUpsert(ctx context.Context, items []models.MediaItem) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		now := time.Now().UTC()
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
		items[i].UpdatedAt = now
		const query = `INSERT INTO media_items (` + mediaColumns + `)
                VALUES (:id, :title, :type, :duration_seconds, :genres, :age_rating, :rating, :keywords, :studio, :collection_id, :collection_index, :last_played_at, :blockbuster, :filler, :created_at, :updated_at)
                ON CONFLICT (id)
                DO UPDATE SET title = EXCLUDED.title, type = EXCLUDED.type, duration_seconds = EXCLUDED.duration_seconds, genres = EXCLUDED.genres, age_rating = EXCLUDED.age_rating, rating = EXCLUDED.rating, keywords = EXCLUDED.keywords, studio = EXCLUDED.studio, collection_id = EXCLUDED.collection_id, collection_index = EXCLUDED.collection_index, blockbuster = EXCLUDED.blockbuster, filler = EXCLUDED.filler, updated_at = EXCLUDED.updated_at`
		if _, err := tx.NamedExecContext(ctx, query, items[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("bulk upsert media item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit media items: %w", err)
	}
	return nil
}

// GetByID returns a media item by identifier.
func (r *MediaRepository) GetByID(ctx context.Context, id string) (*models.MediaItem, error) {
	const query = `SELECT ` + mediaColumns + ` FROM media_items WHERE id = $1 LIMIT 1`
	var item models.MediaItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get media item: %w", err)
	}
	return &item, nil
}

// List returns media items based on filters with total count.
func (r *MediaRepository) List(ctx context.Context, filter models.MediaFilter) ([]models.MediaItem, int, error) {
	baseQuery := `FROM media_items WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.Genre != "" {
		conditions = append(conditions, fmt.Sprintf("genres @> $%d", len(args)+1))
		args = append(args, fmt.Sprintf(`["%s"]`, filter.Genre))
	}
	if filter.Studio != "" {
		conditions = append(conditions, fmt.Sprintf("studio = $%d", len(args)+1))
		args = append(args, filter.Studio)
	}
	if filter.Filler != nil {
		conditions = append(conditions, fmt.Sprintf("filler = $%d", len(args)+1))
		args = append(args, *filter.Filler)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "title"
	}
	allowedSorts := map[string]bool{
		"title":            true,
		"rating":           true,
		"duration_seconds": true,
		"created_at":       true,
		"last_played_at":   true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "title"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", mediaColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var items []models.MediaItem
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list media items: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count media items: %w", err)
	}

	return items, total, nil
}

// ListAll returns the whole library ordered by title. Pool construction
// loads everything; the engine prunes per block.
func (r *MediaRepository) ListAll(ctx context.Context) ([]models.MediaItem, error) {
	const query = `SELECT ` + mediaColumns + ` FROM media_items ORDER BY title ASC`
	var items []models.MediaItem
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list all media items: %w", err)
	}
	return items, nil
}

// ListByIDs returns the items matching the given identifiers.
func (r *MediaRepository) ListByIDs(ctx context.Context, ids []string) ([]models.MediaItem, error) {
	if len(ids) == 0 {
		return []models.MediaItem{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT %s FROM media_items WHERE id IN (%s)`, mediaColumns, strings.Join(placeholders, ","))
	var items []models.MediaItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list media items by ids: %w", err)
	}
	return items, nil
}

// MarkPlayed stamps last_played_at for the given items. Called when a
// lineup is committed so the recency bonus reflects air history.
func (r *MediaRepository) MarkPlayed(ctx context.Context, ids []string, playedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids)+1)
	args[0] = playedAt
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args[i+1] = id
	}
	query := fmt.Sprintf(`UPDATE media_items SET last_played_at = $1 WHERE id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark media items played: %w", err)
	}
	return nil
}

// Delete removes a media item permanently.
func (r *MediaRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM media_items WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete media item: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
