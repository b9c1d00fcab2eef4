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

const lineupColumns = `id, profile_id, name, seed, iteration, score, status, item_count, blocks, note, created_at`

// LineupRepository persists committed lineups.
type LineupRepository struct {
	db *sqlx.DB
}

// NewLineupRepository constructs the repository.
func NewLineupRepository(db *sqlx.DB) *LineupRepository {
	return &LineupRepository{db: db}
}

// Create inserts a lineup row with generated defaults.
func (r *LineupRepository) Create(ctx context.Context, lineup *models.Lineup) error {
	if lineup.ID == "" {
		lineup.ID = uuid.NewString()
	}
	if lineup.CreatedAt.IsZero() {
		lineup.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO lineups (` + lineupColumns + `)
VALUES (:id, :profile_id, :name, :seed, :iteration, :score, :status, :item_count, :blocks, :note, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lineup); err != nil {
		return fmt.Errorf("create lineup: %w", err)
	}
	return nil
}

// GetByID returns a lineup by identifier.
func (r *LineupRepository) GetByID(ctx context.Context, id string) (*models.Lineup, error) {
	const query = `SELECT ` + lineupColumns + ` FROM lineups WHERE id = $1 LIMIT 1`
	var lineup models.Lineup
	if err := r.db.GetContext(ctx, &lineup, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get lineup: %w", err)
	}
	return &lineup, nil
}

// List returns lineups based on filters with total count.
func (r *LineupRepository) List(ctx context.Context, filter models.LineupFilter) ([]models.Lineup, int, error) {
	baseQuery := `FROM lineups WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.ProfileID != "" {
		conditions = append(conditions, fmt.Sprintf("profile_id = $%d", len(args)+1))
		args = append(args, filter.ProfileID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]bool{
		"created_at": true,
		"score":      true,
		"name":       true,
		"item_count": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", lineupColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var lineups []models.Lineup
	if err := r.db.SelectContext(ctx, &lineups, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list lineups: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lineups: %w", err)
	}

	return lineups, total, nil
}

// Delete removes a lineup permanently.
func (r *LineupRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM lineups WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete lineup: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
