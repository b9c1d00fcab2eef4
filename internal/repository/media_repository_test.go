package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lineup-tv/lineup-api/internal/models"
)

func newMediaMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func mediaRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "type", "duration_seconds", "genres", "age_rating", "rating", "keywords", "studio", "collection_id", "collection_index", "last_played_at", "blockbuster", "filler", "created_at", "updated_at"}).
		AddRow("m1", "Skyline Heist", "movie", 5400, []byte(`["action"]`), "PG-13", 8.2, []byte(`[]`), "Nimbus", "", 0, nil, false, false, time.Now(), time.Now())
}

func TestMediaRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMediaMock(t)
	defer cleanup()
	repo := NewMediaRepository(db)

	mock.ExpectExec("INSERT INTO media_items").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	item := &models.MediaItem{Title: "Skyline Heist", Type: models.ContentTypeMovie, DurationSeconds: 5400}
	err := repo.Create(context.Background(), item)
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaRepositoryListByType(t *testing.T) {
	db, mock, cleanup := newMediaMock(t)
	defer cleanup()
	repo := NewMediaRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, type, duration_seconds, genres, age_rating, rating, keywords, studio, collection_id, collection_index, last_played_at, blockbuster, filler, created_at, updated_at FROM media_items WHERE 1=1 AND type = $1 ORDER BY title ASC LIMIT 50 OFFSET 0")).
		WithArgs("movie").
		WillReturnRows(mediaRow())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM media_items WHERE 1=1 AND type = $1")).
		WithArgs("movie").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.MediaFilter{Type: "movie"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.StringList{"action"}, items[0].Genres)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaRepositoryListRejectsUnknownSort(t *testing.T) {
	db, mock, cleanup := newMediaMock(t)
	defer cleanup()
	repo := NewMediaRepository(db)

	// unknown sort column falls back to title
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY title ASC LIMIT 50 OFFSET 0")).
		WillReturnRows(mediaRow())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.List(context.Background(), models.MediaFilter{SortBy: "rating; DROP TABLE media_items"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaRepositoryMarkPlayed(t *testing.T) {
	db, mock, cleanup := newMediaMock(t)
	defer cleanup()
	repo := NewMediaRepository(db)

	playedAt := time.Date(2025, 6, 14, 20, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE media_items SET last_played_at = $1 WHERE id IN ($2,$3)")).
		WithArgs(playedAt, "m1", "m2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.MarkPlayed(context.Background(), []string{"m1", "m2"}, playedAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMediaMock(t)
	defer cleanup()
	repo := NewMediaRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM media_items WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaRepositoryBulkUpsert(t *testing.T) {
	db, mock, cleanup := newMediaMock(t)
	defer cleanup()
	repo := NewMediaRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO media_items").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO media_items").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	items := []models.MediaItem{
		{ID: "m1", Title: "Skyline Heist", Type: models.ContentTypeMovie, DurationSeconds: 5400},
		{ID: "m2", Title: "Harbor Lights", Type: models.ContentTypeMovie, DurationSeconds: 4800},
	}
	err := repo.BulkUpsert(context.Background(), items)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
