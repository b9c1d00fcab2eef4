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

func newLineupMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func lineupRow() *sqlmock.Rows {
	blocks := `[{"block_name":"evening","start":"18:00","end":"21:00","items":[],"used_seconds":10200,"gap_seconds":600}]`
	return sqlmock.NewRows([]string{"id", "profile_id", "name", "seed", "iteration", "score", "status", "item_count", "blocks", "note", "created_at"}).
		AddRow("lineup-1", "profile-1", "Saturday Premiere", int64(42), 3, 3.4821, "completed", 3, []byte(blocks), "", time.Now())
}

func TestLineupRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newLineupMock(t)
	defer cleanup()
	repo := NewLineupRepository(db)

	mock.ExpectExec("INSERT INTO lineups").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	lineup := &models.Lineup{ProfileID: "profile-1", Name: "Saturday Premiere", Status: models.LineupCompleted}
	err := repo.Create(context.Background(), lineup)
	require.NoError(t, err)
	assert.NotEmpty(t, lineup.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLineupRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newLineupMock(t)
	defer cleanup()
	repo := NewLineupRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, profile_id, name, seed, iteration, score, status, item_count, blocks, note, created_at FROM lineups WHERE id = $1 LIMIT 1")).
		WithArgs("lineup-1").
		WillReturnRows(lineupRow())

	lineup, err := repo.GetByID(context.Background(), "lineup-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), lineup.Seed)
	require.Len(t, lineup.Blocks, 1)
	assert.Equal(t, "evening", lineup.Blocks[0].BlockName)
	assert.Equal(t, 600, lineup.Blocks[0].GapSeconds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLineupRepositoryListByProfile(t *testing.T) {
	db, mock, cleanup := newLineupMock(t)
	defer cleanup()
	repo := NewLineupRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, profile_id, name, seed, iteration, score, status, item_count, blocks, note, created_at FROM lineups WHERE 1=1 AND profile_id = $1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("profile-1").
		WillReturnRows(lineupRow())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lineups WHERE 1=1 AND profile_id = $1")).
		WithArgs("profile-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	lineups, total, err := repo.List(context.Background(), models.LineupFilter{ProfileID: "profile-1"})
	require.NoError(t, err)
	assert.Len(t, lineups, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLineupRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newLineupMock(t)
	defer cleanup()
	repo := NewLineupRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM lineups WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
