package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lineup-tv/lineup-api/internal/dto"
	"github.com/lineup-tv/lineup-api/internal/models"
	appErrors "github.com/lineup-tv/lineup-api/pkg/errors"
)

type mockLineupRepo struct {
	lineups    map[string]models.Lineup
	lastFilter models.LineupFilter
	listTotal  int
	deleted    []string
}

func (m *mockLineupRepo) GetByID(ctx context.Context, id string) (*models.Lineup, error) {
	if l, ok := m.lineups[id]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLineupRepo) List(ctx context.Context, filter models.LineupFilter) ([]models.Lineup, int, error) {
	m.lastFilter = filter
	out := make([]models.Lineup, 0, len(m.lineups))
	for _, l := range m.lineups {
		out = append(out, l)
	}
	return out, m.listTotal, nil
}

func (m *mockLineupRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.lineups[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.lineups, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func TestLineupServiceList(t *testing.T) {
	repo := &mockLineupRepo{
		lineups:   map[string]models.Lineup{"lineup-1": {ID: "lineup-1", ProfileID: "profile-1"}},
		listTotal: 1,
	}
	svc := NewLineupService(repo, zap.NewNop())

	lineups, pagination, err := svc.List(context.Background(), dto.LineupQuery{ProfileID: "profile-1", Status: "completed"})
	require.NoError(t, err)
	assert.Len(t, lineups, 1)
	assert.Equal(t, "profile-1", repo.lastFilter.ProfileID)
	assert.Equal(t, "completed", repo.lastFilter.Status)
	require.NotNil(t, pagination)
	assert.Equal(t, 20, pagination.PageSize)
}

func TestLineupServiceGetUnknown(t *testing.T) {
	svc := NewLineupService(&mockLineupRepo{}, zap.NewNop())

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestLineupServiceDelete(t *testing.T) {
	repo := &mockLineupRepo{lineups: map[string]models.Lineup{"lineup-1": {ID: "lineup-1"}}}
	svc := NewLineupService(repo, zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), "lineup-1"))
	assert.Contains(t, repo.deleted, "lineup-1")

	err := svc.Delete(context.Background(), "lineup-1")
	require.Error(t, err)
}
