package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lineup-tv/lineup-api/internal/models"
	"github.com/lineup-tv/lineup-api/pkg/export"
	"github.com/lineup-tv/lineup-api/pkg/storage"
)

type lineupSourceStub struct {
	lineups map[string]*models.Lineup
}

func (s *lineupSourceStub) GetByID(ctx context.Context, id string) (*models.Lineup, error) {
	lineup, ok := s.lineups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return lineup, nil
}

func exportLineupFixture() *models.Lineup {
	return &models.Lineup{
		ID:        "lineup-1",
		ProfileID: "profile-1",
		Name:      "Saturday Premiere",
		Seed:      42,
		Score:     3.4821,
		Status:    models.LineupCompleted,
		ItemCount: 3,
		Blocks: models.BlockFillList{
			{
				BlockName: "prime time",
				Start:     models.ClockTime(20 * 60),
				End:       models.ClockTime(23 * 60),
				Items: []models.PlacedItem{
					{
						Item: models.MediaItem{
							ID:              "m1",
							Title:           "Skyline Heist",
							Type:            models.ContentTypeMovie,
							DurationSeconds: 5400,
							Genres:          models.StringList{"action", "thriller"},
							AgeRating:       "PG-13",
							Rating:          8.2,
						},
						OffsetSeconds: 0,
						Score:         1.43,
					},
					{
						Item: models.MediaItem{
							ID:              "m2",
							Title:           "Harbor Lights",
							Type:            models.ContentTypeMovie,
							DurationSeconds: 4800,
							Genres:          models.StringList{"drama"},
							AgeRating:       "PG",
							Rating:          7.1,
						},
						OffsetSeconds: 5400,
						Score:         1.12,
					},
				},
				UsedSeconds: 10200,
				GapSeconds:  600,
			},
			{
				BlockName: "late night",
				Start:     models.ClockTime(23 * 60),
				End:       models.ClockTime(60),
				Items: []models.PlacedItem{
					{
						Item: models.MediaItem{
							ID:              "m3",
							Title:           "Static Hour",
							Type:            models.ContentTypeEpisode,
							DurationSeconds: 2700,
							AgeRating:       "TV-MA",
							Rating:          6.4,
						},
						OffsetSeconds: 0,
						Score:         0.93,
					},
				},
				UsedSeconds: 2700,
				GapSeconds:  4500,
			},
		},
	}
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	lineups := &lineupSourceStub{lineups: map[string]*models.Lineup{"lineup-1": exportLineupFixture()}}
	svc := NewExportService(lineups, store, signer, cfg, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return svc, store
}

func TestExportServiceGenerateCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.LineupJob{
		ID:     "job-1",
		Type:   models.JobTypeExport,
		Params: models.LineupJobParams{LineupID: "lineup-1", Format: models.ExportFormatCSV},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.NotEmpty(t, result.RelativePath)
	require.Contains(t, result.URL, "/export/")

	payload, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	content := string(payload)
	assert.Contains(t, content, "Saturday Premiere")
	assert.Contains(t, content, "Skyline Heist")
	assert.Contains(t, content, "prime time")
	// second item airs 90 minutes after the 20:00 block start
	assert.Contains(t, content, "21:30:00")
	// late night episode airs at the block start
	assert.Contains(t, content, "23:00:00")
}

func TestExportServiceGeneratePDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.LineupJob{
		ID:     "job-2",
		Type:   models.JobTypeExport,
		Params: models.LineupJobParams{LineupID: "lineup-1", Format: models.ExportFormatPDF},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ExportFormatPDF, result.Format)

	path := filepath.Clean(store.Path(result.RelativePath))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceGenerateUnknownLineup(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	job := &models.LineupJob{
		ID:     "job-3",
		Type:   models.JobTypeExport,
		Params: models.LineupJobParams{LineupID: "missing", Format: models.ExportFormatCSV},
	}
	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestExportFilenameSanitized(t *testing.T) {
	lineup := exportLineupFixture()
	lineup.Name = "week 34/prime:slot"
	filename := buildExportFilename(lineup, models.ExportFormatCSV)
	assert.False(t, strings.ContainsAny(filename, "/\\: "))
	assert.True(t, strings.HasPrefix(filename, "lineup_week_34-prime-slot_"))
	assert.True(t, strings.HasSuffix(filename, ".csv"))
}

func TestAirTimeWrapsMidnight(t *testing.T) {
	// 23:00 start plus a two hour offset lands at 01:00
	assert.Equal(t, "01:00:00", airTime(models.ClockTime(23*60), 7200))
	assert.Equal(t, "20:00:00", airTime(models.ClockTime(20*60), 0))
}
