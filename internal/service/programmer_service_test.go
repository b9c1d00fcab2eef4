package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lineup-tv/lineup-api/internal/dto"
	"github.com/lineup-tv/lineup-api/internal/engine"
	"github.com/lineup-tv/lineup-api/internal/models"
	appErrors "github.com/lineup-tv/lineup-api/pkg/errors"
)

// --- Fixtures ---

type mediaLibraryStub struct {
	items     []models.MediaItem
	played    [][]string
	playedErr error
}

func (s *mediaLibraryStub) ListAll(ctx context.Context) ([]models.MediaItem, error) {
	return s.items, nil
}

func (s *mediaLibraryStub) ListByIDs(ctx context.Context, ids []string) ([]models.MediaItem, error) {
	byID := make(map[string]models.MediaItem, len(s.items))
	for _, item := range s.items {
		byID[item.ID] = item
	}
	var out []models.MediaItem
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *mediaLibraryStub) MarkPlayed(ctx context.Context, ids []string, playedAt time.Time) error {
	if s.playedErr != nil {
		return s.playedErr
	}
	s.played = append(s.played, ids)
	return nil
}

type lineupWriterStub struct {
	created []*models.Lineup
	err     error
}

func (s *lineupWriterStub) Create(ctx context.Context, lineup *models.Lineup) error {
	if s.err != nil {
		return s.err
	}
	if lineup.ID == "" {
		lineup.ID = uuid.NewString()
	}
	s.created = append(s.created, lineup)
	return nil
}

func programmerProfileFixture() *models.Profile {
	return &models.Profile{
		ID:   "profile-1",
		Name: "Weekend Movies",
		Blocks: models.TimeBlockList{
			{
				Name:  "evening",
				Start: models.ClockTime(18 * 60),
				End:   models.ClockTime(21 * 60),
				Criteria: models.BlockCriteria{
					AllowedTypes: []models.ContentType{models.ContentTypeMovie},
				},
			},
		},
		Iterations: 3,
	}
}

func programmerLibraryFixture() []models.MediaItem {
	items := make([]models.MediaItem, 0, 6)
	for i := 0; i < 6; i++ {
		items = append(items, models.MediaItem{
			ID:              fmt.Sprintf("m%d", i+1),
			Title:           fmt.Sprintf("Feature %d", i+1),
			Type:            models.ContentTypeMovie,
			DurationSeconds: 3600,
			Genres:          models.StringList{"drama"},
			AgeRating:       "PG",
			Rating:          6.0 + float64(i)*0.5,
		})
	}
	return items
}

func newProgrammerServiceForTest(t *testing.T, cfg ProgrammerConfig) (*ProgrammerService, *mediaLibraryStub, *lineupWriterStub) {
	t.Helper()
	profiles := &profileReaderStub{profiles: map[string]*models.Profile{
		"profile-1": programmerProfileFixture(),
	}}
	media := &mediaLibraryStub{items: programmerLibraryFixture()}
	lineups := &lineupWriterStub{}
	svc := NewProgrammerService(profiles, media, lineups, engine.DefaultTuning(), nil, nil, nil, zap.NewNop(), cfg)
	return svc, media, lineups
}

// --- Generate ---

func TestProgrammerServiceGenerate(t *testing.T) {
	svc, _, _ := newProgrammerServiceForTest(t, ProgrammerConfig{ProposalTTL: time.Minute, MaxSyncIterations: 25})
	seed := int64(7)
	resp, err := svc.Generate(context.Background(), dto.GenerateLineupRequest{
		ProfileID: "profile-1",
		Seed:      &seed,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ProposalID)
	assert.Equal(t, 3, resp.Iterations)
	assert.Equal(t, models.LineupCompleted, resp.Lineup.Status)
	// three one-hour movies fill the three-hour evening block
	assert.Equal(t, 3, resp.Lineup.ItemCount)
	assert.True(t, resp.ExpiresAt.After(time.Now()))
}

func TestProgrammerServiceGenerateDeterministicSeed(t *testing.T) {
	svc, _, _ := newProgrammerServiceForTest(t, ProgrammerConfig{ProposalTTL: time.Minute, MaxSyncIterations: 25})
	seed := int64(99)
	req := dto.GenerateLineupRequest{ProfileID: "profile-1", Seed: &seed}

	first, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, first.Lineup.Score, second.Lineup.Score)
	require.Equal(t, len(first.Lineup.Blocks), len(second.Lineup.Blocks))
	for i := range first.Lineup.Blocks {
		require.Equal(t, len(first.Lineup.Blocks[i].Items), len(second.Lineup.Blocks[i].Items))
		for j := range first.Lineup.Blocks[i].Items {
			assert.Equal(t, first.Lineup.Blocks[i].Items[j].Item.ID, second.Lineup.Blocks[i].Items[j].Item.ID)
		}
	}
}

func TestProgrammerServiceGenerateIterationCap(t *testing.T) {
	svc, _, _ := newProgrammerServiceForTest(t, ProgrammerConfig{ProposalTTL: time.Minute, MaxSyncIterations: 5})
	_, err := svc.Generate(context.Background(), dto.GenerateLineupRequest{
		ProfileID:  "profile-1",
		Iterations: 50,
	})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestProgrammerServiceGenerateClampsProfileIterations(t *testing.T) {
	profiles := &profileReaderStub{profiles: map[string]*models.Profile{}}
	profile := programmerProfileFixture()
	profile.Iterations = 500
	profiles.profiles["profile-1"] = profile
	media := &mediaLibraryStub{items: programmerLibraryFixture()}
	svc := NewProgrammerService(profiles, media, &lineupWriterStub{}, engine.DefaultTuning(), nil, nil, nil, zap.NewNop(), ProgrammerConfig{
		ProposalTTL:       time.Minute,
		MaxSyncIterations: 4,
	})
	resp, err := svc.Generate(context.Background(), dto.GenerateLineupRequest{ProfileID: "profile-1"})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Iterations)
}

func TestProgrammerServiceGenerateUnknownProfile(t *testing.T) {
	svc, _, _ := newProgrammerServiceForTest(t, ProgrammerConfig{})
	_, err := svc.Generate(context.Background(), dto.GenerateLineupRequest{ProfileID: "missing"})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestProgrammerServiceGenerateEmptyLibrary(t *testing.T) {
	profiles := &profileReaderStub{profiles: map[string]*models.Profile{"profile-1": programmerProfileFixture()}}
	svc := NewProgrammerService(profiles, &mediaLibraryStub{}, &lineupWriterStub{}, engine.DefaultTuning(), nil, nil, nil, zap.NewNop(), ProgrammerConfig{})
	_, err := svc.Generate(context.Background(), dto.GenerateLineupRequest{ProfileID: "profile-1"})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestProgrammerServiceGenerateUnknownItemIDs(t *testing.T) {
	svc, _, _ := newProgrammerServiceForTest(t, ProgrammerConfig{})
	_, err := svc.Generate(context.Background(), dto.GenerateLineupRequest{
		ProfileID: "profile-1",
		ItemIDs:   []string{"m1", "ghost"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestProgrammerServiceGenerateSubsetPool(t *testing.T) {
	svc, _, _ := newProgrammerServiceForTest(t, ProgrammerConfig{ProposalTTL: time.Minute})
	seed := int64(3)
	resp, err := svc.Generate(context.Background(), dto.GenerateLineupRequest{
		ProfileID: "profile-1",
		Seed:      &seed,
		ItemIDs:   []string{"m1", "m2"},
	})
	require.NoError(t, err)
	// only two candidates exist, so at most two items can be placed
	assert.LessOrEqual(t, resp.Lineup.ItemCount, 2)
	for _, block := range resp.Lineup.Blocks {
		for _, placed := range block.Items {
			assert.Contains(t, []string{"m1", "m2"}, placed.Item.ID)
		}
	}
}

// --- SaveProposal ---

func TestProgrammerServiceSaveProposal(t *testing.T) {
	svc, media, lineups := newProgrammerServiceForTest(t, ProgrammerConfig{ProposalTTL: time.Minute})
	seed := int64(11)
	resp, err := svc.Generate(context.Background(), dto.GenerateLineupRequest{ProfileID: "profile-1", Seed: &seed})
	require.NoError(t, err)

	saved, err := svc.SaveProposal(context.Background(), dto.SaveLineupRequest{
		ProposalID: resp.ProposalID,
		Name:       "saturday night",
		MarkPlayed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "saturday night", saved.Name)
	require.Len(t, lineups.created, 1)
	require.Len(t, media.played, 1)
	assert.Len(t, media.played[0], saved.ItemCount)

	// a proposal is single-use
	_, err = svc.SaveProposal(context.Background(), dto.SaveLineupRequest{ProposalID: resp.ProposalID})
	require.Error(t, err)
}

func TestProgrammerServiceSaveProposalDefaultName(t *testing.T) {
	svc, _, lineups := newProgrammerServiceForTest(t, ProgrammerConfig{ProposalTTL: time.Minute})
	resp, err := svc.Generate(context.Background(), dto.GenerateLineupRequest{ProfileID: "profile-1"})
	require.NoError(t, err)

	saved, err := svc.SaveProposal(context.Background(), dto.SaveLineupRequest{ProposalID: resp.ProposalID})
	require.NoError(t, err)
	assert.Contains(t, saved.Name, "Weekend Movies")
	require.Len(t, lineups.created, 1)
}

func TestProgrammerServiceSaveProposalExpired(t *testing.T) {
	svc, _, _ := newProgrammerServiceForTest(t, ProgrammerConfig{ProposalTTL: time.Nanosecond})
	resp, err := svc.Generate(context.Background(), dto.GenerateLineupRequest{ProfileID: "profile-1"})
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	_, err = svc.SaveProposal(context.Background(), dto.SaveLineupRequest{ProposalID: resp.ProposalID})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrProposalExpired.Code, appErr.Code)
}

func TestProgrammerServiceSaveProposalUnknown(t *testing.T) {
	svc, _, _ := newProgrammerServiceForTest(t, ProgrammerConfig{})
	_, err := svc.SaveProposal(context.Background(), dto.SaveLineupRequest{ProposalID: uuid.NewString()})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrProposalExpired.Code, appErr.Code)
}

// --- RunGeneration ---

func TestProgrammerServiceRunGeneration(t *testing.T) {
	svc, _, lineups := newProgrammerServiceForTest(t, ProgrammerConfig{})
	seed := int64(5)
	job := &models.LineupJob{
		ID:   "job-1",
		Type: models.JobTypeGenerate,
		Params: models.LineupJobParams{
			ProfileID:  "profile-1",
			Iterations: 4,
			Seed:       &seed,
		},
	}
	var calls int
	sink := engine.ProgressFunc(func(completed, total int, bestScore float64) {
		calls++
		assert.Equal(t, 4, total)
	})
	lineup, err := svc.RunGeneration(context.Background(), job, sink)
	require.NoError(t, err)
	require.NotNil(t, lineup)
	assert.Equal(t, 4, calls)
	assert.NotEmpty(t, lineup.ID)
	require.Len(t, lineups.created, 1)
	assert.Contains(t, lineup.Name, "Weekend Movies")
}

// --- Analyze ---

func TestProgrammerServiceAnalyze(t *testing.T) {
	svc, _, _ := newProgrammerServiceForTest(t, ProgrammerConfig{})
	report, cached, err := svc.Analyze(context.Background(), dto.AnalyzeLineupRequest{
		ProfileID: "profile-1",
		Placements: []dto.PlacementRequest{
			{BlockName: "evening", ItemID: "m1"},
			{BlockName: "evening", ItemID: "m2"},
		},
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "profile-1", report.ProfileID)
	require.Len(t, report.Blocks, 1)
	assert.Len(t, report.Blocks[0].Items, 2)
	assert.Greater(t, report.Total, 0.0)
}

func TestProgrammerServiceAnalyzeUnknownItem(t *testing.T) {
	svc, _, _ := newProgrammerServiceForTest(t, ProgrammerConfig{})
	_, _, err := svc.Analyze(context.Background(), dto.AnalyzeLineupRequest{
		ProfileID:  "profile-1",
		Placements: []dto.PlacementRequest{{BlockName: "evening", ItemID: "ghost"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestProgrammerServiceAnalyzeUnknownBlock(t *testing.T) {
	svc, _, _ := newProgrammerServiceForTest(t, ProgrammerConfig{})
	_, _, err := svc.Analyze(context.Background(), dto.AnalyzeLineupRequest{
		ProfileID:  "profile-1",
		Placements: []dto.PlacementRequest{{BlockName: "overnight", ItemID: "m1"}},
	})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

type analysisCacheStub struct {
	entries map[string][]byte
}

func newAnalysisCacheStub() *analysisCacheStub {
	return &analysisCacheStub{entries: make(map[string][]byte)}
}

func (c *analysisCacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *analysisCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func TestProgrammerServiceAnalyzeCacheHit(t *testing.T) {
	profiles := &profileReaderStub{profiles: map[string]*models.Profile{
		"profile-1": programmerProfileFixture(),
	}}
	media := &mediaLibraryStub{items: programmerLibraryFixture()}
	cache := newAnalysisCacheStub()
	svc := NewProgrammerService(profiles, media, &lineupWriterStub{}, engine.DefaultTuning(), cache, nil, nil, zap.NewNop(), ProgrammerConfig{})

	req := dto.AnalyzeLineupRequest{
		ProfileID:  "profile-1",
		Placements: []dto.PlacementRequest{{BlockName: "evening", ItemID: "m1"}},
	}
	first, cached, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, cache.entries, 1)

	second, cached, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.Total, second.Total)
}
