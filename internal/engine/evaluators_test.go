package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lineup-tv/lineup-api/internal/models"
)

func TestTypeEvaluatorRejectsDisallowedType(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")
	block.Criteria.AllowedTypes = []models.ContentType{models.ContentTypeMovie}

	out := s.evalType(fixturePlacement(&block, 90*time.Minute, 0), fixtureEpisode("ep-1", 22))
	assert.Equal(t, models.VerdictMandatoryFailed, out.forced)
	assert.True(t, out.violated)

	out = s.evalType(fixturePlacement(&block, 90*time.Minute, 0), fixtureMovie("mv-1", 90))
	assert.True(t, out.satisfied)
	assert.InDelta(t, 1.0, out.score, 1e-9)
}

func TestDurationEvaluatorScoresPartialFill(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")

	out := s.evalDuration(fixturePlacement(&block, 90*time.Minute, 0), fixtureMovie("mv-1", 58))
	require.True(t, out.satisfied)
	assert.InDelta(t, 0.7, out.score, 1e-9)
	assert.Greater(t, out.score, 0.0)
	assert.Less(t, out.score, 1.0)
}

func TestDurationEvaluatorDisqualifiesOverflow(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")

	// Even one minute past the remaining budget never fits, tolerance or not.
	out := s.evalDuration(fixturePlacement(&block, 90*time.Minute, 0), fixtureMovie("mv-1", 91))
	assert.Equal(t, models.VerdictMandatoryFailed, out.forced)
	assert.True(t, out.violated)

	out = s.evalDuration(fixturePlacement(&block, 90*time.Minute, 0), fixtureMovie("mv-2", 90))
	assert.True(t, out.satisfied)
	assert.InDelta(t, 1.0, out.score, 1e-9)
}

func TestDurationEvaluatorToleranceIsScoringOnly(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")

	// Slack inside the tolerance window counts as an exact fit.
	out := s.evalDuration(fixturePlacement(&block, 90*time.Minute, 0), fixtureMovie("mv-1", 86))
	require.True(t, out.satisfied)
	assert.InDelta(t, 1.0, out.score, 1e-9)

	// Past the window the score decays with the remaining slack.
	out = s.evalDuration(fixturePlacement(&block, 90*time.Minute, 0), fixtureMovie("mv-2", 80))
	require.True(t, out.satisfied)
	assert.Less(t, out.score, 1.0)
}

func TestGenreEvaluatorRequiresFullIncludeSet(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")
	block.Criteria.GenresInclude = []string{"action", "comedy"}

	item := fixtureMovie("mv-1", 90)
	item.Genres = models.StringList{"action"}
	out := s.evalGenre(fixturePlacement(&block, 90*time.Minute, 0), item)
	assert.False(t, out.satisfied)
	assert.InDelta(t, 0.5, out.score, 1e-9)

	item.Genres = models.StringList{"action", "comedy"}
	out = s.evalGenre(fixturePlacement(&block, 90*time.Minute, 0), item)
	assert.True(t, out.satisfied)
	assert.InDelta(t, 1.0, out.score, 1e-9)
}

func TestGenreEvaluatorHalvesOnExcludedHit(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")
	block.Criteria.GenresExclude = []string{"horror"}

	item := fixtureMovie("mv-1", 90)
	item.Genres = models.StringList{"horror"}
	out := s.evalGenre(fixturePlacement(&block, 90*time.Minute, 0), item)
	assert.True(t, out.violated)
	assert.InDelta(t, 0.5, out.score, 1e-9)
}

func TestTimingEvaluatorCurve(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")
	block.Criteria.Timing = models.TimingThresholds{Preferred: 0.25, Mandatory: 0.5, Forbidden: 0.9}
	budget := block.Budget()

	cases := []struct {
		name      string
		fraction  float64
		score     float64
		satisfied bool
		violated  bool
	}{
		{"start", 0, 1.0, true, false},
		{"preferred boundary", 0.25, 0.8, true, false},
		{"neutral band", 0.4, 0.6, true, false},
		{"late band", 0.7, 0.35, false, false},
		{"past forbidden", 0.95, 0.05, false, true},
	}
	for _, tc := range cases {
		offset := time.Duration(tc.fraction * float64(budget))
		out := s.evalTiming(fixturePlacement(&block, budget-offset, offset), fixtureMovie("mv-1", 30))
		assert.InDelta(t, tc.score, out.score, 1e-9, tc.name)
		assert.Equal(t, tc.satisfied, out.satisfied, tc.name)
		assert.Equal(t, tc.violated, out.violated, tc.name)
	}
}

func TestTimingEvaluatorNeutralWithoutThresholds(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")

	out := s.evalTiming(fixturePlacement(&block, 10*time.Minute, 170*time.Minute), fixtureMovie("mv-1", 10))
	assert.True(t, out.satisfied)
	assert.InDelta(t, 1.0, out.score, 1e-9)
}

func TestStrategyEvaluatorFreeModePenalizesAdjacency(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")

	prev := fixtureEpisode("ep-1", 22)
	prev.CollectionID = "trek"
	prev.CollectionIndex = 1
	next := fixtureEpisode("ep-2", 22)
	next.CollectionID = "trek"
	next.CollectionIndex = 2

	p := fixturePlacement(&block, 90*time.Minute, 22*time.Minute)
	p.previous = &prev
	out := s.evalStrategy(p, next)
	assert.True(t, out.violated)
	assert.InDelta(t, 0.3, out.score, 1e-9)
}

func TestStrategyEvaluatorSequentialModeEnforcesOrder(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")
	block.Criteria.Strategy = models.StrategySequential

	prev := fixtureEpisode("ep-1", 22)
	prev.CollectionID = "trek"
	prev.CollectionIndex = 1

	inOrder := fixtureEpisode("ep-2", 22)
	inOrder.CollectionID = "trek"
	inOrder.CollectionIndex = 2
	p := fixturePlacement(&block, 90*time.Minute, 22*time.Minute)
	p.previous = &prev
	out := s.evalStrategy(p, inOrder)
	assert.True(t, out.satisfied)

	outOfOrder := fixtureEpisode("ep-5", 22)
	outOfOrder.CollectionID = "trek"
	outOfOrder.CollectionIndex = 5
	out = s.evalStrategy(p, outOfOrder)
	assert.True(t, out.violated)
}

func TestAgeEvaluatorPenalizesLadderDistance(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("family", "08:00", "12:00")
	block.Criteria.MaxAgeRating = "PG-13"

	item := fixtureMovie("mv-1", 90)
	item.AgeRating = "R"
	out := s.evalAge(fixturePlacement(&block, time.Hour, 0), item)
	assert.True(t, out.violated)
	assert.InDelta(t, 0.8, out.score, 1e-9)

	item.AgeRating = "G"
	out = s.evalAge(fixturePlacement(&block, time.Hour, 0), item)
	assert.True(t, out.satisfied)
}

func TestRatingEvaluatorLinearPenalty(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")
	block.Criteria.MinRating = 7.0

	item := fixtureMovie("mv-1", 90)
	item.Rating = 3.5
	out := s.evalRating(fixturePlacement(&block, time.Hour, 0), item)
	assert.True(t, out.violated)
	assert.InDelta(t, 0.5, out.score, 1e-9)

	item.Rating = 7.5
	out = s.evalRating(fixturePlacement(&block, time.Hour, 0), item)
	assert.True(t, out.satisfied)
}

func TestFilterEvaluatorForbiddenTermDisqualifies(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("family", "08:00", "12:00")
	block.Criteria.Keywords = models.FilterSpec{Forbidden: []string{"gore"}}

	item := fixtureMovie("mv-1", 90)
	item.Keywords = models.StringList{"Gore", "classic"}
	out := s.evalFilter(fixturePlacement(&block, time.Hour, 0), item)
	assert.Equal(t, models.VerdictForbiddenTriggered, out.forced)
}

func TestFilterEvaluatorPreferredMatchesRaiseScore(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")
	block.Criteria.Keywords = models.FilterSpec{Preferred: []string{"space"}}
	block.Criteria.Studios = models.FilterSpec{Preferred: []string{"paramount"}}

	item := fixtureMovie("mv-1", 90)
	item.Keywords = models.StringList{"space"}
	item.Studio = "Paramount"
	out := s.evalFilter(fixturePlacement(&block, time.Hour, 0), item)
	assert.Equal(t, models.VerdictPreferredMatched, out.forced)
	assert.InDelta(t, 1.0, out.score, 1e-9)

	item.Studio = "Universal"
	out = s.evalFilter(fixturePlacement(&block, time.Hour, 0), item)
	assert.InDelta(t, 0.75, out.score, 1e-9)
}

func TestBonusEvaluatorAccumulatesComponents(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")

	item := fixtureMovie("mv-1", 90)
	item.Blockbuster = true
	out := s.evalBonus(fixturePlacement(&block, time.Hour, 0), item)
	assert.InDelta(t, 0.7, out.score, 1e-9) // recency + blockbuster

	recent := fixtureNow.Add(-time.Hour)
	item.LastPlayedAt = &recent
	out = s.evalBonus(fixturePlacement(&block, time.Hour, 0), item)
	assert.InDelta(t, 0.3, out.score, 1e-9) // blockbuster only

	item.Blockbuster = false
	item.Rating = 8.5
	out = s.evalBonus(fixturePlacement(&block, time.Hour, 0), item)
	assert.InDelta(t, 0.3, out.score, 1e-9) // rating implies blockbuster
}

func TestBonusEvaluatorCollectionContinuity(t *testing.T) {
	s := newScorer(Tuning{})
	block := fixtureBlock("prime", "20:00", "23:00")

	prev := fixtureEpisode("ep-1", 22)
	prev.CollectionID = "trek"
	prev.CollectionIndex = 3
	next := fixtureEpisode("ep-2", 22)
	next.CollectionID = "trek"
	next.CollectionIndex = 4

	p := fixturePlacement(&block, time.Hour, 0)
	p.previous = &prev
	out := s.evalBonus(p, next)
	assert.InDelta(t, 0.7, out.score, 1e-9) // recency + continuity
	assert.True(t, out.satisfied)
}

// --- Fixtures ---

var fixtureNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func fixtureClock(raw string) models.ClockTime {
	value, _ := models.ParseClockTime(raw)
	return value
}

func fixtureBlock(name, start, end string) models.TimeBlock {
	return models.TimeBlock{
		Name:  name,
		Start: fixtureClock(start),
		End:   fixtureClock(end),
	}
}

func fixturePlacement(block *models.TimeBlock, remaining, offset time.Duration) placement {
	return placement{
		block:     block,
		remaining: remaining,
		offset:    offset,
		now:       fixtureNow,
	}
}

func fixtureMovie(id string, minutes int) models.MediaItem {
	return models.MediaItem{
		ID:              id,
		Title:           id,
		Type:            models.ContentTypeMovie,
		DurationSeconds: minutes * 60,
		Rating:          7.0,
	}
}

func fixtureEpisode(id string, minutes int) models.MediaItem {
	item := fixtureMovie(id, minutes)
	item.Type = models.ContentTypeEpisode
	return item
}
