package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lineup-tv/lineup-api/internal/models"
)

func TestOptimizerDeterministicForFixedSeed(t *testing.T) {
	profile, items := diversityFixture()
	opts := Options{Iterations: 4, Seed: 99}

	first, err := NewOptimizer(Tuning{}, nil).Run(context.Background(), profile, mustPool(t, items...), opts)
	require.NoError(t, err)
	second, err := NewOptimizer(Tuning{}, nil).Run(context.Background(), profile, mustPool(t, items...), opts)
	require.NoError(t, err)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, placedIDs(first), placedIDs(second))
	assert.Equal(t, first.Seed, second.Seed)
}

func TestOptimizerKeepsBestAcrossIterations(t *testing.T) {
	profile, items := diversityFixture()
	optimizer := NewOptimizer(Tuning{}, nil)

	best, err := optimizer.Run(context.Background(), profile, mustPool(t, items...), Options{Iterations: 4, Seed: 7})
	require.NoError(t, err)

	var max float64
	for i := 0; i < 4; i++ {
		single, err := optimizer.Run(context.Background(), profile, mustPool(t, items...), Options{Iterations: 1, Seed: 7 + int64(i)})
		require.NoError(t, err)
		if single.Score > max {
			max = single.Score
		}
	}
	assert.InDelta(t, max, best.Score, 1e-9)
}

func TestOptimizerReportsProgressEachIteration(t *testing.T) {
	profile, items := diversityFixture()
	sink := &progressCollector{}

	_, err := NewOptimizer(Tuning{}, nil).Run(context.Background(), profile, mustPool(t, items...), Options{
		Iterations: 5,
		Seed:       3,
		Progress:   sink,
	})
	require.NoError(t, err)

	calls := sink.snapshot()
	require.Len(t, calls, 5)
	for i, call := range calls {
		assert.Equal(t, i+1, call.completed)
		assert.Equal(t, 5, call.total)
		if i > 0 {
			assert.GreaterOrEqual(t, call.best, calls[i-1].best)
		}
	}
}

func TestOptimizerUsesProfileIterationsByDefault(t *testing.T) {
	profile, items := diversityFixture()
	profile.Iterations = 3
	sink := &progressCollector{}

	_, err := NewOptimizer(Tuning{}, nil).Run(context.Background(), profile, mustPool(t, items...), Options{Seed: 3, Progress: sink})
	require.NoError(t, err)
	assert.Len(t, sink.snapshot(), 3)
}

func TestOptimizerCancellationReturnsBestSoFar(t *testing.T) {
	profile, items := diversityFixture()
	ctx, cancel := context.WithCancel(context.Background())
	sink := ProgressFunc(func(completed, total int, bestScore float64) {
		if completed == 1 {
			cancel()
		}
	})

	best, err := NewOptimizer(Tuning{}, nil).Run(ctx, profile, mustPool(t, items...), Options{
		Iterations: 50,
		Seed:       11,
		Progress:   sink,
	})
	require.NoError(t, err)
	assert.Equal(t, models.LineupCanceled, best.Status)
	assert.Contains(t, best.Note, "canceled")
	assert.Positive(t, best.ItemCount)
}

func TestOptimizerParallelMatchesSequential(t *testing.T) {
	profile, items := diversityFixture()
	optimizer := NewOptimizer(Tuning{}, nil)

	sequential, err := optimizer.Run(context.Background(), profile, mustPool(t, items...), Options{Iterations: 6, Seed: 21})
	require.NoError(t, err)
	parallel, err := optimizer.Run(context.Background(), profile, mustPool(t, items...), Options{Iterations: 6, Seed: 21, Parallelism: 3})
	require.NoError(t, err)

	assert.Equal(t, sequential.Score, parallel.Score)
	assert.Equal(t, sequential.Seed, parallel.Seed)
	assert.Equal(t, placedIDs(sequential), placedIDs(parallel))
}

func TestOptimizerEmptyLineupWhenNothingQualifies(t *testing.T) {
	block := fixtureBlock("movies-only", "18:00", "20:00")
	block.Criteria.AllowedTypes = []models.ContentType{models.ContentTypeMovie}
	profile := fixtureProfile(block)
	pool := mustPool(t, fixtureEpisode("ep-1", 22))

	lineup, err := NewOptimizer(Tuning{}, nil).Run(context.Background(), profile, pool, Options{Iterations: 3, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, models.LineupEmpty, lineup.Status)
	assert.NotEmpty(t, lineup.Note)
	assert.Zero(t, lineup.Score)
}

func TestOptimizerRejectsInvalidProfile(t *testing.T) {
	overlapping := fixtureProfile(
		fixtureBlock("a", "08:00", "12:00"),
		fixtureBlock("b", "10:00", "14:00"),
	)
	pool := mustPool(t, fixtureMovie("mv-1", 60))

	_, err := NewOptimizer(Tuning{}, nil).Run(context.Background(), overlapping, pool, Options{Iterations: 1})
	require.Error(t, err)
	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "a", cfgErr.Block)
}

func TestOptimizerRejectsEmptyPool(t *testing.T) {
	profile := fixtureProfile(fixtureBlock("a", "08:00", "12:00"))
	pool, err := NewPool(nil)
	require.NoError(t, err)

	_, err = NewOptimizer(Tuning{}, nil).Run(context.Background(), profile, pool, Options{Iterations: 1})
	require.Error(t, err)
}

// --- Fixtures ---

// diversityFixture returns a profile and pool where tie-breaking changes the
// outcome: the twins tie on score, but only one of them unlocks a collection
// continuity bonus for the follow-up episode.
func diversityFixture() (models.Profile, []models.MediaItem) {
	block := fixtureBlock("evening", "21:00", "22:00")
	block.Criteria.Strategy = models.StrategySequential
	profile := fixtureProfile(block)

	twinA := fixtureMovie("twin-a", 45)
	twinB := fixtureMovie("twin-b", 45)
	twinB.CollectionID = "trek"
	twinB.CollectionIndex = 1

	closer := fixtureEpisode("closer", 15)
	closer.CollectionID = "trek"
	closer.CollectionIndex = 2

	return profile, []models.MediaItem{twinA, twinB, closer}
}

func placedIDs(lineup models.Lineup) []string {
	var ids []string
	for _, fill := range lineup.Blocks {
		for _, placed := range fill.Items {
			ids = append(ids, placed.Item.ID)
		}
	}
	return ids
}

type progressCall struct {
	completed int
	total     int
	best      float64
}

type progressCollector struct {
	mu    sync.Mutex
	calls []progressCall
}

func (c *progressCollector) Progress(completed, total int, bestScore float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, progressCall{completed: completed, total: total, best: bestScore})
}

func (c *progressCollector) snapshot() []progressCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	calls := make([]progressCall, len(c.calls))
	copy(calls, c.calls)
	return calls
}
