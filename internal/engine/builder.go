package engine

import (
	"math/rand"
	"time"

	"github.com/lineup-tv/lineup-api/internal/models"
)

// Builder assembles one complete lineup by filling the profile's blocks in
// chronological order over a shared pool.
type Builder struct {
	tuning Tuning
}

// NewBuilder returns a builder with normalized tuning.
func NewBuilder(tuning Tuning) *Builder {
	return &Builder{tuning: tuning.normalize()}
}

// Build runs a single pass. The same profile, pool order, seed, and
// reference time always produce the same lineup. The lineup score is the sum
// of placed item scores; a mean would reward thin schedules.
func (b *Builder) Build(profile models.Profile, pool *Pool, seed int64, now time.Time, includeBreakdown bool) models.Lineup {
	filler := &blockFiller{
		scorer:           newScorer(b.tuning),
		epsilon:          b.tuning.Epsilon,
		rng:              rand.New(rand.NewSource(seed)),
		includeBreakdown: includeBreakdown,
	}
	lineup := models.Lineup{
		ProfileID: profile.ID,
		Seed:      seed,
		Status:    models.LineupCompleted,
		Blocks:    make(models.BlockFillList, 0, len(profile.Blocks)),
	}
	for _, block := range profile.SortedBlocks() {
		fill := filler.fill(&profile, block, pool, now)
		for _, placed := range fill.Items {
			lineup.Score += placed.Score
		}
		lineup.ItemCount += len(fill.Items)
		lineup.Blocks = append(lineup.Blocks, fill)
	}
	if lineup.ItemCount == 0 {
		lineup.Status = models.LineupEmpty
		lineup.Note = "no candidate qualified for any block"
	}
	return lineup
}
