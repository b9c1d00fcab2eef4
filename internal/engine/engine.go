// Package engine implements the scoring and optimization core: criterion
// evaluators, the score aggregator, the greedy block filler, the lineup
// builder, the iterative optimizer, and the scoring analyzer. The engine
// performs no I/O; profiles and media pools arrive as parsed structs and
// results leave as models. For a fixed seed and pool order every run is
// deterministic.
package engine

import (
	"time"

	"github.com/lineup-tv/lineup-api/internal/models"
)

// Tuning carries engine-wide scoring knobs sourced from configuration.
type Tuning struct {
	// Epsilon is the score band within which top candidates count as tied
	// and the seeded PRNG breaks the tie.
	Epsilon float64
	// DurationTolerance is the slack an item may overflow a block's
	// remaining budget before the duration criterion disqualifies it.
	DurationTolerance time.Duration
	// RecencyWindow is the span within which a previous airing suppresses
	// the recency bonus.
	RecencyWindow time.Duration
	// BlockbusterRating is the external rating at or above which an item
	// earns the blockbuster bonus even without the flag.
	BlockbusterRating float64
}

// DefaultTuning returns the stock engine knobs.
func DefaultTuning() Tuning {
	return Tuning{
		Epsilon:           0.001,
		DurationTolerance: 5 * time.Minute,
		RecencyWindow:     30 * 24 * time.Hour,
		BlockbusterRating: 8.0,
	}
}

// normalize fills zero values with defaults so a partially populated Tuning
// behaves sanely.
func (t Tuning) normalize() Tuning {
	def := DefaultTuning()
	if t.Epsilon <= 0 {
		t.Epsilon = def.Epsilon
	}
	if t.DurationTolerance <= 0 {
		t.DurationTolerance = def.DurationTolerance
	}
	if t.RecencyWindow <= 0 {
		t.RecencyWindow = def.RecencyWindow
	}
	if t.BlockbusterRating <= 0 {
		t.BlockbusterRating = def.BlockbusterRating
	}
	return t
}

// placement is the context a candidate is evaluated against: the block, how
// much budget remains, how far into the block the item would start, and the
// previously placed item when there is one.
type placement struct {
	block     *models.TimeBlock
	remaining time.Duration
	offset    time.Duration
	previous  *models.MediaItem
	now       time.Time
}

// elapsedFraction reports how far into the block budget the placement falls.
func (p placement) elapsedFraction() float64 {
	budget := p.block.Budget()
	if budget <= 0 {
		return 0
	}
	return float64(p.offset) / float64(budget)
}

// outcome is a single evaluator's raw result before rule resolution.
// satisfied feeds mandatory and preferred rules, violated feeds forbidden
// rules, and forced carries a by-construction verdict that applies no matter
// what the profile configures.
type outcome struct {
	score     float64
	satisfied bool
	violated  bool
	forced    models.Verdict
	detail    string
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
