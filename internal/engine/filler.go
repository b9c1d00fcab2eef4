package engine

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/lineup-tv/lineup-api/internal/models"
)

// blockFiller fills a single block by repeated greedy selection. Candidates
// within epsilon of the top score count as tied and the run-seeded PRNG
// picks among them, which is where iteration diversity comes from.
type blockFiller struct {
	scorer           scorer
	epsilon          float64
	rng              *rand.Rand
	includeBreakdown bool
}

type candidatePick struct {
	item      models.MediaItem
	breakdown models.ScoreBreakdown
}

// fill places items until the budget is exhausted or no candidate qualifies.
// Running out of candidates leaves a gap, never an error.
func (f *blockFiller) fill(profile *models.Profile, block models.TimeBlock, pool *Pool, now time.Time) models.BlockFill {
	fill := models.BlockFill{
		BlockName: block.Name,
		Start:     block.Start,
		End:       block.End,
		Items:     make([]models.PlacedItem, 0, 8),
	}
	budget := block.Budget()
	var used time.Duration
	var prev *models.MediaItem
	placedHere := make(map[string]bool)
	skip := make(map[string]bool)

	for used < budget {
		p := placement{
			block:     &block,
			remaining: budget - used,
			offset:    used,
			previous:  prev,
			now:       now,
		}
		pick, ok := f.pick(profile, p, pool, placedHere, skip)
		if !ok {
			fill.Note = fmt.Sprintf("no qualifying candidate for remaining %s", budget-used)
			break
		}
		placed := models.PlacedItem{
			Item:          pick.item,
			OffsetSeconds: int(used / time.Second),
			Score:         pick.breakdown.Total,
		}
		if f.includeBreakdown {
			breakdown := pick.breakdown
			placed.Breakdown = &breakdown
		}
		fill.Items = append(fill.Items, placed)
		placedHere[pick.item.ID] = true
		pool.MarkUsed(pick.item.ID)
		used += pick.item.Duration()
		item := pick.item
		prev = &item
	}

	fill.UsedSeconds = int(used / time.Second)
	if gap := budget - used; gap > 0 {
		fill.GapSeconds = int(gap / time.Second)
	}
	return fill
}

// pick selects the best candidate for the current placement. Primary content
// is considered first; filler items enter only when no primary qualifies.
func (f *blockFiller) pick(profile *models.Profile, p placement, pool *Pool, placedHere, skip map[string]bool) (candidatePick, bool) {
	if pick, ok := f.pickFrom(profile, p, pool, placedHere, skip, false); ok {
		return pick, true
	}
	return f.pickFrom(profile, p, pool, placedHere, skip, true)
}

func (f *blockFiller) pickFrom(profile *models.Profile, p placement, pool *Pool, placedHere, skip map[string]bool, fillers bool) (candidatePick, bool) {
	var candidates []candidatePick
	bestScore := -1.0
	for _, item := range pool.Items() {
		if item.Filler != fillers {
			continue
		}
		if placedHere[item.ID] || skip[item.ID] {
			continue
		}
		if !profile.AllowReuse && pool.Used(item.ID) {
			continue
		}
		breakdown := f.scorer.scoreItem(profile, p, item)
		if breakdown.Disqualified {
			if contextFreeDisqualification(breakdown) {
				skip[item.ID] = true
			}
			continue
		}
		candidates = append(candidates, candidatePick{item: item, breakdown: breakdown})
		if breakdown.Total > bestScore {
			bestScore = breakdown.Total
		}
	}
	if len(candidates) == 0 {
		return candidatePick{}, false
	}
	ties := candidates[:0]
	for _, c := range candidates {
		if c.breakdown.Total >= bestScore-f.epsilon {
			ties = append(ties, c)
		}
	}
	if len(ties) == 1 {
		return ties[0], true
	}
	return ties[f.rng.Intn(len(ties))], true
}
