package engine

import (
	"fmt"
	"strings"

	"github.com/lineup-tv/lineup-api/internal/models"
)

// scorer evaluates single criteria. All evaluators are pure: the same block,
// placement, and item always produce the same outcome.
type scorer struct {
	tuning Tuning
}

func newScorer(tuning Tuning) scorer {
	return scorer{tuning: tuning.normalize()}
}

// evaluate dispatches over the closed criterion set.
func (s scorer) evaluate(c models.Criterion, p placement, item models.MediaItem) outcome {
	switch c {
	case models.CriterionType:
		return s.evalType(p, item)
	case models.CriterionDuration:
		return s.evalDuration(p, item)
	case models.CriterionGenre:
		return s.evalGenre(p, item)
	case models.CriterionTiming:
		return s.evalTiming(p, item)
	case models.CriterionStrategy:
		return s.evalStrategy(p, item)
	case models.CriterionAge:
		return s.evalAge(p, item)
	case models.CriterionRating:
		return s.evalRating(p, item)
	case models.CriterionFilter:
		return s.evalFilter(p, item)
	case models.CriterionBonus:
		return s.evalBonus(p, item)
	}
	return outcome{score: 1, satisfied: true}
}

// evalType enforces the block's allowed content types. A mismatch is
// disqualifying no matter how the profile weighs or rules the criterion.
func (s scorer) evalType(p placement, item models.MediaItem) outcome {
	allowed := p.block.Criteria.AllowedTypes
	if len(allowed) == 0 {
		return outcome{score: 1, satisfied: true}
	}
	for _, t := range allowed {
		if item.Type == t {
			return outcome{score: 1, satisfied: true}
		}
	}
	return outcome{
		violated: true,
		forced:   models.VerdictMandatoryFailed,
		detail:   fmt.Sprintf("content type %s not allowed in block", item.Type),
	}
}

// evalDuration scores how well the item fills the remaining budget. Any item
// longer than the remaining budget is disqualifying by construction; within
// the budget the score rises toward the exact fit, and slack inside the
// tolerance window already counts as one.
func (s scorer) evalDuration(p placement, item models.MediaItem) outcome {
	if p.remaining <= 0 {
		return outcome{
			violated: true,
			forced:   models.VerdictMandatoryFailed,
			detail:   "no remaining budget",
		}
	}
	dur := item.Duration()
	if dur > p.remaining {
		return outcome{
			violated: true,
			forced:   models.VerdictMandatoryFailed,
			detail:   fmt.Sprintf("duration %s exceeds remaining %s", dur, p.remaining),
		}
	}
	score := float64(dur+s.tuning.DurationTolerance) / float64(p.remaining)
	if score > 1 {
		score = 1
	}
	return outcome{score: score, satisfied: true}
}

// evalGenre scores include-set coverage and flags excluded hits. Mandatory
// satisfaction requires the full include set; an excluded genre halves the
// score unless a forbidden rule upgrades it to a disqualification.
func (s scorer) evalGenre(p placement, item models.MediaItem) outcome {
	include := p.block.Criteria.GenresInclude
	exclude := p.block.Criteria.GenresExclude

	out := outcome{score: 1, satisfied: true}
	if len(include) > 0 {
		matched := 0
		for _, genre := range include {
			if item.HasGenre(genre) {
				matched++
			}
		}
		out.score = float64(matched) / float64(len(include))
		out.satisfied = matched == len(include)
		if !out.satisfied {
			out.detail = fmt.Sprintf("matched %d of %d required genres", matched, len(include))
		}
	}
	for _, genre := range exclude {
		if item.HasGenre(genre) {
			out.violated = true
			out.score *= 0.5
			out.detail = fmt.Sprintf("excluded genre %q present", genre)
			break
		}
	}
	return out
}

// evalTiming maps the elapsed block fraction onto the P/M/F curve. Blocks
// without thresholds treat every position as ideal.
func (s scorer) evalTiming(p placement, item models.MediaItem) outcome {
	t := p.block.Criteria.Timing
	if !t.Enabled() {
		return outcome{score: 1, satisfied: true}
	}
	f := p.elapsedFraction()
	switch {
	case f <= t.Preferred:
		score := 1.0
		if t.Preferred > 0 {
			score = 1.0 - 0.2*(f/t.Preferred)
		}
		return outcome{score: score, satisfied: true}
	case f <= t.Mandatory:
		return outcome{score: 0.6, satisfied: true}
	case f <= t.Forbidden:
		score := 0.5
		if span := t.Forbidden - t.Mandatory; span > 0 {
			score = 0.5 - 0.3*((f-t.Mandatory)/span)
		}
		return outcome{
			score:  score,
			detail: fmt.Sprintf("placement at %.0f%% of block is past the mandatory boundary", f*100),
		}
	default:
		return outcome{
			score:    0.05,
			violated: true,
			detail:   fmt.Sprintf("placement at %.0f%% of block is past the forbidden boundary", f*100),
		}
	}
}

// evalStrategy checks collection adjacency. Free blocks penalize any
// back-to-back items from one collection; sequential blocks allow them only
// in collection order.
func (s scorer) evalStrategy(p placement, item models.MediaItem) outcome {
	prev := p.previous
	if prev == nil || prev.CollectionID == "" || prev.CollectionID != item.CollectionID {
		return outcome{score: 1, satisfied: true}
	}
	switch p.block.Criteria.Strategy {
	case models.StrategySequential:
		if item.CollectionIndex == prev.CollectionIndex+1 {
			return outcome{score: 1, satisfied: true}
		}
		return outcome{
			score:    0.3,
			violated: true,
			detail: fmt.Sprintf("collection %q out of order: index %d after %d",
				item.CollectionID, item.CollectionIndex, prev.CollectionIndex),
		}
	default:
		return outcome{
			score:    0.3,
			violated: true,
			detail:   fmt.Sprintf("collection %q scheduled back-to-back in free block", item.CollectionID),
		}
	}
}

// evalAge compares the item's age rating against the block ceiling. Items
// with an unknown rating pass; operators exclude unrated content through the
// filter criterion instead.
func (s scorer) evalAge(p placement, item models.MediaItem) outcome {
	ceiling := p.block.Criteria.MaxAgeRating
	if ceiling == "" {
		return outcome{score: 1, satisfied: true}
	}
	itemRank, ok := models.AgeRatingRank(item.AgeRating)
	if !ok {
		return outcome{score: 1, satisfied: true}
	}
	ceilingRank, ok := models.AgeRatingRank(ceiling)
	if !ok || itemRank <= ceilingRank {
		return outcome{score: 1, satisfied: true}
	}
	distance := models.AgeRatingDistance(item.AgeRating, ceiling)
	return outcome{
		score:    clamp01(1 - distance),
		violated: true,
		detail:   fmt.Sprintf("age rating %s above ceiling %s", item.AgeRating, ceiling),
	}
}

// evalRating compares the external rating against the block minimum with a
// linear penalty below the threshold.
func (s scorer) evalRating(p placement, item models.MediaItem) outcome {
	min := p.block.Criteria.MinRating
	if min <= 0 {
		return outcome{score: 1, satisfied: true}
	}
	if item.Rating >= min {
		return outcome{score: 1, satisfied: true}
	}
	return outcome{
		score:    clamp01(item.Rating / min),
		violated: true,
		detail:   fmt.Sprintf("rating %.1f below minimum %.1f", item.Rating, min),
	}
}

// evalFilter applies the block's keyword and studio lists. Forbidden matches
// disqualify by construction: the configured list is itself the rule.
// Preferred matches raise the score and mark the verdict.
func (s scorer) evalFilter(p placement, item models.MediaItem) outcome {
	keywords := p.block.Criteria.Keywords
	studios := p.block.Criteria.Studios

	for _, term := range keywords.Forbidden {
		if hasKeyword(item, term) {
			return outcome{
				violated: true,
				forced:   models.VerdictForbiddenTriggered,
				detail:   fmt.Sprintf("forbidden keyword %q", term),
			}
		}
	}
	for _, studio := range studios.Forbidden {
		if strings.EqualFold(item.Studio, studio) {
			return outcome{
				violated: true,
				forced:   models.VerdictForbiddenTriggered,
				detail:   fmt.Sprintf("forbidden studio %q", studio),
			}
		}
	}

	total := len(keywords.Preferred) + len(studios.Preferred)
	if total == 0 {
		return outcome{score: 1, satisfied: true}
	}
	matched := 0
	for _, term := range keywords.Preferred {
		if hasKeyword(item, term) {
			matched++
		}
	}
	for _, studio := range studios.Preferred {
		if strings.EqualFold(item.Studio, studio) {
			matched++
		}
	}
	out := outcome{
		score:     0.5 + 0.5*float64(matched)/float64(total),
		satisfied: matched > 0,
	}
	if matched > 0 {
		out.forced = models.VerdictPreferredMatched
		out.detail = fmt.Sprintf("matched %d of %d preferred terms", matched, total)
	}
	return out
}

// evalBonus grants additive credit for fresh, flagship, and continuing
// content. The bonus criterion never disqualifies.
func (s scorer) evalBonus(p placement, item models.MediaItem) outcome {
	var score float64
	var parts []string
	if item.LastPlayedAt == nil || p.now.Sub(*item.LastPlayedAt) > s.tuning.RecencyWindow {
		score += 0.4
		parts = append(parts, "recency")
	}
	if item.Blockbuster || item.Rating >= s.tuning.BlockbusterRating {
		score += 0.3
		parts = append(parts, "blockbuster")
	}
	if prev := p.previous; prev != nil && prev.CollectionID != "" &&
		prev.CollectionID == item.CollectionID && item.CollectionIndex == prev.CollectionIndex+1 {
		score += 0.3
		parts = append(parts, "collection continuity")
	}
	return outcome{
		score:     clamp01(score),
		satisfied: score > 0,
		detail:    strings.Join(parts, ", "),
	}
}

func hasKeyword(item models.MediaItem, term string) bool {
	for _, kw := range item.Keywords {
		if strings.EqualFold(kw, term) {
			return true
		}
	}
	return false
}
