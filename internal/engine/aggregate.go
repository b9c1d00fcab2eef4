package engine

import (
	"fmt"

	"github.com/lineup-tv/lineup-api/internal/models"
)

// contextFree marks criteria whose outcome does not depend on placement
// position, remaining budget, or adjacency. A disqualification caused only
// by these criteria holds for the whole block and can be cached.
var contextFree = map[models.Criterion]bool{
	models.CriterionType:   true,
	models.CriterionGenre:  true,
	models.CriterionAge:    true,
	models.CriterionRating: true,
	models.CriterionFilter: true,
}

// mustEvaluate reports whether a zero-weighted criterion still needs a
// verdict pass: explicit mandatory/forbidden rules and hard-by-construction
// checks cannot be silenced by weight.
func mustEvaluate(c models.Criterion, block *models.TimeBlock, rule models.Rule) bool {
	switch rule.Strength {
	case models.RuleMandatory, models.RuleForbidden:
		return true
	}
	switch c {
	case models.CriterionType:
		return len(block.Criteria.AllowedTypes) > 0
	case models.CriterionDuration:
		return true
	case models.CriterionFilter:
		return len(block.Criteria.Keywords.Forbidden) > 0 || len(block.Criteria.Studios.Forbidden) > 0
	}
	return false
}

// scoreItem runs every criterion against the item and folds the outcomes
// into a single breakdown. The total is the weighted mean of scored
// criteria multiplied by (1 + the sum of matched preferred bonuses). Any
// mandatory_failed or forbidden_triggered verdict disqualifies the item and
// zeroes the total.
func (s scorer) scoreItem(profile *models.Profile, p placement, item models.MediaItem) models.ScoreBreakdown {
	breakdown := models.ScoreBreakdown{
		ItemID:    item.ID,
		ItemTitle: item.Title,
		BlockName: p.block.Name,
		Subscores: make([]models.Subscore, 0, len(models.AllCriteria)),
	}
	var weightedSum, weightSum, bonus float64
	for _, c := range models.AllCriteria {
		weight := profile.Weights.Weight(c)
		rule := profile.Rules[c]
		if weight == 0 && !mustEvaluate(c, p.block, rule) {
			breakdown.Subscores = append(breakdown.Subscores, models.Subscore{
				Criterion: c,
				Verdict:   models.VerdictSkipped,
			})
			continue
		}
		out := s.evaluate(c, p, item)
		verdict := resolveVerdict(out, rule, weight)
		breakdown.Subscores = append(breakdown.Subscores, models.Subscore{
			Criterion: c,
			Score:     out.score,
			Weight:    weight,
			Verdict:   verdict,
			Detail:    out.detail,
		})
		switch verdict {
		case models.VerdictMandatoryFailed, models.VerdictForbiddenTriggered:
			breakdown.Disqualified = true
			reason := out.detail
			if reason == "" {
				reason = fmt.Sprintf("%s: %s", c, verdict)
			}
			breakdown.Reasons = append(breakdown.Reasons, reason)
		case models.VerdictPreferredMatched:
			bonus += rule.Bonus
		}
		if weight > 0 {
			weightedSum += weight * out.score
			weightSum += weight
		}
	}
	if breakdown.Disqualified {
		breakdown.Total = 0
		return breakdown
	}
	if weightSum > 0 {
		breakdown.Total = weightedSum / weightSum * (1 + bonus)
	}
	return breakdown
}

// resolveVerdict maps a raw outcome through the configured rule strength.
// By-construction verdicts from the evaluator win over rule mapping.
func resolveVerdict(out outcome, rule models.Rule, weight float64) models.Verdict {
	if out.forced != "" {
		return out.forced
	}
	switch rule.Strength {
	case models.RuleMandatory:
		if !out.satisfied {
			return models.VerdictMandatoryFailed
		}
	case models.RuleForbidden:
		if out.violated {
			return models.VerdictForbiddenTriggered
		}
	case models.RulePreferred:
		if out.satisfied {
			return models.VerdictPreferredMatched
		}
	}
	if weight == 0 {
		return models.VerdictSkipped
	}
	return models.VerdictScored
}

// contextFreeDisqualification reports whether every disqualifying verdict in
// the breakdown came from a context-free criterion.
func contextFreeDisqualification(breakdown models.ScoreBreakdown) bool {
	for _, sub := range breakdown.Subscores {
		switch sub.Verdict {
		case models.VerdictMandatoryFailed, models.VerdictForbiddenTriggered:
			if !contextFree[sub.Criterion] {
				return false
			}
		}
	}
	return true
}
