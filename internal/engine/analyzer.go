package engine

import (
	"time"

	"github.com/lineup-tv/lineup-api/internal/models"
)

// Placement pairs a block name with a resolved media item for analysis.
type Placement struct {
	BlockName string
	Item      models.MediaItem
}

// Analyzer replays existing placements through the evaluator and aggregator
// pipeline without reordering or discarding anything.
type Analyzer struct {
	tuning Tuning
}

// NewAnalyzer returns an analyzer with normalized tuning.
func NewAnalyzer(tuning Tuning) *Analyzer {
	return &Analyzer{tuning: tuning.normalize()}
}

// Analyze scores the placements exactly as they stand. Conditions that would
// disqualify during generation surface as violation flags on the breakdowns
// instead of removing the item. The report total uses the same summation as
// generated lineups, so analyzing a freshly generated lineup reproduces its
// score.
func (a *Analyzer) Analyze(profile models.Profile, placements []Placement, now time.Time) (models.AnalysisReport, error) {
	if err := profile.Validate(); err != nil {
		return models.AnalysisReport{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	blocks := make(map[string]*models.TimeBlock, len(profile.Blocks))
	for i := range profile.Blocks {
		block := profile.Blocks[i]
		blocks[block.Name] = &block
	}

	var order []string
	grouped := make(map[string][]models.MediaItem)
	for i, pl := range placements {
		if _, ok := blocks[pl.BlockName]; !ok {
			return models.AnalysisReport{}, &models.ConfigError{
				Block: pl.BlockName,
				Msg:   "placement references unknown block",
			}
		}
		if err := validateItem(pl.Item, i); err != nil {
			return models.AnalysisReport{}, err
		}
		if _, seen := grouped[pl.BlockName]; !seen {
			order = append(order, pl.BlockName)
		}
		grouped[pl.BlockName] = append(grouped[pl.BlockName], pl.Item)
	}

	eval := newScorer(a.tuning)
	report := models.AnalysisReport{
		ProfileID:   profile.ID,
		Blocks:      make([]models.BlockAnalysis, 0, len(order)),
		GeneratedAt: now,
	}
	for _, name := range order {
		block := blocks[name]
		budget := block.Budget()
		var offset time.Duration
		var prev *models.MediaItem
		analysis := models.BlockAnalysis{
			BlockName: name,
			Items:     make([]models.ScoreBreakdown, 0, len(grouped[name])),
		}
		for _, item := range grouped[name] {
			p := placement{
				block:     block,
				remaining: budget - offset,
				offset:    offset,
				previous:  prev,
				now:       now,
			}
			breakdown := eval.scoreItem(&profile, p, item)
			if breakdown.Disqualified {
				report.Disqualified++
			}
			analysis.Total += breakdown.Total
			analysis.Items = append(analysis.Items, breakdown)
			offset += item.Duration()
			current := item
			prev = &current
		}
		report.Total += analysis.Total
		report.Blocks = append(report.Blocks, analysis)
	}
	return report, nil
}
