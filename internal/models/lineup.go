package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Verdict classifies the rule outcome of a single criterion evaluation.
type Verdict string

const (
	// VerdictScored means the criterion contributed a weighted score with no
	// rule effect.
	VerdictScored Verdict = "scored"
	// VerdictSkipped means the criterion was weighted 0 with no binding rule.
	VerdictSkipped Verdict = "skipped"
	// VerdictMandatoryFailed means a mandatory requirement was not met.
	VerdictMandatoryFailed Verdict = "mandatory_failed"
	// VerdictForbiddenTriggered means a forbidden condition was present.
	VerdictForbiddenTriggered Verdict = "forbidden_triggered"
	// VerdictPreferredMatched means a preferred condition was met and the
	// rule bonus applies.
	VerdictPreferredMatched Verdict = "preferred_matched"
)

// Subscore is one criterion's contribution to an item evaluation.
type Subscore struct {
	Criterion Criterion `json:"criterion"`
	Score     float64   `json:"score"`
	Weight    float64   `json:"weight"`
	Verdict   Verdict   `json:"verdict"`
	Detail    string    `json:"detail,omitempty"`
}

// ScoreBreakdown records how a single item scored against a single block,
// including every criterion's subscore and any disqualification reasons.
type ScoreBreakdown struct {
	ItemID       string     `json:"item_id"`
	ItemTitle    string     `json:"item_title,omitempty"`
	BlockName    string     `json:"block_name"`
	Subscores    []Subscore `json:"subscores"`
	Total        float64    `json:"total"`
	Disqualified bool       `json:"disqualified"`
	Reasons      []string   `json:"reasons,omitempty"`
}

// PlacedItem is a media item committed to a position inside a block.
type PlacedItem struct {
	Item          MediaItem       `json:"item"`
	OffsetSeconds int             `json:"offset_seconds"`
	Score         float64         `json:"score"`
	Breakdown     *ScoreBreakdown `json:"breakdown,omitempty"`
}

// Offset returns the placement offset from the block start.
func (p PlacedItem) Offset() time.Duration {
	return time.Duration(p.OffsetSeconds) * time.Second
}

// BlockFill is the outcome of filling one time block. GapSeconds carries the
// unfilled remainder when the pool ran out of qualifying candidates.
type BlockFill struct {
	BlockName   string       `json:"block_name"`
	Start       ClockTime    `json:"start"`
	End         ClockTime    `json:"end"`
	Items       []PlacedItem `json:"items"`
	UsedSeconds int          `json:"used_seconds"`
	GapSeconds  int          `json:"gap_seconds"`
	Note        string       `json:"note,omitempty"`
}

// Used returns the total scheduled span of the block.
func (b BlockFill) Used() time.Duration {
	return time.Duration(b.UsedSeconds) * time.Second
}

// Gap returns the unfilled remainder of the block budget.
func (b BlockFill) Gap() time.Duration {
	return time.Duration(b.GapSeconds) * time.Second
}

// BlockFillList persists filled blocks as a JSONB column.
type BlockFillList []BlockFill

// Value marshals the fills to JSON for persistence.
func (l BlockFillList) Value() (driver.Value, error) {
	if l == nil {
		l = BlockFillList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal block fills: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON payload into the fill list.
func (l *BlockFillList) Scan(value interface{}) error {
	return scanJSON(value, l, "block fills")
}

// LineupStatus reports how a lineup run concluded.
type LineupStatus string

const (
	// LineupCompleted means every block was processed.
	LineupCompleted LineupStatus = "completed"
	// LineupCanceled means the run stopped early and the lineup is the best
	// result produced before cancellation.
	LineupCanceled LineupStatus = "canceled"
	// LineupEmpty means no block received a single item.
	LineupEmpty LineupStatus = "empty"
)

// Valid reports whether the status is one of the known terminal states.
func (s LineupStatus) Valid() bool {
	switch s {
	case LineupCompleted, LineupCanceled, LineupEmpty:
		return true
	}
	return false
}

// Lineup is one generated broadcast-day schedule. Score is the sum of all
// placed item scores; a mean would reward sparsely filled schedules, so
// candidates that place more content outrank thin ones.
type Lineup struct {
	ID        string        `db:"id" json:"id,omitempty"`
	ProfileID string        `db:"profile_id" json:"profile_id"`
	Name      string        `db:"name" json:"name,omitempty"`
	Seed      int64         `db:"seed" json:"seed"`
	Iteration int           `db:"iteration" json:"iteration"`
	Score     float64       `db:"score" json:"score"`
	Status    LineupStatus  `db:"status" json:"status"`
	ItemCount int           `db:"item_count" json:"item_count"`
	Blocks    BlockFillList `db:"blocks" json:"blocks"`
	Note      string        `db:"note" json:"note,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at,omitempty"`
}

// TotalGap sums the unfilled seconds across all blocks.
func (l Lineup) TotalGap() time.Duration {
	var gap int
	for _, block := range l.Blocks {
		gap += block.GapSeconds
	}
	return time.Duration(gap) * time.Second
}

// LineupFilter narrows lineup listings.
type LineupFilter struct {
	ProfileID string
	Status    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ExistingPlacement names an already-scheduled item for scoring analysis.
type ExistingPlacement struct {
	BlockName string `json:"block_name"`
	ItemID    string `json:"item_id"`
}

// BlockAnalysis groups breakdowns for the placements of one block.
type BlockAnalysis struct {
	BlockName string           `json:"block_name"`
	Total     float64          `json:"total"`
	Items     []ScoreBreakdown `json:"items"`
}

// AnalysisReport explains how an existing set of placements scores under a
// profile without mutating any schedule.
type AnalysisReport struct {
	ProfileID    string          `json:"profile_id"`
	Total        float64         `json:"total"`
	Disqualified int             `json:"disqualified"`
	Blocks       []BlockAnalysis `json:"blocks"`
	GeneratedAt  time.Time       `json:"generated_at"`
}
