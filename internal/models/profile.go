package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Criterion identifies one of the nine scoring dimensions. The set is closed;
// evaluators dispatch over these tags rather than a mutable registry.
type Criterion string

const (
	CriterionType     Criterion = "type"
	CriterionDuration Criterion = "duration"
	CriterionGenre    Criterion = "genre"
	CriterionTiming   Criterion = "timing"
	CriterionStrategy Criterion = "strategy"
	CriterionAge      Criterion = "age"
	CriterionRating   Criterion = "rating"
	CriterionFilter   Criterion = "filter"
	CriterionBonus    Criterion = "bonus"
)

// AllCriteria lists every criterion in evaluation order.
var AllCriteria = []Criterion{
	CriterionType,
	CriterionDuration,
	CriterionGenre,
	CriterionTiming,
	CriterionStrategy,
	CriterionAge,
	CriterionRating,
	CriterionFilter,
	CriterionBonus,
}

// Valid reports whether the criterion is one of the nine known dimensions.
func (c Criterion) Valid() bool {
	for _, known := range AllCriteria {
		if c == known {
			return true
		}
	}
	return false
}

// RuleStrength grades how binding a criterion rule is.
type RuleStrength string

const (
	RuleNone      RuleStrength = ""
	RuleMandatory RuleStrength = "mandatory"
	RuleForbidden RuleStrength = "forbidden"
	RulePreferred RuleStrength = "preferred"
)

// Rule attaches an M/F/P strength to a criterion. Preferred rules carry a
// bonus multiplier applied on top of the weighted score.
type Rule struct {
	Strength RuleStrength `json:"strength"`
	Bonus    float64      `json:"bonus,omitempty"`
}

// RuleSet maps criteria to their configured rules, persisted as JSONB.
type RuleSet map[Criterion]Rule

// Value marshals the rule set to JSON for persistence.
func (r RuleSet) Value() (driver.Value, error) {
	if r == nil {
		r = RuleSet{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal rule set: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON payload into the rule set.
func (r *RuleSet) Scan(value interface{}) error {
	return scanJSON(value, r, "rule set")
}

// WeightMap maps criteria to scoring weights. Missing entries default to 1.0;
// an explicit 0 disables the criterion.
type WeightMap map[Criterion]float64

// Weight resolves the effective weight for a criterion.
func (w WeightMap) Weight(c Criterion) float64 {
	if w == nil {
		return 1.0
	}
	if v, ok := w[c]; ok {
		return v
	}
	return 1.0
}

// Value marshals the weight map to JSON for persistence.
func (w WeightMap) Value() (driver.Value, error) {
	if w == nil {
		w = WeightMap{}
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal weight map: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON payload into the weight map.
func (w *WeightMap) Scan(value interface{}) error {
	return scanJSON(value, w, "weight map")
}

// ClockTime is a wall-clock instant expressed as minutes since midnight. It
// serializes as "HH:MM" to match exported profile documents.
type ClockTime int

// minutesPerDay is the circular span ClockTime arithmetic wraps on.
const minutesPerDay = 24 * 60

// ParseClockTime parses "HH:MM" into a ClockTime.
func ParseClockTime(raw string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(raw, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q: want HH:MM", raw)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time %q: hour 0-23 and minute 0-59", raw)
	}
	return ClockTime(h*60 + m), nil
}

// String renders the canonical HH:MM form.
func (t ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalJSON encodes the HH:MM form.
func (t ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes the HH:MM form.
func (t *ClockTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseClockTime(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TimingThresholds are the P/M/F boundaries expressed as fractions of the
// block budget already elapsed when an item is placed.
type TimingThresholds struct {
	Preferred float64 `json:"preferred"`
	Mandatory float64 `json:"mandatory"`
	Forbidden float64 `json:"forbidden"`
}

// Enabled reports whether any boundary is configured.
func (t TimingThresholds) Enabled() bool {
	return t.Preferred > 0 || t.Mandatory > 0 || t.Forbidden > 0
}

// FilterSpec lists preferred and forbidden match terms for keyword or studio
// filtering.
type FilterSpec struct {
	Preferred []string `json:"preferred,omitempty"`
	Forbidden []string `json:"forbidden,omitempty"`
}

// StrategyMode selects how a block sequences collection members.
type StrategyMode string

const (
	// StrategyFree fills greedily and treats same-collection adjacency as a
	// sequence violation.
	StrategyFree StrategyMode = "free"
	// StrategySequential allows collections to run back-to-back provided
	// members appear in collection order.
	StrategySequential StrategyMode = "sequential"
)

// Valid reports whether the mode is supported. Empty defaults to free fill.
func (s StrategyMode) Valid() bool {
	return s == "" || s == StrategyFree || s == StrategySequential
}

// BlockCriteria configures item eligibility and scoring inputs for one block.
type BlockCriteria struct {
	AllowedTypes  []ContentType    `json:"allowed_types,omitempty"`
	GenresInclude []string         `json:"genres_include,omitempty"`
	GenresExclude []string         `json:"genres_exclude,omitempty"`
	MaxAgeRating  string           `json:"max_age_rating,omitempty"`
	MinRating     float64          `json:"min_rating,omitempty"`
	Keywords      FilterSpec       `json:"keywords,omitempty"`
	Studios       FilterSpec       `json:"studios,omitempty"`
	Strategy      StrategyMode     `json:"strategy,omitempty"`
	Timing        TimingThresholds `json:"timing,omitempty"`
}

// TimeBlock is a named wall-clock interval of the broadcast day with its own
// content criteria. A block whose end is at or before its start wraps past
// midnight; its budget runs from start, through midnight, to end.
type TimeBlock struct {
	Name     string        `json:"name"`
	Start    ClockTime     `json:"start"`
	End      ClockTime     `json:"end"`
	Criteria BlockCriteria `json:"criteria"`
}

// Budget returns the playable span of the block. Start == end is invalid and
// reported by Profile.Validate, not treated as a 24h block.
func (b TimeBlock) Budget() time.Duration {
	span := (int(b.End) - int(b.Start) + minutesPerDay) % minutesPerDay
	return time.Duration(span) * time.Minute
}

// Wraps reports whether the block crosses midnight.
func (b TimeBlock) Wraps() bool {
	return b.End <= b.Start
}

// TimeBlockList persists ordered blocks as a JSONB column.
type TimeBlockList []TimeBlock

// Value marshals the blocks to JSON for persistence.
func (l TimeBlockList) Value() (driver.Value, error) {
	if l == nil {
		l = TimeBlockList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal time blocks: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON payload into the block list.
func (l *TimeBlockList) Scan(value interface{}) error {
	return scanJSON(value, l, "time blocks")
}

// Profile describes one channel's programming configuration. It is immutable
// during a single optimization run.
type Profile struct {
	ID         string        `db:"id" json:"id"`
	Name       string        `db:"name" json:"name"`
	Blocks     TimeBlockList `db:"blocks" json:"blocks"`
	Weights    WeightMap     `db:"weights" json:"weights,omitempty"`
	Rules      RuleSet       `db:"rules" json:"rules,omitempty"`
	Iterations int           `db:"iterations" json:"iterations,omitempty"`
	AllowReuse bool          `db:"allow_reuse" json:"allow_reuse,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// SortedBlocks returns the blocks ordered by start time. Processing order is
// chronological regardless of document order.
func (p Profile) SortedBlocks() []TimeBlock {
	blocks := make([]TimeBlock, len(p.Blocks))
	copy(blocks, p.Blocks)
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Start < blocks[j].Start
	})
	return blocks
}

// ConfigError is a fail-fast configuration problem naming the offending
// block and field.
type ConfigError struct {
	Block string `json:"block,omitempty"`
	Field string `json:"field,omitempty"`
	Msg   string `json:"message"`
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	switch {
	case e.Block != "" && e.Field != "":
		return fmt.Sprintf("block %q: field %s: %s", e.Block, e.Field, e.Msg)
	case e.Block != "":
		return fmt.Sprintf("block %q: %s", e.Block, e.Msg)
	case e.Field != "":
		return fmt.Sprintf("field %s: %s", e.Field, e.Msg)
	default:
		return e.Msg
	}
}

// Validate checks the profile configuration before any iteration runs.
// Overlapping blocks, zero-length blocks, malformed rules, and negative
// weights are configuration errors, reported with block/field context.
func (p Profile) Validate() error {
	if p.Name == "" {
		return &ConfigError{Field: "name", Msg: "profile name is required"}
	}
	if len(p.Blocks) == 0 {
		return &ConfigError{Field: "blocks", Msg: "at least one time block is required"}
	}
	seen := make(map[string]bool, len(p.Blocks))
	for _, block := range p.Blocks {
		if err := validateBlock(block); err != nil {
			return err
		}
		if seen[block.Name] {
			return &ConfigError{Block: block.Name, Field: "name", Msg: "duplicate block name"}
		}
		seen[block.Name] = true
	}
	if err := validateBlockOverlap(p.Blocks); err != nil {
		return err
	}
	for criterion, weight := range p.Weights {
		if !criterion.Valid() {
			return &ConfigError{Field: "weights." + string(criterion), Msg: "unknown criterion"}
		}
		if weight < 0 {
			return &ConfigError{Field: "weights." + string(criterion), Msg: "weight must be >= 0"}
		}
	}
	for criterion, rule := range p.Rules {
		if !criterion.Valid() {
			return &ConfigError{Field: "rules." + string(criterion), Msg: "unknown criterion"}
		}
		switch rule.Strength {
		case RuleNone, RuleMandatory, RuleForbidden, RulePreferred:
		default:
			return &ConfigError{Field: "rules." + string(criterion) + ".strength", Msg: "strength must be mandatory, forbidden, or preferred"}
		}
		if rule.Bonus < 0 {
			return &ConfigError{Field: "rules." + string(criterion) + ".bonus", Msg: "bonus must be >= 0"}
		}
	}
	if p.Iterations < 0 {
		return &ConfigError{Field: "iterations", Msg: "iterations must be >= 0"}
	}
	return nil
}

func validateBlock(block TimeBlock) error {
	if block.Name == "" {
		return &ConfigError{Field: "blocks.name", Msg: "block name is required"}
	}
	if block.Start == block.End {
		return &ConfigError{Block: block.Name, Field: "end", Msg: "zero-length block: start and end are equal"}
	}
	t := block.Criteria.Timing
	if t.Preferred < 0 || t.Mandatory < 0 || t.Forbidden < 0 ||
		t.Preferred > 1 || t.Mandatory > 1 || t.Forbidden > 1 {
		return &ConfigError{Block: block.Name, Field: "criteria.timing", Msg: "thresholds must lie within [0,1]"}
	}
	if t.Enabled() && (t.Preferred > t.Mandatory || t.Mandatory > t.Forbidden) {
		return &ConfigError{Block: block.Name, Field: "criteria.timing", Msg: "thresholds must satisfy preferred <= mandatory <= forbidden"}
	}
	if !block.Criteria.Strategy.Valid() {
		return &ConfigError{Block: block.Name, Field: "criteria.strategy", Msg: "strategy must be free or sequential"}
	}
	for _, ct := range block.Criteria.AllowedTypes {
		if !ct.Valid() {
			return &ConfigError{Block: block.Name, Field: "criteria.allowed_types", Msg: fmt.Sprintf("unknown content type %q", ct)}
		}
	}
	if block.Criteria.MinRating < 0 || block.Criteria.MinRating > 10 {
		return &ConfigError{Block: block.Name, Field: "criteria.min_rating", Msg: "rating threshold must lie within [0,10]"}
	}
	if r := block.Criteria.MaxAgeRating; r != "" {
		if _, ok := AgeRatingRank(r); !ok {
			return &ConfigError{Block: block.Name, Field: "criteria.max_age_rating", Msg: fmt.Sprintf("unknown age rating %q", r)}
		}
	}
	return nil
}

// validateBlockOverlap rejects blocks whose wall-clock intervals intersect on
// the 24h circle. Each block is unrolled into at most two linear segments.
func validateBlockOverlap(blocks []TimeBlock) error {
	type segment struct {
		name       string
		start, end int // minutes, end exclusive
	}
	var segments []segment
	for _, block := range blocks {
		start := int(block.Start)
		span := int(block.Budget() / time.Minute)
		end := start + span
		if end <= minutesPerDay {
			segments = append(segments, segment{block.Name, start, end})
			continue
		}
		segments = append(segments, segment{block.Name, start, minutesPerDay})
		segments = append(segments, segment{block.Name, 0, end - minutesPerDay})
	}
	for i := 0; i < len(segments); i++ {
		for j := i + 1; j < len(segments); j++ {
			a, b := segments[i], segments[j]
			if a.name == b.name {
				continue
			}
			if a.start < b.end && b.start < a.end {
				return &ConfigError{Block: a.name, Field: "start", Msg: fmt.Sprintf("overlaps block %q", b.name)}
			}
		}
	}
	return nil
}

func scanJSON(value interface{}, dest interface{}, label string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported %s source %T", label, value)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", label, err)
	}
	return nil
}
