package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ContentType identifies the playable kind of a media item.
type ContentType string

const (
	ContentTypeMovie   ContentType = "movie"
	ContentTypeEpisode ContentType = "episode"
)

// Valid reports whether the content type is one of the supported kinds.
func (t ContentType) Valid() bool {
	return t == ContentTypeMovie || t == ContentTypeEpisode
}

// MediaItem is a candidate for placement into a lineup. Items are immutable
// once loaded into a pool for an optimization run.
type MediaItem struct {
	ID              string        `db:"id" json:"id"`
	Title           string        `db:"title" json:"title"`
	Type            ContentType   `db:"type" json:"type"`
	DurationSeconds int           `db:"duration_seconds" json:"duration_seconds"`
	Genres          StringList    `db:"genres" json:"genres"`
	AgeRating       string        `db:"age_rating" json:"age_rating"`
	Rating          float64       `db:"rating" json:"rating"`
	Keywords        StringList    `db:"keywords" json:"keywords"`
	Studio          string        `db:"studio" json:"studio"`
	CollectionID    string        `db:"collection_id" json:"collection_id,omitempty"`
	CollectionIndex int           `db:"collection_index" json:"collection_index,omitempty"`
	LastPlayedAt    *time.Time    `db:"last_played_at" json:"last_played_at,omitempty"`
	Blockbuster     bool          `db:"blockbuster" json:"blockbuster"`
	Filler          bool          `db:"filler" json:"filler"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// Duration returns the runtime as a time.Duration.
func (m MediaItem) Duration() time.Duration {
	return time.Duration(m.DurationSeconds) * time.Second
}

// HasGenre reports whether the item carries the genre (case-sensitive; the
// library layer normalizes casing on ingest).
func (m MediaItem) HasGenre(genre string) bool {
	for _, g := range m.Genres {
		if g == genre {
			return true
		}
	}
	return false
}

// StringList is a string slice persisted as a JSONB column.
type StringList []string

// Value marshals the list to JSON for persistence.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON payload into the list.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported string list source %T", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}

// MediaFilter describes query params for listing library items.
type MediaFilter struct {
	Type      string
	Genre     string
	Studio    string
	Search    string
	Filler    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ageRatingLadder orders supported certification systems on one comparable
// scale. MPAA and TV Parental Guidelines interleave by audience maturity.
var ageRatingLadder = map[string]int{
	"G":     0,
	"TV-Y":  0,
	"TV-Y7": 1,
	"TV-G":  1,
	"PG":    2,
	"TV-PG": 2,
	"PG-13": 3,
	"TV-14": 3,
	"R":     4,
	"TV-MA": 4,
	"NC-17": 5,
}

// ageRatingSpan is the distance between the mildest and strictest rank.
const ageRatingSpan = 5

// AgeRatingRank maps a certification label onto the comparable ladder. The
// second result is false for unknown labels, which evaluators treat as
// unrated (never above any ceiling).
func AgeRatingRank(rating string) (int, bool) {
	rank, ok := ageRatingLadder[rating]
	return rank, ok
}

// AgeRatingDistance returns how many ladder steps rating sits above ceiling,
// normalized to [0,1]. Zero means at or below the ceiling.
func AgeRatingDistance(rating, ceiling string) float64 {
	r, okR := AgeRatingRank(rating)
	c, okC := AgeRatingRank(ceiling)
	if !okR || !okC || r <= c {
		return 0
	}
	return float64(r-c) / float64(ageRatingSpan)
}
