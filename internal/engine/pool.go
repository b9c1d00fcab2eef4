package engine

import (
	"fmt"

	"github.com/lineup-tv/lineup-api/internal/models"
)

// Pool holds the candidate media items for one optimization run together
// with the set already consumed. Slice order is part of run determinism, so
// callers must hand items over in a stable order. Pools are not safe for
// concurrent use; parallel iterations each operate on their own Clone.
type Pool struct {
	items []models.MediaItem
	used  map[string]bool
}

// NewPool validates the candidate set and wraps it in a pool. Items with a
// missing id, an unknown content type, a non-positive duration, or a
// duplicated id are configuration errors reported before any scoring runs.
func NewPool(items []models.MediaItem) (*Pool, error) {
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if err := validateItem(item, i); err != nil {
			return nil, err
		}
		if seen[item.ID] {
			return nil, &models.ConfigError{Field: fmt.Sprintf("items[%d].id", i), Msg: fmt.Sprintf("duplicate item id %q", item.ID)}
		}
		seen[item.ID] = true
	}
	pool := &Pool{
		items: make([]models.MediaItem, len(items)),
		used:  make(map[string]bool, len(items)),
	}
	copy(pool.items, items)
	return pool, nil
}

// validateItem applies the fail-fast item checks shared by pool construction
// and placement analysis.
func validateItem(item models.MediaItem, index int) error {
	if item.ID == "" {
		return &models.ConfigError{Field: fmt.Sprintf("items[%d].id", index), Msg: "item id is required"}
	}
	if !item.Type.Valid() {
		return &models.ConfigError{Field: fmt.Sprintf("items[%d].type", index), Msg: fmt.Sprintf("unknown content type %q", item.Type)}
	}
	if item.DurationSeconds <= 0 {
		return &models.ConfigError{Field: fmt.Sprintf("items[%d].duration_seconds", index), Msg: "duration must be > 0"}
	}
	return nil
}

// Clone returns an independent pool with the same items and a fresh usage
// set. The item slice is copied so iterations can never observe each other.
func (p *Pool) Clone() *Pool {
	clone := &Pool{
		items: make([]models.MediaItem, len(p.items)),
		used:  make(map[string]bool, len(p.used)),
	}
	copy(clone.items, p.items)
	for id := range p.used {
		clone.used[id] = true
	}
	return clone
}

// Len returns the total number of items in the pool.
func (p *Pool) Len() int {
	return len(p.items)
}

// Remaining returns the number of items not yet consumed.
func (p *Pool) Remaining() int {
	return len(p.items) - len(p.used)
}

// Items exposes the backing slice in stable order. Callers must not mutate.
func (p *Pool) Items() []models.MediaItem {
	return p.items
}

// Used reports whether the item was already consumed in this run.
func (p *Pool) Used(id string) bool {
	return p.used[id]
}

// MarkUsed consumes an item for the remainder of the run.
func (p *Pool) MarkUsed(id string) {
	p.used[id] = true
}
