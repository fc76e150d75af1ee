package filter

import (
	"context"

	"github.com/osa030/tunesync/internal/domain/track"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain(filters ...Filter) *Chain {
	c := &Chain{filters: make([]Filter, 0, len(filters))}
	for _, f := range filters {
		c.Add(f)
	}
	return c
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the track.
// Filters are only applied if they declare they apply to the given origin.
// A nil chain accepts everything.
func (c *Chain) Execute(ctx context.Context, t track.Track, origin Origin) Result {
	if c == nil {
		return Accept()
	}
	for _, f := range c.filters {
		if !f.AppliesTo(origin) {
			continue
		}

		result := f.Check(ctx, t)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Playable reports whether the track passes the chain.
func (c *Chain) Playable(ctx context.Context, t track.Track, origin Origin) bool {
	return c.Execute(ctx, t, origin).Accepted
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	if c == nil {
		return nil
	}
	return c.filters
}
