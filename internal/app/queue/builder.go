// Package queue computes the ordered list the playback engine should hold.
package queue

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunesync/internal/app/filter"
	"github.com/osa030/tunesync/internal/app/identity"
	"github.com/osa030/tunesync/internal/domain/track"
)

// ErrNoPlayableTracks is returned when filtering leaves nothing to queue.
var ErrNoPlayableTracks = errors.New("no playable tracks")

// Plan is the engine queue computed for a source list and start index.
type Plan struct {
	Tracks   []track.Track // rotated queue, Tracks[0] is the start item
	Filtered []track.Track // playable subset in source order
	Offset   int           // index of Tracks[0] inside Filtered
	Dropped  int           // number of filtered-out items
}

// Len returns the queue length.
func (p Plan) Len() int {
	return len(p.Tracks)
}

// Position maps an index of the filtered list to its position in the
// rotated queue.
func (p Plan) Position(filteredIndex int) int {
	return RotatedPosition(filteredIndex, p.Offset, len(p.Tracks))
}

// Builder filters and rotates source lists.
type Builder struct {
	chain    *filter.Chain
	resolver *identity.Resolver
}

// NewBuilder creates a builder. A nil chain treats every track as playable.
func NewBuilder(chain *filter.Chain) *Builder {
	return &Builder{
		chain:    chain,
		resolver: identity.NewResolver(),
	}
}

// Filter returns the playable subset of tracks and, for each kept item,
// its index in the source list.
func (b *Builder) Filter(ctx context.Context, tracks []track.Track) ([]track.Track, []int) {
	kept := make([]track.Track, 0, len(tracks))
	origin := make([]int, 0, len(tracks))
	for i, t := range tracks {
		if !b.chain.Playable(ctx, t, filter.OriginList) {
			continue
		}
		kept = append(kept, t)
		origin = append(origin, i)
	}
	return kept, origin
}

// Build computes the rotated queue for tracks starting at start.
// The start index is clamped into range. If it points at a filtered-out
// item, the item is resolved by identity inside the playable subset,
// falling back to the first playable item.
func (b *Builder) Build(ctx context.Context, tracks []track.Track, start int) (Plan, error) {
	filtered, origin := b.Filter(ctx, tracks)
	if len(filtered) == 0 {
		zlog.Warn().Msgf("queue: no playable tracks among %d items", len(tracks))
		return Plan{}, ErrNoPlayableTracks
	}

	start = clamp(start, len(tracks))
	offset := b.remap(tracks[start], start, filtered, origin)

	plan := Plan{
		Tracks:   Rotate(filtered, offset),
		Filtered: filtered,
		Offset:   offset,
		Dropped:  len(tracks) - len(filtered),
	}
	if plan.Dropped > 0 {
		zlog.Debug().Msgf("queue: dropped %d unplayable items, start=%d offset=%d", plan.Dropped, start, offset)
	}
	return plan, nil
}

func (b *Builder) remap(startTrack track.Track, start int, filtered []track.Track, origin []int) int {
	for i, src := range origin {
		if src == start {
			return i
		}
	}
	m, err := b.resolver.Resolve(startTrack, filtered)
	if err != nil {
		zlog.Debug().Msgf("queue: start item %s not playable, starting from first playable", startTrack.Key())
		return 0
	}
	return m.Index
}

// Rotate returns list[i:] followed by list[:i] as a new slice.
// i is clamped into range.
func Rotate(list []track.Track, i int) []track.Track {
	if len(list) == 0 {
		return []track.Track{}
	}
	i = clamp(i, len(list))
	out := make([]track.Track, 0, len(list))
	out = append(out, list[i:]...)
	return append(out, list[:i]...)
}

// RotatedPosition maps index i of an unrotated list of length n to its
// position in the same list rotated by offset.
func RotatedPosition(i, offset, n int) int {
	if n <= 0 {
		return 0
	}
	p := (i - offset) % n
	if p < 0 {
		p += n
	}
	return p
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
