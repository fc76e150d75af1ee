// Package filter provides the playability filter chain applied before
// tracks are handed to the playback engine.
package filter

import (
	"context"

	"github.com/osa030/tunesync/internal/domain/track"
)

// Origin tells how a track reached the filter chain.
type Origin int

const (
	OriginList  Origin = iota // part of a list rotation
	OriginAdHoc               // single explicit play
)

// String returns the string representation of the origin.
func (o Origin) String() string {
	switch o {
	case OriginList:
		return "list"
	case OriginAdHoc:
		return "adhoc"
	default:
		return "unknown"
	}
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "no_source", "market_restriction"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for playability filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to tracks of the given origin.
	AppliesTo(origin Origin) bool
	// Check performs the filter check.
	Check(ctx context.Context, t track.Track) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}
