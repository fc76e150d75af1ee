package filter

import (
	"context"
	"strings"

	"github.com/osa030/tunesync/internal/domain/track"
)

// SourceFilter rejects tracks the engine has nothing to load from.
type SourceFilter struct{}

// NewSourceFilter creates a new SourceFilter.
func NewSourceFilter() *SourceFilter {
	return &SourceFilter{}
}

func (f *SourceFilter) Name() string {
	return "source_filter"
}

func (f *SourceFilter) Description() string {
	return "Checks that the track carries a loadable url"
}

func (f *SourceFilter) ReturnCodes() []string {
	return []string{"no_source"}
}

func (f *SourceFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *SourceFilter) AppliesTo(origin Origin) bool {
	return true
}

func (f *SourceFilter) Check(ctx context.Context, t track.Track) Result {
	if strings.TrimSpace(t.URL) == "" {
		return Reject("no_source")
	}
	return Accept()
}

func init() {
	Register("source_filter", func() Filter {
		return NewSourceFilter()
	})
}
