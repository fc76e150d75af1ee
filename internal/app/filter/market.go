package filter

import (
	"context"
	"strings"

	"github.com/osa030/tunesync/internal/domain/track"
)

// Market filter return codes.
const (
	CodeNotPlayable       = "not_playable"
	CodeMarketRestriction = "market_restriction"
)

// MarketFilter rejects catalog tracks the listener's market cannot play.
// Tracks from sources without catalog data, such as local MPD files,
// always pass.
type MarketFilter struct {
	market string
}

// NewMarketFilter creates a filter for the given ISO 3166-1 market code.
// An empty market disables the market check but still honours an
// explicit not-playable flag.
func NewMarketFilter(market string) *MarketFilter {
	return &MarketFilter{market: strings.ToUpper(strings.TrimSpace(market))}
}

func (f *MarketFilter) Name() string {
	return "market_filter"
}

func (f *MarketFilter) Description() string {
	return "Skips catalog tracks that cannot be played in the configured market"
}

func (f *MarketFilter) ReturnCodes() []string {
	return []string{CodeNotPlayable, CodeMarketRestriction}
}

func (f *MarketFilter) ValidateConfig(map[string]any) error {
	return nil
}

func (f *MarketFilter) AppliesTo(Origin) bool {
	return true
}

func (f *MarketFilter) Check(ctx context.Context, t track.Track) Result {
	// A relinked catalog answer is authoritative for the requested market.
	if t.IsPlayable != nil {
		if *t.IsPlayable {
			return Accept()
		}
		return Reject(CodeNotPlayable)
	}
	if f.market == "" || len(t.Markets) == 0 {
		return Accept()
	}
	if !t.IsAvailableInMarket(f.market) {
		return Reject(CodeMarketRestriction)
	}
	return Accept()
}
