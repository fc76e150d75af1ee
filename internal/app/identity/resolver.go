package identity

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunesync/internal/domain/track"
)

// ErrNotFound is returned when no candidate matches the desired reference.
var ErrNotFound = errors.New("track not resolvable")

// Strategy identifies a matching rule.
type Strategy int

const (
	StrategyID       Strategy = iota // exact id
	StrategyURL                      // normalized url
	StrategyDecoded                  // decoded variant of the normalized url
	StrategyEncoded                  // encoded variant of the raw url
	StrategyFilename                 // last path segment, case-insensitive
)

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyID:
		return "id"
	case StrategyURL:
		return "url"
	case StrategyDecoded:
		return "decoded_url"
	case StrategyEncoded:
		return "encoded_url"
	case StrategyFilename:
		return "filename"
	default:
		return "unknown"
	}
}

// Match is a successful resolution.
type Match struct {
	Index    int
	Strategy Strategy
}

// candidate caches the derived forms of one candidate track.
type candidate struct {
	id   track.ID
	norm string
}

// matcher derives a predicate from the desired track.
// ok is false when the strategy does not apply to the desired track.
type matcher struct {
	prepare func(desired track.Track) (pred func(c candidate) bool, ok bool)
}

// DefaultStrategies is the precedence order used by the zero Resolver.
var DefaultStrategies = []Strategy{
	StrategyID,
	StrategyURL,
	StrategyDecoded,
	StrategyEncoded,
	StrategyFilename,
}

var matchers = map[Strategy]matcher{
	StrategyID: {
		prepare: func(d track.Track) (func(candidate) bool, bool) {
			if d.ID.IsZero() {
				return nil, false
			}
			return func(c candidate) bool { return c.id == d.ID }, true
		},
	},
	StrategyURL: {
		prepare: func(d track.Track) (func(candidate) bool, bool) {
			want := Normalize(d.URL)
			return equalNorm(want)
		},
	},
	StrategyDecoded: {
		prepare: func(d track.Track) (func(candidate) bool, bool) {
			decoded, err := DecodeURI(Normalize(d.URL))
			if err != nil {
				return nil, false
			}
			return equalNorm(Normalize(decoded))
		},
	},
	StrategyEncoded: {
		prepare: func(d track.Track) (func(candidate) bool, bool) {
			encoded, err := EncodeURI(d.URL)
			if err != nil {
				return nil, false
			}
			return equalNorm(Normalize(encoded))
		},
	},
	StrategyFilename: {
		prepare: func(d track.Track) (func(candidate) bool, bool) {
			want := Filename(Normalize(d.URL))
			if want == "" {
				return nil, false
			}
			return func(c candidate) bool {
				name := Filename(c.norm)
				return name != "" && strings.EqualFold(name, want)
			}, true
		},
	},
}

func equalNorm(want string) (func(candidate) bool, bool) {
	if want == "" {
		return nil, false
	}
	return func(c candidate) bool { return c.norm != "" && c.norm == want }, true
}

// Resolver finds a desired track in a candidate list.
// Strategies are tried in order; the first strategy with any hit wins and
// the lowest matching index within it is returned. There is no scoring.
type Resolver struct {
	strategies []Strategy
}

// NewResolver creates a resolver with the given strategy order.
// Without arguments DefaultStrategies is used.
func NewResolver(strategies ...Strategy) *Resolver {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	return &Resolver{strategies: strategies}
}

// Resolve returns the first match for desired in candidates.
// Neither argument is modified.
func (r *Resolver) Resolve(desired track.Track, candidates []track.Track) (Match, error) {
	if len(candidates) == 0 || (desired.ID.IsZero() && strings.TrimSpace(desired.URL) == "") {
		return Match{Index: -1}, ErrNotFound
	}

	prepared := make([]candidate, len(candidates))
	for i, c := range candidates {
		prepared[i] = candidate{id: c.ID, norm: Normalize(c.URL)}
	}

	strategies := r.strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	for _, s := range strategies {
		m, ok := matchers[s]
		if !ok {
			continue
		}
		pred, ok := m.prepare(desired)
		if !ok {
			continue
		}
		for i, c := range prepared {
			if pred(c) {
				return Match{Index: i, Strategy: s}, nil
			}
		}
	}
	return Match{Index: -1}, ErrNotFound
}

// Resolve resolves with the default strategy order.
func Resolve(desired track.Track, candidates []track.Track) (Match, error) {
	return defaultResolver.Resolve(desired, candidates)
}

var defaultResolver = NewResolver()

// SameTrack reports whether a and b refer to the same track under the
// default strategy order.
func SameTrack(a, b track.Track) bool {
	_, err := Resolve(a, []track.Track{b})
	return err == nil
}
