package library

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunesync/internal/app/guard"
	"github.com/osa030/tunesync/internal/app/identity"
	"github.com/osa030/tunesync/internal/domain/playlist"
	"github.com/osa030/tunesync/internal/domain/track"
)

// Errors
var (
	ErrRemote            = errors.New("remote call failed")
	ErrUnresolvable      = errors.New("track not found in library")
	ErrRemoteUnavailable = errors.New("remote does not support this operation")
	ErrUnknownPlaylist   = errors.New("unknown playlist")
)

// Config holds synchronizer configuration.
type Config struct {
	DebounceWindow time.Duration // Repeated mutations of one entity inside this window are dropped
	ActiveHold     time.Duration // Hold after an active-track toggle completes
}

// DefaultConfig returns the default synchronizer timings.
func DefaultConfig() Config {
	return Config{
		DebounceWindow: 700 * time.Millisecond,
		ActiveHold:     300 * time.Millisecond,
	}
}

// Synchronizer applies remote-confirmed mutations to the local cache.
type Synchronizer struct {
	mu sync.RWMutex

	tracks     []track.Track
	playlists  []playlist.Playlist
	isLastPage bool
	page       int
	search     string

	remote     Remote
	debouncer  *guard.Debouncer
	activeGate *guard.SingleFlight
	resolver   *identity.Resolver
}

// NewSynchronizer creates a synchronizer. The ledger records debounce
// entries; pass guard.NewMemoryLedger for a single process.
func NewSynchronizer(remote Remote, ledger guard.Ledger, config Config) *Synchronizer {
	return &Synchronizer{
		remote:     remote,
		debouncer:  guard.NewDebouncer(ledger, config.DebounceWindow),
		activeGate: guard.NewSingleFlight(config.ActiveHold),
		resolver:   identity.NewResolver(),
	}
}

// Tracks returns a copy of the cached tracks.
func (s *Synchronizer) Tracks() []track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]track.Track(nil), s.tracks...)
}

// Favorites returns the cached tracks flagged as favorite.
func (s *Synchronizer) Favorites() []track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]track.Track, 0)
	for _, t := range s.tracks {
		if t.IsFavorite {
			out = append(out, t)
		}
	}
	return out
}

// Playlists returns a copy of the cached playlists.
func (s *Synchronizer) Playlists() []playlist.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]playlist.Playlist(nil), s.playlists...)
}

// IsLastPage reports whether the last loaded page was the final one.
func (s *Synchronizer) IsLastPage() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLastPage
}

// Lookup resolves ref against the cached tracks, then against tracks held
// by cached playlists.
func (s *Synchronizer) Lookup(ref track.Track) (track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(ref)
}

func (s *Synchronizer) lookupLocked(ref track.Track) (track.Track, bool) {
	if m, err := s.resolver.Resolve(ref, s.tracks); err == nil {
		return s.tracks[m.Index], true
	}
	for _, p := range s.playlists {
		if m, err := s.resolver.Resolve(ref, p.Tracks); err == nil {
			return p.Tracks[m.Index], true
		}
	}
	return track.Track{}, false
}

// target picks the entity a mutation for ref is sent for: the cached
// entry when ref resolves, otherwise a minimal entry carrying ref's id.
func (s *Synchronizer) target(ref track.Track) (t track.Track, cached bool, err error) {
	if c, ok := s.Lookup(ref); ok && !c.ID.IsZero() {
		return c, true, nil
	}
	if !ref.ID.IsZero() {
		return track.Track{ID: ref.ID, IsFavorite: ref.IsFavorite}, false, nil
	}
	return track.Track{}, false, errors.Wrapf(ErrUnresolvable, "ref %s", ref.Key())
}

// ToggleFavorite flips the favorite flag of ref on the remote and applies
// the remote's answer to the cache. Repeated toggles of the same track
// inside the debounce window return guard.ErrDebounced without a remote
// call. On remote failure the cache is left untouched.
func (s *Synchronizer) ToggleFavorite(ctx context.Context, ref track.Track) (FavoriteState, error) {
	target, _, err := s.target(ref)
	if err != nil {
		return FavoriteState{}, err
	}
	return s.toggle(ctx, target)
}

// SetFavorite makes the favorite flag of ref equal to want.
// No remote call is made when the cache already agrees.
func (s *Synchronizer) SetFavorite(ctx context.Context, ref track.Track, want bool) (FavoriteState, error) {
	target, cached, err := s.target(ref)
	if err != nil {
		return FavoriteState{}, err
	}
	if cached && target.IsFavorite == want {
		return FavoriteState{ID: target.ID, IsFavorite: want}, nil
	}
	return s.toggle(ctx, target)
}

// ToggleActiveFavorite toggles the favorite flag of the engine's active
// item. Presses arriving while a toggle is in flight, or shortly after it
// completed, are dropped.
func (s *Synchronizer) ToggleActiveFavorite(ctx context.Context, active track.Track) (FavoriteState, error) {
	release, err := s.activeGate.TryAcquire()
	if err != nil {
		zlog.Debug().Msgf("library: active favorite toggle ignored (%v)", err)
		return FavoriteState{}, errors.Mark(err, guard.ErrDebounced)
	}
	defer release()

	target, _, err := s.target(active)
	if err != nil {
		zlog.Warn().Msgf("library: active track %s not in library", active.Key())
		return FavoriteState{}, err
	}
	return s.toggle(ctx, target)
}

func (s *Synchronizer) toggle(ctx context.Context, target track.Track) (FavoriteState, error) {
	var state FavoriteState
	err := s.debouncer.Do(ctx, "favorite:"+target.ID.String(), func(ctx context.Context) error {
		resp, err := s.remote.ToggleFavorite(ctx, target.ID)
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "toggle favorite %s", target.ID), ErrRemote)
		}
		if resp.ID.IsZero() {
			resp.ID = target.ID
		}
		state = resp
		s.applyFavorite(resp)
		return nil
	})
	if errors.Is(err, guard.ErrDebounced) {
		return FavoriteState{ID: target.ID, IsFavorite: target.IsFavorite}, err
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("library: favorite toggle failed for %s", target.ID)
		return FavoriteState{}, err
	}
	zlog.Info().Msgf("library: track %s favorite=%v", state.ID, state.IsFavorite)
	return state, nil
}

// applyFavorite writes the authoritative flag to every cached copy of the
// track, matched by id.
func (s *Synchronizer) applyFavorite(st FavoriteState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracks = mapTracks(s.tracks, st.ID, func(t track.Track) track.Track {
		t.IsFavorite = st.IsFavorite
		return t
	})
	for i := range s.playlists {
		s.playlists[i].Tracks = mapTracks(s.playlists[i].Tracks, st.ID, func(t track.Track) track.Track {
			t.IsFavorite = st.IsFavorite
			return t
		})
	}
}

// mapTracks returns tracks with fn applied to entries whose id equals id.
// The input slice is never modified; an unchanged slice is returned as is.
func mapTracks(tracks []track.Track, id track.ID, fn func(track.Track) track.Track) []track.Track {
	var out []track.Track
	for i, t := range tracks {
		if t.ID != id {
			continue
		}
		if out == nil {
			out = append([]track.Track(nil), tracks...)
		}
		out[i] = fn(t)
	}
	if out == nil {
		return tracks
	}
	return out
}
