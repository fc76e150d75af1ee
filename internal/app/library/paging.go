package library

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunesync/internal/domain/track"
)

// LoadPage fetches one library page. Page 1 (or a new search) replaces the
// cache; later pages replace cached entries with the same identity and
// append the rest.
func (s *Synchronizer) LoadPage(ctx context.Context, page int, search string) (Page, error) {
	if page < 1 {
		page = 1
	}
	p, err := s.remote.FetchLibraryPage(ctx, page, search)
	if err != nil {
		return Page{}, errors.Mark(errors.Wrapf(err, "fetch library page %d", page), ErrRemote)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if page == 1 || search != s.search {
		s.tracks = append([]track.Track(nil), p.Items...)
	} else {
		s.tracks = mergeByKey(s.tracks, p.Items)
	}
	s.page = page
	s.search = search
	s.isLastPage = p.IsLastPage
	zlog.Debug().Msgf("library: loaded page %d (%d items, last=%v)", page, len(p.Items), p.IsLastPage)
	return p, nil
}

// UpdateTrack replaces every cached copy of t, matched by id.
// It reports whether any entry was replaced.
func (s *Synchronizer) UpdateTrack(t track.Track) bool {
	if t.ID.IsZero() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	replace := func(track.Track) track.Track {
		found = true
		return t
	}
	s.tracks = mapTracks(s.tracks, t.ID, replace)
	for i := range s.playlists {
		s.playlists[i].Tracks = mapTracks(s.playlists[i].Tracks, t.ID, replace)
	}
	return found
}

// mergeByKey replaces entries of base whose key appears in incoming and
// appends the remaining incoming entries in order.
func mergeByKey(base, incoming []track.Track) []track.Track {
	index := make(map[track.Key]int, len(base))
	out := append([]track.Track(nil), base...)
	for i, t := range out {
		if k := t.Key(); !k.IsZero() {
			index[k] = i
		}
	}
	for _, t := range incoming {
		k := t.Key()
		if i, ok := index[k]; ok && !k.IsZero() {
			out[i] = t
			continue
		}
		out = append(out, t)
		if !k.IsZero() {
			index[k] = len(out) - 1
		}
	}
	return out
}
