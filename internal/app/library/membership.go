package library

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunesync/internal/domain/playlist"
	"github.com/osa030/tunesync/internal/domain/track"
)

// AddToPlaylist adds ref to the playlist on the remote, then records the
// membership in the cache.
func (s *Synchronizer) AddToPlaylist(ctx context.Context, playlistID string, ref track.Track) error {
	return s.changeMembership(ctx, playlistID, ref, true)
}

// RemoveFromPlaylist removes ref from the playlist on the remote, then
// drops the membership from the cache.
func (s *Synchronizer) RemoveFromPlaylist(ctx context.Context, playlistID string, ref track.Track) error {
	return s.changeMembership(ctx, playlistID, ref, false)
}

func (s *Synchronizer) changeMembership(ctx context.Context, playlistID string, ref track.Track, add bool) error {
	target, _, err := s.target(ref)
	if err != nil {
		return err
	}

	op := "remove"
	if add {
		op = "add"
	}
	key := "playlist:" + playlistID + ":" + target.ID.String()
	err = s.debouncer.Do(ctx, key, func(ctx context.Context) error {
		var err error
		if add {
			err = s.remote.AddPlaylistMembership(ctx, playlistID, target.ID)
		} else {
			err = s.remote.RemovePlaylistMembership(ctx, playlistID, target.ID)
		}
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "%s track %s playlist %s", op, target.ID, playlistID), ErrRemote)
		}
		s.applyMembership(playlistID, target, add)
		return nil
	})
	if err != nil {
		zlog.Warn().Err(err).Msgf("library: playlist %s %s failed", op, playlistID)
		return err
	}
	zlog.Info().Msgf("library: %s track %s playlist %s", op, target.ID, playlistID)
	return nil
}

func (s *Synchronizer) applyMembership(playlistID string, t track.Track, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.playlists {
		p := &s.playlists[i]
		if p.ID != playlistID {
			continue
		}
		if add {
			p.Tracks = p.WithTrack(t)
		} else {
			p.Tracks = p.WithoutTrack(t.ID)
		}
	}

	s.tracks = mapTracks(s.tracks, t.ID, func(cached track.Track) track.Track {
		cached.PlaylistIDs = withMembership(cached.PlaylistIDs, playlistID, add)
		return cached
	})
}

func withMembership(ids []string, playlistID string, add bool) []string {
	out := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		if id != playlistID {
			out = append(out, id)
		}
	}
	if add {
		out = append(out, playlistID)
	}
	return out
}

// LoadPlaylists refreshes the cached playlists from the remote.
func (s *Synchronizer) LoadPlaylists(ctx context.Context) ([]playlist.Playlist, error) {
	src, ok := s.remote.(PlaylistSource)
	if !ok {
		return nil, ErrRemoteUnavailable
	}
	pls, err := src.FetchPlaylists(ctx)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "fetch playlists"), ErrRemote)
	}

	s.mu.Lock()
	s.playlists = append([]playlist.Playlist(nil), pls...)
	s.mu.Unlock()
	return pls, nil
}

// Playlist returns the cached playlist with the given id.
func (s *Synchronizer) Playlist(id string) (playlist.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.playlists {
		if p.ID == id {
			return p, nil
		}
	}
	return playlist.Playlist{}, errors.Wrapf(ErrUnknownPlaylist, "id %s", id)
}
