package spotify

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"

	"github.com/osa030/tunesync/internal/app/library"
	"github.com/osa030/tunesync/internal/domain/playlist"
	"github.com/osa030/tunesync/internal/domain/track"
)

// Library exposes the Spotify user library as the remote data service.
// Saved tracks are favorites.
type Library struct {
	client   *Client
	pageSize int
}

// NewLibrary creates a library remote. Page sizes above 50 are clamped.
func NewLibrary(client *Client, pageSize int) *Library {
	if pageSize <= 0 || pageSize > 50 {
		pageSize = 50
	}
	return &Library{client: client, pageSize: pageSize}
}

// ToggleFavorite saves or unsaves a track and reports the new state.
func (l *Library) ToggleFavorite(ctx context.Context, id track.ID) (library.FavoriteState, error) {
	sid := spotify.ID(extractTrackID(id.String()))

	var saved []bool
	err := l.client.retry(ctx, func(ctx context.Context) error {
		var err error
		saved, err = l.client.client.UserHasTracks(ctx, sid)
		return err
	})
	if err != nil {
		return library.FavoriteState{}, errors.Wrap(err, "failed to check saved track")
	}
	if len(saved) == 0 {
		return library.FavoriteState{}, errors.Newf("no saved state for track %s", sid)
	}

	err = l.client.retry(ctx, func(ctx context.Context) error {
		if saved[0] {
			return l.client.client.RemoveTracksFromLibrary(ctx, sid)
		}
		return l.client.client.AddTracksToLibrary(ctx, sid)
	})
	if err != nil {
		return library.FavoriteState{}, errors.Wrap(err, "failed to update saved tracks")
	}
	return library.FavoriteState{ID: id, IsFavorite: !saved[0]}, nil
}

// AddPlaylistMembership adds a track to a playlist.
func (l *Library) AddPlaylistMembership(ctx context.Context, playlistID string, trackID track.ID) error {
	pid := spotify.ID(extractPlaylistID(playlistID))
	sid := spotify.ID(extractTrackID(trackID.String()))
	err := l.client.retry(ctx, func(ctx context.Context) error {
		_, err := l.client.client.AddTracksToPlaylist(ctx, pid, sid)
		return err
	})
	return errors.Wrap(err, "failed to add track to playlist")
}

// RemovePlaylistMembership removes every occurrence of a track from a playlist.
func (l *Library) RemovePlaylistMembership(ctx context.Context, playlistID string, trackID track.ID) error {
	pid := spotify.ID(extractPlaylistID(playlistID))
	sid := spotify.ID(extractTrackID(trackID.String()))
	err := l.client.retry(ctx, func(ctx context.Context) error {
		_, err := l.client.client.RemoveTracksFromPlaylist(ctx, pid, sid)
		return err
	})
	return errors.Wrap(err, "failed to remove track from playlist")
}

// FetchLibraryPage returns saved tracks, or search results when search is
// set. Pages start at 1.
func (l *Library) FetchLibraryPage(ctx context.Context, page int, search string) (library.Page, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * l.pageSize
	if search == "" {
		return l.savedTracks(ctx, offset)
	}
	return l.search(ctx, search, offset)
}

func (l *Library) savedTracks(ctx context.Context, offset int) (library.Page, error) {
	var p *spotify.SavedTrackPage
	err := l.client.retry(ctx, func(ctx context.Context) error {
		var err error
		p, err = l.client.client.CurrentUsersTracks(ctx,
			spotify.Limit(l.pageSize),
			spotify.Offset(offset),
			spotify.Market(l.client.market),
		)
		return err
	})
	if err != nil {
		return library.Page{}, errors.Wrap(err, "failed to get saved tracks")
	}

	items := make([]track.Track, 0, len(p.Tracks))
	for i := range p.Tracks {
		t := l.client.convertTrack(&p.Tracks[i].FullTrack)
		t.IsFavorite = true
		items = append(items, t)
	}
	return library.Page{Items: items, IsLastPage: p.Next == ""}, nil
}

func (l *Library) search(ctx context.Context, query string, offset int) (library.Page, error) {
	var result *spotify.SearchResult
	err := l.client.retry(ctx, func(ctx context.Context) error {
		var err error
		result, err = l.client.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(l.pageSize),
			spotify.Offset(offset),
			spotify.Market(l.client.market),
		)
		return err
	})
	if err != nil {
		return library.Page{}, errors.Wrap(err, "failed to search")
	}
	if result.Tracks == nil {
		return library.Page{IsLastPage: true}, nil
	}

	items := make([]track.Track, 0, len(result.Tracks.Tracks))
	ids := make([]spotify.ID, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		t := l.client.convertTrack(&result.Tracks.Tracks[i])
		items = append(items, t)
		ids = append(ids, spotify.ID(t.ID))
	}

	if len(ids) > 0 {
		var saved []bool
		err := l.client.retry(ctx, func(ctx context.Context) error {
			var err error
			saved, err = l.client.client.UserHasTracks(ctx, ids...)
			return err
		})
		if err != nil {
			return library.Page{}, errors.Wrap(err, "failed to check saved tracks")
		}
		for i := range items {
			if i < len(saved) {
				items[i].IsFavorite = saved[i]
			}
		}
	}
	return library.Page{Items: items, IsLastPage: result.Tracks.Next == ""}, nil
}

// FetchPlaylists returns the user's playlists with their tracks.
func (l *Library) FetchPlaylists(ctx context.Context) ([]playlist.Playlist, error) {
	var out []playlist.Playlist
	offset := 0
	for {
		var page *spotify.SimplePlaylistPage
		err := l.client.retry(ctx, func(ctx context.Context) error {
			var err error
			page, err = l.client.client.CurrentUsersPlaylists(ctx, spotify.Limit(50), spotify.Offset(offset))
			return err
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to list playlists")
		}

		for _, sp := range page.Playlists {
			tracks, err := l.playlistTracks(ctx, sp.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, playlist.Playlist{
				ID:          string(sp.ID),
				Name:        sp.Name,
				Description: sp.Description,
				URL:         PlaylistURL(string(sp.ID)),
				Tracks:      tracks,
			})
		}

		if page.Next == "" || len(page.Playlists) == 0 {
			break
		}
		offset += len(page.Playlists)
	}
	return out, nil
}

// playlistTracks retrieves all tracks of a playlist. Episodes are skipped.
func (l *Library) playlistTracks(ctx context.Context, id spotify.ID) ([]track.Track, error) {
	var tracks []track.Track
	offset := 0
	limit := 100

	for {
		var page *spotify.PlaylistItemPage
		err := l.client.retry(ctx, func(ctx context.Context) error {
			var err error
			page, err = l.client.client.GetPlaylistItems(ctx, id,
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(l.client.market),
			)
			return err
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get items of playlist %s", id)
		}

		for _, item := range page.Items {
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				t := l.client.convertTrack(item.Track.Track)
				t.PlaylistIDs = []string{string(id)}
				tracks = append(tracks, t)
			}
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}
	return tracks, nil
}
