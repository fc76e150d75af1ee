// Package library keeps a local cache of library entities in step with a
// remote source of truth. Local entries change only after the remote
// confirms a mutation.
package library

import (
	"context"

	"github.com/osa030/tunesync/internal/domain/playlist"
	"github.com/osa030/tunesync/internal/domain/track"
)

// FavoriteState is the remote's authoritative favorite flag for a track.
type FavoriteState struct {
	ID         track.ID `json:"id"`
	IsFavorite bool     `json:"isFavorite"`
}

// Page is one page of library tracks.
type Page struct {
	Items      []track.Track `json:"items"`
	IsLastPage bool          `json:"isLastPage"`
}

// Remote is the remote data service.
type Remote interface {
	ToggleFavorite(ctx context.Context, id track.ID) (FavoriteState, error)
	AddPlaylistMembership(ctx context.Context, playlistID string, trackID track.ID) error
	RemovePlaylistMembership(ctx context.Context, playlistID string, trackID track.ID) error
	FetchLibraryPage(ctx context.Context, page int, search string) (Page, error)
}

// PlaylistSource is implemented by remotes that can list playlists.
type PlaylistSource interface {
	FetchPlaylists(ctx context.Context) ([]playlist.Playlist, error)
}
