package connect

import (
	"github.com/osa030/tunesync/internal/app/library"
	"github.com/osa030/tunesync/internal/app/playback"
	"github.com/osa030/tunesync/internal/domain/playlist"
	"github.com/osa030/tunesync/internal/domain/track"
)

const (
	// PlayerServiceName is the fully-qualified name of the player service.
	PlayerServiceName = "tunesync.v1.PlayerService"

	PlaySelectedFromListProcedure = "/tunesync.v1.PlayerService/PlaySelectedFromList"
	InitializeQueueProcedure      = "/tunesync.v1.PlayerService/InitializeQueue"
	LoadQueueProcedure            = "/tunesync.v1.PlayerService/LoadQueue"
	PlayTrackProcedure            = "/tunesync.v1.PlayerService/PlayTrack"
	PauseProcedure                = "/tunesync.v1.PlayerService/Pause"
	ResumeProcedure               = "/tunesync.v1.PlayerService/Resume"
	StopProcedure                 = "/tunesync.v1.PlayerService/Stop"
	ToggleFavoriteProcedure       = "/tunesync.v1.PlayerService/ToggleFavorite"
	ToggleActiveFavoriteProcedure = "/tunesync.v1.PlayerService/ToggleActiveFavorite"
	AddToPlaylistProcedure        = "/tunesync.v1.PlayerService/AddToPlaylist"
	RemoveFromPlaylistProcedure   = "/tunesync.v1.PlayerService/RemoveFromPlaylist"
	LoadLibraryPageProcedure      = "/tunesync.v1.PlayerService/LoadLibraryPage"
	LoadPlaylistsProcedure        = "/tunesync.v1.PlayerService/LoadPlaylists"
	GetStateProcedure             = "/tunesync.v1.PlayerService/GetState"
	SubscribeProcedure            = "/tunesync.v1.PlayerService/Subscribe"
)

// PlayFromListRequest plays a list from one of its items. When PlaylistID
// is set the cached library playlist is played and Tracks is ignored.
type PlayFromListRequest struct {
	Tracks     []track.Track `json:"tracks,omitempty"`
	Index      int           `json:"index"`
	ContextID  string        `json:"contextId,omitempty"`
	PlaylistID string        `json:"playlistId,omitempty"`
	Force      bool          `json:"force,omitempty"`
}

type InitializeQueueRequest struct {
	Tracks   []track.Track `json:"tracks"`
	Index    int           `json:"index"`
	Force    bool          `json:"force,omitempty"`
	AutoPlay bool          `json:"autoPlay,omitempty"`
}

type LoadQueueRequest struct {
	Tracks    []track.Track `json:"tracks"`
	ContextID string        `json:"contextId,omitempty"`
}

type PlayTrackRequest struct {
	Track track.Track `json:"track"`
}

// ResultResponse reports how a playback transition ended.
type ResultResponse struct {
	Outcome      string `json:"outcome"`
	TransitionID string `json:"transitionId,omitempty"`
	Index        int    `json:"index"`
	Converged    bool   `json:"converged"`
	Error        string `json:"error,omitempty"`
}

func newResultResponse(r playback.Result) *ResultResponse {
	resp := &ResultResponse{
		Outcome:      r.Outcome.String(),
		TransitionID: r.TransitionID,
		Index:        r.Index,
		Converged:    r.Converged,
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	return resp
}

// FavoriteRequest toggles the favorite flag, or sets it when Favorite is given.
type FavoriteRequest struct {
	Track    track.Track `json:"track"`
	Favorite *bool       `json:"favorite,omitempty"`
}

type FavoriteResponse = library.FavoriteState

type PlaylistMembershipRequest struct {
	PlaylistID string      `json:"playlistId"`
	Track      track.Track `json:"track"`
}

type LibraryPageRequest struct {
	Page   int    `json:"page"`
	Search string `json:"search,omitempty"`
}

type LibraryPageResponse = library.Page

type PlaylistsResponse struct {
	Playlists []playlist.Playlist `json:"playlists"`
}

type StateResponse struct {
	State playback.Snapshot `json:"state"`
	Phase string            `json:"phase"`
}
