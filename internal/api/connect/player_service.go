// Package connect exposes the session over Connect RPC.
package connect

import (
	"context"
	"net/http"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/osa030/tunesync/internal/app/guard"
	"github.com/osa030/tunesync/internal/app/library"
	"github.com/osa030/tunesync/internal/app/notification"
	"github.com/osa030/tunesync/internal/app/playback"
	"github.com/osa030/tunesync/internal/app/session"
	"github.com/osa030/tunesync/internal/domain/playlist"
	"github.com/osa030/tunesync/internal/domain/track"
)

// Player is the session surface served over RPC. *session.Manager
// implements it.
type Player interface {
	PlaySelectedFromList(ctx context.Context, req playback.ListRequest) playback.Result
	PlayFromPlaylist(ctx context.Context, playlistID string, index int, force bool) (playback.Result, error)
	InitializeQueue(ctx context.Context, req playback.InitRequest) playback.Result
	LoadQueue(ctx context.Context, tracks []track.Track, contextID string) playback.Result
	PlayTrack(ctx context.Context, t track.Track) playback.Result
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error

	ToggleFavorite(ctx context.Context, ref track.Track) (library.FavoriteState, error)
	SetFavorite(ctx context.Context, ref track.Track, want bool) (library.FavoriteState, error)
	ToggleActiveFavorite(ctx context.Context) (library.FavoriteState, error)
	AddToPlaylist(ctx context.Context, playlistID string, ref track.Track) error
	RemoveFromPlaylist(ctx context.Context, playlistID string, ref track.Track) error
	LoadLibraryPage(ctx context.Context, page int, search string) (library.Page, error)
	LoadPlaylists(ctx context.Context) ([]playlist.Playlist, error)

	State() playback.Snapshot
	StateNotification() *notification.Notification
	Notifications() *notification.Manager
	Done() <-chan struct{}
}

var _ Player = (*session.Manager)(nil)

// PlayerService implements tunesync.v1.PlayerService.
type PlayerService struct {
	player Player
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(player Player) *PlayerService {
	return &PlayerService{player: player}
}

// NewPlayerServiceHandler builds an HTTP handler serving every procedure of
// svc. It returns the path prefix to mount the handler on.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(PlaySelectedFromListProcedure, connect.NewUnaryHandler(PlaySelectedFromListProcedure, svc.PlaySelectedFromList, opts...))
	mux.Handle(InitializeQueueProcedure, connect.NewUnaryHandler(InitializeQueueProcedure, svc.InitializeQueue, opts...))
	mux.Handle(LoadQueueProcedure, connect.NewUnaryHandler(LoadQueueProcedure, svc.LoadQueue, opts...))
	mux.Handle(PlayTrackProcedure, connect.NewUnaryHandler(PlayTrackProcedure, svc.PlayTrack, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, svc.Pause, opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, svc.Resume, opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, svc.Stop, opts...))
	mux.Handle(ToggleFavoriteProcedure, connect.NewUnaryHandler(ToggleFavoriteProcedure, svc.ToggleFavorite, opts...))
	mux.Handle(ToggleActiveFavoriteProcedure, connect.NewUnaryHandler(ToggleActiveFavoriteProcedure, svc.ToggleActiveFavorite, opts...))
	mux.Handle(AddToPlaylistProcedure, connect.NewUnaryHandler(AddToPlaylistProcedure, svc.AddToPlaylist, opts...))
	mux.Handle(RemoveFromPlaylistProcedure, connect.NewUnaryHandler(RemoveFromPlaylistProcedure, svc.RemoveFromPlaylist, opts...))
	mux.Handle(LoadLibraryPageProcedure, connect.NewUnaryHandler(LoadLibraryPageProcedure, svc.LoadLibraryPage, opts...))
	mux.Handle(LoadPlaylistsProcedure, connect.NewUnaryHandler(LoadPlaylistsProcedure, svc.LoadPlaylists, opts...))
	mux.Handle(GetStateProcedure, connect.NewUnaryHandler(GetStateProcedure, svc.GetState, opts...))
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...))
	return "/" + PlayerServiceName + "/", mux
}

// PlaySelectedFromList handles list playback requests.
func (s *PlayerService) PlaySelectedFromList(
	ctx context.Context,
	req *connect.Request[PlayFromListRequest],
) (*connect.Response[ResultResponse], error) {
	msg := req.Msg
	if msg.Index < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("index must not be negative"))
	}

	if msg.PlaylistID != "" {
		res, err := s.player.PlayFromPlaylist(ctx, msg.PlaylistID, msg.Index, msg.Force)
		if err != nil {
			return nil, toConnectError(err)
		}
		return connect.NewResponse(newResultResponse(res)), nil
	}

	if msg.Index >= len(msg.Tracks) {
		return nil, connect.NewError(connect.CodeInvalidArgument,
			errors.Newf("index %d out of range for %d tracks", msg.Index, len(msg.Tracks)))
	}
	res := s.player.PlaySelectedFromList(ctx, playback.ListRequest{
		Tracks:    msg.Tracks,
		Index:     msg.Index,
		ContextID: msg.ContextID,
		Force:     msg.Force,
	})
	return connect.NewResponse(newResultResponse(res)), nil
}

// InitializeQueue handles queue preload requests.
func (s *PlayerService) InitializeQueue(
	ctx context.Context,
	req *connect.Request[InitializeQueueRequest],
) (*connect.Response[ResultResponse], error) {
	msg := req.Msg
	if msg.Index < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("index must not be negative"))
	}
	res := s.player.InitializeQueue(ctx, playback.InitRequest{
		Tracks:   msg.Tracks,
		Index:    msg.Index,
		Force:    msg.Force,
		AutoPlay: msg.AutoPlay,
	})
	return connect.NewResponse(newResultResponse(res)), nil
}

// LoadQueue handles queue replacement requests.
func (s *PlayerService) LoadQueue(
	ctx context.Context,
	req *connect.Request[LoadQueueRequest],
) (*connect.Response[ResultResponse], error) {
	res := s.player.LoadQueue(ctx, req.Msg.Tracks, req.Msg.ContextID)
	return connect.NewResponse(newResultResponse(res)), nil
}

// PlayTrack handles single track playback requests.
func (s *PlayerService) PlayTrack(
	ctx context.Context,
	req *connect.Request[PlayTrackRequest],
) (*connect.Response[ResultResponse], error) {
	res := s.player.PlayTrack(ctx, req.Msg.Track)
	return connect.NewResponse(newResultResponse(res)), nil
}

func (s *PlayerService) Pause(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[emptypb.Empty], error) {
	if err := s.player.Pause(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (s *PlayerService) Resume(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[emptypb.Empty], error) {
	if err := s.player.Resume(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (s *PlayerService) Stop(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[emptypb.Empty], error) {
	if err := s.player.Stop(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// ToggleFavorite toggles the favorite flag, or sets it when the request
// carries a desired value.
func (s *PlayerService) ToggleFavorite(
	ctx context.Context,
	req *connect.Request[FavoriteRequest],
) (*connect.Response[FavoriteResponse], error) {
	ref := req.Msg.Track
	if ref.ID.IsZero() && ref.URL == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("track id or url is required"))
	}

	var (
		st  library.FavoriteState
		err error
	)
	if req.Msg.Favorite != nil {
		st, err = s.player.SetFavorite(ctx, ref, *req.Msg.Favorite)
	} else {
		st, err = s.player.ToggleFavorite(ctx, ref)
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&st), nil
}

// ToggleActiveFavorite toggles the favorite flag of the engine's active item.
func (s *PlayerService) ToggleActiveFavorite(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[FavoriteResponse], error) {
	st, err := s.player.ToggleActiveFavorite(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&st), nil
}

func (s *PlayerService) AddToPlaylist(
	ctx context.Context,
	req *connect.Request[PlaylistMembershipRequest],
) (*connect.Response[emptypb.Empty], error) {
	if req.Msg.PlaylistID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("playlist id is required"))
	}
	if err := s.player.AddToPlaylist(ctx, req.Msg.PlaylistID, req.Msg.Track); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (s *PlayerService) RemoveFromPlaylist(
	ctx context.Context,
	req *connect.Request[PlaylistMembershipRequest],
) (*connect.Response[emptypb.Empty], error) {
	if req.Msg.PlaylistID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("playlist id is required"))
	}
	if err := s.player.RemoveFromPlaylist(ctx, req.Msg.PlaylistID, req.Msg.Track); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// LoadLibraryPage loads one page of the remote library. Page 0 is treated as 1.
func (s *PlayerService) LoadLibraryPage(
	ctx context.Context,
	req *connect.Request[LibraryPageRequest],
) (*connect.Response[LibraryPageResponse], error) {
	page := req.Msg.Page
	if page < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("page must not be negative"))
	}
	if page == 0 {
		page = 1
	}
	p, err := s.player.LoadLibraryPage(ctx, page, req.Msg.Search)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&p), nil
}

func (s *PlayerService) LoadPlaylists(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[PlaylistsResponse], error) {
	pls, err := s.player.LoadPlaylists(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PlaylistsResponse{Playlists: pls}), nil
}

// GetState returns the current queue context.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[StateResponse], error) {
	snap := s.player.State()
	return connect.NewResponse(&StateResponse{State: snap, Phase: snap.Phase.String()}), nil
}

// Subscribe streams the current state followed by change notifications.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[notification.Notification],
) error {
	notifManager := s.player.Notifications()
	adapter := &notificationStreamAdapter{stream: stream}

	// Subscribe before sending the initial state so no change is lost in
	// between. The adapter serializes both senders.
	subscriptionID := notifManager.Subscribe(adapter)
	defer notifManager.Unsubscribe(subscriptionID)

	if err := adapter.Send(s.player.StateNotification()); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-s.player.Done():
	}
	zlog.Debug().Msgf("connect: subscription %s ended", subscriptionID)
	return nil
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[notification.Notification]
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(n)
}

// toConnectError maps session errors to RPC status codes.
func toConnectError(err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, guard.ErrDebounced):
		code = connect.CodeResourceExhausted
	case errors.Is(err, library.ErrUnresolvable), errors.Is(err, library.ErrUnknownPlaylist):
		code = connect.CodeNotFound
	case errors.Is(err, session.ErrLibraryDisabled), errors.Is(err, library.ErrRemoteUnavailable):
		code = connect.CodeUnimplemented
	case errors.Is(err, session.ErrNoActiveTrack):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, library.ErrRemote), errors.Is(err, playback.ErrEngine):
		code = connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	}
	if code == connect.CodeInternal {
		zlog.Error().Err(err).Msg("connect: unexpected error")
	}
	return connect.NewError(code, err)
}
