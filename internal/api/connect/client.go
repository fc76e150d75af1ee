package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/osa030/tunesync/internal/app/notification"
)

// Client is a typed client for tunesync.v1.PlayerService.
type Client struct {
	playFromList         *connect.Client[PlayFromListRequest, ResultResponse]
	initializeQueue      *connect.Client[InitializeQueueRequest, ResultResponse]
	loadQueue            *connect.Client[LoadQueueRequest, ResultResponse]
	playTrack            *connect.Client[PlayTrackRequest, ResultResponse]
	pause                *connect.Client[emptypb.Empty, emptypb.Empty]
	resume               *connect.Client[emptypb.Empty, emptypb.Empty]
	stop                 *connect.Client[emptypb.Empty, emptypb.Empty]
	toggleFavorite       *connect.Client[FavoriteRequest, FavoriteResponse]
	toggleActiveFavorite *connect.Client[emptypb.Empty, FavoriteResponse]
	addToPlaylist        *connect.Client[PlaylistMembershipRequest, emptypb.Empty]
	removeFromPlaylist   *connect.Client[PlaylistMembershipRequest, emptypb.Empty]
	loadLibraryPage      *connect.Client[LibraryPageRequest, LibraryPageResponse]
	loadPlaylists        *connect.Client[emptypb.Empty, PlaylistsResponse]
	getState             *connect.Client[emptypb.Empty, StateResponse]
	subscribe            *connect.Client[emptypb.Empty, notification.Notification]
}

// NewClient creates a client for the server at baseURL. A non-empty token
// is sent as the control token.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(NewControlTokenInterceptor(token)),
	}, opts...)

	return &Client{
		playFromList:         connect.NewClient[PlayFromListRequest, ResultResponse](httpClient, baseURL+PlaySelectedFromListProcedure, opts...),
		initializeQueue:      connect.NewClient[InitializeQueueRequest, ResultResponse](httpClient, baseURL+InitializeQueueProcedure, opts...),
		loadQueue:            connect.NewClient[LoadQueueRequest, ResultResponse](httpClient, baseURL+LoadQueueProcedure, opts...),
		playTrack:            connect.NewClient[PlayTrackRequest, ResultResponse](httpClient, baseURL+PlayTrackProcedure, opts...),
		pause:                connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+PauseProcedure, opts...),
		resume:               connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+ResumeProcedure, opts...),
		stop:                 connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+StopProcedure, opts...),
		toggleFavorite:       connect.NewClient[FavoriteRequest, FavoriteResponse](httpClient, baseURL+ToggleFavoriteProcedure, opts...),
		toggleActiveFavorite: connect.NewClient[emptypb.Empty, FavoriteResponse](httpClient, baseURL+ToggleActiveFavoriteProcedure, opts...),
		addToPlaylist:        connect.NewClient[PlaylistMembershipRequest, emptypb.Empty](httpClient, baseURL+AddToPlaylistProcedure, opts...),
		removeFromPlaylist:   connect.NewClient[PlaylistMembershipRequest, emptypb.Empty](httpClient, baseURL+RemoveFromPlaylistProcedure, opts...),
		loadLibraryPage:      connect.NewClient[LibraryPageRequest, LibraryPageResponse](httpClient, baseURL+LoadLibraryPageProcedure, opts...),
		loadPlaylists:        connect.NewClient[emptypb.Empty, PlaylistsResponse](httpClient, baseURL+LoadPlaylistsProcedure, opts...),
		getState:             connect.NewClient[emptypb.Empty, StateResponse](httpClient, baseURL+GetStateProcedure, opts...),
		subscribe:            connect.NewClient[emptypb.Empty, notification.Notification](httpClient, baseURL+SubscribeProcedure, opts...),
	}
}

func empty() *connect.Request[emptypb.Empty] {
	return connect.NewRequest(&emptypb.Empty{})
}

func (c *Client) PlaySelectedFromList(ctx context.Context, req *PlayFromListRequest) (*ResultResponse, error) {
	res, err := c.playFromList.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) InitializeQueue(ctx context.Context, req *InitializeQueueRequest) (*ResultResponse, error) {
	res, err := c.initializeQueue.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) LoadQueue(ctx context.Context, req *LoadQueueRequest) (*ResultResponse, error) {
	res, err := c.loadQueue.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) PlayTrack(ctx context.Context, req *PlayTrackRequest) (*ResultResponse, error) {
	res, err := c.playTrack.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) Pause(ctx context.Context) error {
	_, err := c.pause.CallUnary(ctx, empty())
	return err
}

func (c *Client) Resume(ctx context.Context) error {
	_, err := c.resume.CallUnary(ctx, empty())
	return err
}

func (c *Client) Stop(ctx context.Context) error {
	_, err := c.stop.CallUnary(ctx, empty())
	return err
}

func (c *Client) ToggleFavorite(ctx context.Context, req *FavoriteRequest) (*FavoriteResponse, error) {
	res, err := c.toggleFavorite.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) ToggleActiveFavorite(ctx context.Context) (*FavoriteResponse, error) {
	res, err := c.toggleActiveFavorite.CallUnary(ctx, empty())
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) AddToPlaylist(ctx context.Context, req *PlaylistMembershipRequest) error {
	_, err := c.addToPlaylist.CallUnary(ctx, connect.NewRequest(req))
	return err
}

func (c *Client) RemoveFromPlaylist(ctx context.Context, req *PlaylistMembershipRequest) error {
	_, err := c.removeFromPlaylist.CallUnary(ctx, connect.NewRequest(req))
	return err
}

func (c *Client) LoadLibraryPage(ctx context.Context, req *LibraryPageRequest) (*LibraryPageResponse, error) {
	res, err := c.loadLibraryPage.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) LoadPlaylists(ctx context.Context) (*PlaylistsResponse, error) {
	res, err := c.loadPlaylists.CallUnary(ctx, empty())
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) GetState(ctx context.Context) (*StateResponse, error) {
	res, err := c.getState.CallUnary(ctx, empty())
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// Subscribe opens the notification stream. The first message carries the
// current state.
func (c *Client) Subscribe(ctx context.Context) (*connect.ServerStreamForClient[notification.Notification], error) {
	return c.subscribe.CallServerStream(ctx, empty())
}
