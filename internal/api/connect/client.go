package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
)

// PlayerClient is a client for the PlayerService RPC.
type PlayerClient struct {
	play      *connect.Client[PlayRequest, PlayerState]
	start     *connect.Client[emptypb.Empty, PlayerState]
	pause     *connect.Client[emptypb.Empty, PlayerState]
	stop      *connect.Client[emptypb.Empty, PlayerState]
	seek      *connect.Client[SeekRequest, PlayerState]
	next      *connect.Client[emptypb.Empty, PlayerState]
	previous  *connect.Client[emptypb.Empty, PlayerState]
	getState  *connect.Client[emptypb.Empty, PlayerState]
	subscribe *connect.Client[emptypb.Empty, PlayerState]
}

// CatalogClient is a client for the CatalogService RPC.
type CatalogClient struct {
	listMusic      *connect.Client[ListMusicRequest, ListMusicResponse]
	listReminders  *connect.Client[ListRemindersRequest, ListRemindersResponse]
	updateReminder *connect.Client[UpdateReminderRequest, ReminderInfo]
	resetReminders *connect.Client[emptypb.Empty, emptypb.Empty]
}

func clientOptions(token string) []connect.ClientOption {
	return []connect.ClientOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(NewClientTokenInterceptor(token)),
	}
}

// NewPlayerClient creates a PlayerService client for baseURL.
func NewPlayerClient(httpClient connect.HTTPClient, baseURL, token string) *PlayerClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts := clientOptions(token)
	return &PlayerClient{
		play:      connect.NewClient[PlayRequest, PlayerState](httpClient, baseURL+PlayerPlayProcedure, opts...),
		start:     connect.NewClient[emptypb.Empty, PlayerState](httpClient, baseURL+PlayerStartProcedure, opts...),
		pause:     connect.NewClient[emptypb.Empty, PlayerState](httpClient, baseURL+PlayerPauseProcedure, opts...),
		stop:      connect.NewClient[emptypb.Empty, PlayerState](httpClient, baseURL+PlayerStopProcedure, opts...),
		seek:      connect.NewClient[SeekRequest, PlayerState](httpClient, baseURL+PlayerSeekProcedure, opts...),
		next:      connect.NewClient[emptypb.Empty, PlayerState](httpClient, baseURL+PlayerNextProcedure, opts...),
		previous:  connect.NewClient[emptypb.Empty, PlayerState](httpClient, baseURL+PlayerPreviousProcedure, opts...),
		getState:  connect.NewClient[emptypb.Empty, PlayerState](httpClient, baseURL+PlayerGetStateProcedure, opts...),
		subscribe: connect.NewClient[emptypb.Empty, PlayerState](httpClient, baseURL+PlayerSubscribeProcedure, opts...),
	}
}

// NewCatalogClient creates a CatalogService client for baseURL.
func NewCatalogClient(httpClient connect.HTTPClient, baseURL, token string) *CatalogClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts := clientOptions(token)
	return &CatalogClient{
		listMusic:      connect.NewClient[ListMusicRequest, ListMusicResponse](httpClient, baseURL+CatalogListMusicProcedure, opts...),
		listReminders:  connect.NewClient[ListRemindersRequest, ListRemindersResponse](httpClient, baseURL+CatalogListRemindersProcedure, opts...),
		updateReminder: connect.NewClient[UpdateReminderRequest, ReminderInfo](httpClient, baseURL+CatalogUpdateReminderProcedure, opts...),
		resetReminders: connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+CatalogResetRemindersProcedure, opts...),
	}
}

func unary[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], msg *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *PlayerClient) Play(ctx context.Context, req *PlayRequest) (*PlayerState, error) {
	return unary(ctx, c.play, req)
}

func (c *PlayerClient) Start(ctx context.Context) (*PlayerState, error) {
	return unary(ctx, c.start, &emptypb.Empty{})
}

func (c *PlayerClient) Pause(ctx context.Context) (*PlayerState, error) {
	return unary(ctx, c.pause, &emptypb.Empty{})
}

func (c *PlayerClient) Stop(ctx context.Context) (*PlayerState, error) {
	return unary(ctx, c.stop, &emptypb.Empty{})
}

func (c *PlayerClient) Seek(ctx context.Context, req *SeekRequest) (*PlayerState, error) {
	return unary(ctx, c.seek, req)
}

func (c *PlayerClient) Next(ctx context.Context) (*PlayerState, error) {
	return unary(ctx, c.next, &emptypb.Empty{})
}

func (c *PlayerClient) Previous(ctx context.Context) (*PlayerState, error) {
	return unary(ctx, c.previous, &emptypb.Empty{})
}

func (c *PlayerClient) GetState(ctx context.Context) (*PlayerState, error) {
	return unary(ctx, c.getState, &emptypb.Empty{})
}

// Subscribe opens a snapshot stream. The caller closes it.
func (c *PlayerClient) Subscribe(ctx context.Context) (*connect.ServerStreamForClient[PlayerState], error) {
	return c.subscribe.CallServerStream(ctx, connect.NewRequest(&emptypb.Empty{}))
}

func (c *CatalogClient) ListMusic(ctx context.Context, req *ListMusicRequest) (*ListMusicResponse, error) {
	return unary(ctx, c.listMusic, req)
}

func (c *CatalogClient) ListReminders(ctx context.Context, req *ListRemindersRequest) (*ListRemindersResponse, error) {
	return unary(ctx, c.listReminders, req)
}

func (c *CatalogClient) UpdateReminder(ctx context.Context, req *UpdateReminderRequest) (*ReminderInfo, error) {
	return unary(ctx, c.updateReminder, req)
}

func (c *CatalogClient) ResetReminders(ctx context.Context) error {
	_, err := unary(ctx, c.resetReminders, &emptypb.Empty{})
	return err
}
