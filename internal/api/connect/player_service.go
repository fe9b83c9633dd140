// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/osa030/ambientbox/internal/app/playback"
	"github.com/osa030/ambientbox/internal/app/sink"
	"github.com/osa030/ambientbox/internal/domain/playlist"
	"github.com/osa030/ambientbox/internal/domain/track"
	"github.com/osa030/ambientbox/internal/infra/catalog"
)

// subscribeBuffer is the number of snapshots buffered per subscriber.
const subscribeBuffer = 16

// Player is the playback controller surface exposed over RPC.
type Player interface {
	Play(ctx context.Context, t track.Track, pl *playlist.Playlist) error
	Start() error
	Pause() error
	Stop() error
	Seek(pos time.Duration) error
	PlayNext(ctx context.Context) error
	PlayPrevious(ctx context.Context) error
	Snapshot() playback.Snapshot
}

// MusicLister lists the catalog.
type MusicLister interface {
	ListMusic(ctx context.Context, order catalog.SortOrder, filter string) ([]track.Track, error)
}

// Subscriptions registers snapshot sinks.
type Subscriptions interface {
	Register(s sink.Sink) string
	Unregister(id string)
}

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	player Player
	music  MusicLister
	subs   Subscriptions
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(player Player, music MusicLister, subs Subscriptions) *PlayerService {
	return &PlayerService{
		player: player,
		music:  music,
		subs:   subs,
	}
}

// Play plays a catalog track. The listed catalog, in the requested order and
// filter, becomes the playlist.
func (s *PlayerService) Play(
	ctx context.Context,
	req *connect.Request[PlayRequest],
) (*connect.Response[PlayerState], error) {
	order, err := catalog.ParseSortOrder(req.Msg.SortOrder)
	if err != nil {
		return nil, toConnectError(errors.Mark(err, errInvalidArgument))
	}

	tracks, err := s.music.ListMusic(ctx, order, req.Msg.Filter)
	if err != nil {
		return nil, toConnectError(err)
	}
	t, ok := track.FindByID(tracks, req.Msg.TrackID)
	if !ok {
		return nil, toConnectError(errors.Wrapf(errTrackNotFound, "track %d", req.Msg.TrackID))
	}
	pl, err := playlist.New(tracks)
	if err != nil {
		return nil, toConnectError(err)
	}

	// The prepare outlives the request.
	if err := s.player.Play(context.WithoutCancel(ctx), t, pl); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toPlayerState(s.player.Snapshot())), nil
}

// Start starts or resumes playback.
func (s *PlayerService) Start(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[PlayerState], error) {
	return s.apply(s.player.Start())
}

// Pause pauses playback.
func (s *PlayerService) Pause(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[PlayerState], error) {
	return s.apply(s.player.Pause())
}

// Stop stops playback.
func (s *PlayerService) Stop(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[PlayerState], error) {
	return s.apply(s.player.Stop())
}

// Seek moves the playback position.
func (s *PlayerService) Seek(
	ctx context.Context,
	req *connect.Request[SeekRequest],
) (*connect.Response[PlayerState], error) {
	if req.Msg.PositionMs < 0 {
		return nil, toConnectError(errors.Wrap(errInvalidArgument, "position must not be negative"))
	}
	return s.apply(s.player.Seek(time.Duration(req.Msg.PositionMs) * time.Millisecond))
}

// Next plays the next playlist track.
func (s *PlayerService) Next(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[PlayerState], error) {
	return s.apply(s.player.PlayNext(context.WithoutCancel(ctx)))
}

// Previous plays the previous playlist track.
func (s *PlayerService) Previous(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[PlayerState], error) {
	return s.apply(s.player.PlayPrevious(context.WithoutCancel(ctx)))
}

// GetState returns the current playback state.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[PlayerState], error) {
	return connect.NewResponse(toPlayerState(s.player.Snapshot())), nil
}

// Subscribe streams the current state and then every published snapshot.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[PlayerState],
) error {
	updates := make(chan playback.Snapshot, subscribeBuffer)
	id := s.subs.Register(sink.NewFunc("subscriber", func(sctx context.Context, snap playback.Snapshot) error {
		select {
		case updates <- snap:
			return nil
		case <-ctx.Done():
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	}))
	defer s.subs.Unregister(id)

	zlog.Debug().Msgf("subscriber connected: id=%s", id)
	defer zlog.Debug().Msgf("subscriber disconnected: id=%s", id)

	current := s.player.Snapshot()
	if err := stream.Send(toPlayerState(current)); err != nil {
		return err
	}
	last := current.Seq

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-updates:
			// Registration replays the latest snapshot, which may predate
			// the one already sent.
			if snap.Seq <= last {
				continue
			}
			last = snap.Seq
			if err := stream.Send(toPlayerState(snap)); err != nil {
				return err
			}
		}
	}
}

func (s *PlayerService) apply(err error) (*connect.Response[PlayerState], error) {
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toPlayerState(s.player.Snapshot())), nil
}
