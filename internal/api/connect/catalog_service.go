package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/osa030/ambientbox/internal/domain/reminder"
	"github.com/osa030/ambientbox/internal/domain/track"
	"github.com/osa030/ambientbox/internal/infra/catalog"
)

// Catalog is the catalog client surface exposed over RPC.
type Catalog interface {
	ListMusic(ctx context.Context, order catalog.SortOrder, filter string) ([]track.Track, error)
	ListReminders(ctx context.Context, trackID *int) ([]reminder.Reminder, error)
	PatchReminder(ctx context.Context, id int, patch reminder.Patch) (reminder.Reminder, error)
	ResetReminders(ctx context.Context) error
}

// Resyncer is notified when reminders change.
type Resyncer interface {
	RequestSync()
}

// CatalogService implements the CatalogService RPC.
type CatalogService struct {
	catalog  Catalog
	resyncer Resyncer
}

// NewCatalogService creates a new CatalogService. resyncer may be nil.
func NewCatalogService(c Catalog, resyncer Resyncer) *CatalogService {
	return &CatalogService{
		catalog:  c,
		resyncer: resyncer,
	}
}

// ListMusic lists the catalog.
func (s *CatalogService) ListMusic(
	ctx context.Context,
	req *connect.Request[ListMusicRequest],
) (*connect.Response[ListMusicResponse], error) {
	order, err := catalog.ParseSortOrder(req.Msg.SortOrder)
	if err != nil {
		return nil, toConnectError(errors.Mark(err, errInvalidArgument))
	}

	tracks, err := s.catalog.ListMusic(ctx, order, req.Msg.Filter)
	if err != nil {
		return nil, toConnectError(err)
	}

	infos := make([]TrackInfo, len(tracks))
	for i, t := range tracks {
		infos[i] = toTrackInfo(t)
	}
	return connect.NewResponse(&ListMusicResponse{Tracks: infos}), nil
}

// ListReminders lists reminders, optionally of one track.
func (s *CatalogService) ListReminders(
	ctx context.Context,
	req *connect.Request[ListRemindersRequest],
) (*connect.Response[ListRemindersResponse], error) {
	reminders, err := s.catalog.ListReminders(ctx, req.Msg.TrackID)
	if err != nil {
		return nil, toConnectError(err)
	}

	infos := make([]ReminderInfo, len(reminders))
	for i, r := range reminders {
		infos[i] = toReminderInfo(r)
	}
	return connect.NewResponse(&ListRemindersResponse{Reminders: infos}), nil
}

// UpdateReminder changes the time or enabled flag of a reminder.
func (s *CatalogService) UpdateReminder(
	ctx context.Context,
	req *connect.Request[UpdateReminderRequest],
) (*connect.Response[ReminderInfo], error) {
	patch := req.Msg.Patch()
	if err := patch.Validate(); err != nil {
		return nil, toConnectError(err)
	}

	r, err := s.catalog.PatchReminder(ctx, req.Msg.ReminderID, patch)
	if err != nil {
		return nil, toConnectError(err)
	}

	zlog.Info().Msgf("reminder updated: id=%d time=%s enabled=%t", r.ID, r.Clock(), r.Enabled)
	s.resync()

	info := toReminderInfo(r)
	return connect.NewResponse(&info), nil
}

// ResetReminders restores the default reminders.
func (s *CatalogService) ResetReminders(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[emptypb.Empty], error) {
	if err := s.catalog.ResetReminders(ctx); err != nil {
		return nil, toConnectError(err)
	}

	zlog.Info().Msg("reminders reset")
	s.resync()

	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (s *CatalogService) resync() {
	if s.resyncer != nil {
		s.resyncer.RequestSync()
	}
}
