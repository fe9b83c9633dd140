package notify

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ambientbox/internal/app/playback"
)

// Playback notification action keys
const (
	ActionPrevious  = "previous"
	ActionPlayPause = "play_pause"
	ActionNext      = "next"
	ActionStop      = "stop"
)

// Player is the part of the playback controller the notification drives.
type Player interface {
	TogglePlayPause(ctx context.Context) error
	PlayNext(ctx context.Context) error
	PlayPrevious(ctx context.Context) error
	Stop() error
}

// IconStore resolves artwork files for notification icons.
type IconStore interface {
	Path(trackID int, data []byte) (string, error)
}

// SinkConfig holds playback notification settings.
type SinkConfig struct {
	Timeout int32 // ms, -1 = server default, 0 = never expire
}

// Sink mirrors playback as a single ongoing notification that is replaced
// in place and closed when playback stops.
type Sink struct {
	center *Center
	player Player
	icons  IconStore
	config SinkConfig

	mu sync.Mutex
	id uint32
}

// NewSink creates the playback notification sink. icons may be nil.
func NewSink(center *Center, player Player, icons IconStore, config SinkConfig) *Sink {
	return &Sink{
		center: center,
		player: player,
		icons:  icons,
		config: config,
	}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "notification"
}

// Update shows, replaces or closes the playback notification.
func (s *Sink) Update(ctx context.Context, snap playback.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Track == nil || !snap.State.HasTrack() {
		if s.id == 0 {
			return nil
		}
		id := s.id
		s.id = 0
		return errors.Wrap(s.center.Dismiss(id), "failed to close notification")
	}

	n := Notification{
		Title:      snap.Track.Title,
		Body:       body(snap),
		Timeout:    s.config.Timeout,
		ReplacesID: s.id,
		Urgency:    UrgencyLow,
		Category:   "x-ambientbox.playback",
		Resident:   true,
		Actions:    actions(snap),
	}
	if s.icons != nil && len(snap.Artwork) > 0 {
		icon, err := s.icons.Path(snap.Track.ID, snap.Artwork)
		if err != nil {
			zlog.Debug().Err(err).Msgf("notify: no icon for track %d", snap.Track.ID)
		} else {
			n.Icon = icon
		}
	}

	id, err := s.center.Post(n, s.handleAction)
	if err != nil {
		return errors.Wrap(err, "failed to post notification")
	}
	s.id = id
	return nil
}

// handleAction maps notification buttons to player controls.
func (s *Sink) handleAction(ctx context.Context, key string) {
	var err error
	switch key {
	case ActionPrevious:
		err = s.player.PlayPrevious(ctx)
	case ActionPlayPause:
		err = s.player.TogglePlayPause(ctx)
	case ActionNext:
		err = s.player.PlayNext(ctx)
	case ActionStop:
		err = s.player.Stop()
	default:
		zlog.Debug().Msgf("notify: unknown playback action: %s", key)
		return
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("notify: action %s failed", key)
	}
}

func body(snap playback.Snapshot) string {
	parts := []string{}
	if snap.Track.Author != "" {
		parts = append(parts, snap.Track.Author)
	}
	if snap.State == playback.StatePaused {
		parts = append(parts, "Paused")
	}
	return strings.Join(parts, " - ")
}

func actions(snap playback.Snapshot) []Action {
	label := "Play"
	if snap.IsPlaying() {
		label = "Pause"
	}
	list := []Action{}
	if snap.PlaylistLen > 1 {
		list = append(list, Action{Key: ActionPrevious, Label: "Previous"})
	}
	list = append(list, Action{Key: ActionPlayPause, Label: label})
	if snap.PlaylistLen > 1 {
		list = append(list, Action{Key: ActionNext, Label: "Next"})
	}
	return append(list, Action{Key: ActionStop, Label: "Stop"})
}
