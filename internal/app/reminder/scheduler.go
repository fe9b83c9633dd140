// Package reminder provides the scheduler that turns catalog reminders into
// daily notifications.
package reminder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ambientbox/internal/domain/playlist"
	domain "github.com/osa030/ambientbox/internal/domain/reminder"
	"github.com/osa030/ambientbox/internal/domain/track"
	"github.com/osa030/ambientbox/internal/infra/catalog"
	"github.com/osa030/ambientbox/internal/infra/clock"
	"github.com/osa030/ambientbox/internal/infra/notify"
)

// ActionPlay is the reminder notification action that plays the track.
const ActionPlay = "play"

// DefaultMessage is the reminder notification body.
const DefaultMessage = "Time to listen to %s!"

// Catalog is the part of the catalog client the scheduler reads.
type Catalog interface {
	ListReminders(ctx context.Context, trackID *int) ([]domain.Reminder, error)
	ListMusic(ctx context.Context, order catalog.SortOrder, filter string) ([]track.Track, error)
}

// Player starts playback of a reminded track.
type Player interface {
	Play(ctx context.Context, t track.Track, pl *playlist.Playlist) error
}

// Poster shows notifications.
type Poster interface {
	Post(n notify.Notification, handler notify.ActionHandler) (uint32, error)
}

// Config holds scheduler settings.
type Config struct {
	Message        string        // Body format with one %s for the title
	Autoplay       bool          // Play the track when the reminder fires
	ResyncInterval time.Duration // Zero disables periodic resync
	Resolution     time.Duration // Wall-clock polling interval
}

// Fired reports a reminder that went off.
type Fired struct {
	Reminder domain.Reminder
	Track    track.Track
	At       time.Time
}

// Alarm is a scheduled reminder occurrence.
type Alarm struct {
	ReminderID int
	TrackID    int
	At         time.Time
}

// Scheduler arms one wall-clock alarm per enabled reminder.
type Scheduler struct {
	catalog Catalog
	player  Player
	poster  Poster
	config  Config
	now     func() time.Time
	at      func(deadline time.Time, resolution time.Duration, fn func()) func()

	mu     sync.Mutex
	gen    uint64
	tracks []track.Track
	alarms map[int]*alarm

	events chan Fired
	resync chan struct{}
}

// alarm is an armed reminder.
type alarm struct {
	reminder domain.Reminder
	at       time.Time
	cancel   func()
}

// NewScheduler creates a reminder scheduler. poster may be nil, in which case
// reminders only emit events and autoplay.
func NewScheduler(c Catalog, player Player, poster Poster, config Config) *Scheduler {
	if config.Message == "" {
		config.Message = DefaultMessage
	}
	if config.Resolution <= 0 {
		config.Resolution = time.Second
	}
	return &Scheduler{
		catalog: c,
		player:  player,
		poster:  poster,
		config:  config,
		now:     clock.Now,
		at:      clock.At,
		alarms:  make(map[int]*alarm),
		events:  make(chan Fired, 16),
		resync:  make(chan struct{}, 1),
	}
}

// Events returns fired reminders. Events are dropped when nobody reads.
func (s *Scheduler) Events() <-chan Fired {
	return s.events
}

// Run syncs once, then resyncs periodically and on request until ctx is done.
// All alarms are cancelled on return.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.cancelAll()

	if err := s.Sync(ctx); err != nil {
		zlog.Warn().Err(err).Msg("reminder: initial sync failed")
	}

	var tick <-chan time.Time
	if s.config.ResyncInterval > 0 {
		ticker := time.NewTicker(s.config.ResyncInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-s.resync:
		}
		if err := s.Sync(ctx); err != nil {
			zlog.Warn().Err(err).Msg("reminder: resync failed")
		}
	}
}

// RequestSync asks Run to resync soon without blocking.
func (s *Scheduler) RequestSync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// Sync fetches reminders and the catalog, then re-arms every enabled reminder.
// On error the existing alarms are kept.
func (s *Scheduler) Sync(ctx context.Context) error {
	reminders, err := s.catalog.ListReminders(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to fetch reminders")
	}
	tracks, err := s.catalog.ListMusic(ctx, catalog.SortAscending, "")
	if err != nil {
		return errors.Wrap(err, "failed to fetch music list")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelAllLocked()
	s.gen++
	s.tracks = tracks

	armed := 0
	for _, r := range reminders {
		if !r.Enabled {
			continue
		}
		if err := r.Validate(); err != nil {
			zlog.Warn().Err(err).Msgf("reminder: skipping invalid reminder: id=%d", r.ID)
			continue
		}
		if _, ok := track.FindByID(tracks, r.TrackID); !ok {
			zlog.Warn().Msgf("reminder: skipping reminder for unknown track: id=%d track_id=%d", r.ID, r.TrackID)
			continue
		}
		s.armLocked(r)
		armed++
	}

	zlog.Info().Msgf("reminder: synced: total=%d armed=%d", len(reminders), armed)
	return nil
}

// Alarms returns the armed alarms ordered by fire time.
func (s *Scheduler) Alarms() []Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Alarm, 0, len(s.alarms))
	for _, a := range s.alarms {
		out = append(out, Alarm{ReminderID: a.reminder.ID, TrackID: a.reminder.TrackID, At: a.at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].ReminderID < out[j].ReminderID
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

// Close cancels all alarms.
func (s *Scheduler) Close() {
	s.cancelAll()
}

func (s *Scheduler) armLocked(r domain.Reminder) {
	gen := s.gen
	at := r.NextFire(s.now())
	a := &alarm{reminder: r, at: at}
	a.cancel = s.at(at, s.config.Resolution, func() {
		s.fire(gen, r)
	})
	s.alarms[r.ID] = a
	zlog.Debug().Msgf("reminder: armed: id=%d track_id=%d at=%s", r.ID, r.TrackID, at.Format(time.RFC3339))
}

func (s *Scheduler) fire(gen uint64, r domain.Reminder) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	t, ok := track.FindByID(s.tracks, r.TrackID)
	tracks := s.tracks
	// Re-arm for the next day before doing anything slow.
	s.armLocked(r)
	s.mu.Unlock()

	if !ok {
		return
	}

	zlog.Info().Msgf("reminder: fired: id=%d track_id=%d title=%s", r.ID, t.ID, t.Title)

	if s.poster != nil {
		n := notify.Notification{
			Title:    "Reminder",
			Body:     fmt.Sprintf(s.config.Message, t.Title),
			Timeout:  -1,
			Urgency:  notify.UrgencyNormal,
			Actions:  []notify.Action{{Key: ActionPlay, Label: "Play"}},
			Category: "x-ambientbox.reminder",
		}
		handler := func(ctx context.Context, key string) {
			if key == ActionPlay || key == "default" {
				s.play(ctx, t, tracks)
			}
		}
		if _, err := s.poster.Post(n, handler); err != nil {
			zlog.Warn().Err(err).Msgf("reminder: failed to post notification: id=%d", r.ID)
		}
	}

	select {
	case s.events <- Fired{Reminder: r, Track: t, At: s.now()}:
	default:
	}

	if s.config.Autoplay {
		s.play(context.Background(), t, tracks)
	}
}

// play plays t with the whole catalog as the playlist.
func (s *Scheduler) play(ctx context.Context, t track.Track, tracks []track.Track) {
	pl, err := playlist.New(tracks)
	if err != nil {
		zlog.Warn().Err(err).Msg("reminder: failed to build playlist")
		return
	}
	if err := s.player.Play(ctx, t, pl); err != nil {
		zlog.Warn().Err(err).Msgf("reminder: failed to play track: id=%d", t.ID)
	}
}

func (s *Scheduler) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAllLocked()
	s.gen++
}

func (s *Scheduler) cancelAllLocked() {
	for id, a := range s.alarms {
		a.cancel()
		delete(s.alarms, id)
	}
}
