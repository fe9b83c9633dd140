package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/ambientbox/internal/domain/playlist"
	"github.com/osa030/ambientbox/internal/domain/track"
	zlog "github.com/rs/zerolog/log"
)

// Errors
var (
	ErrPrepareInFlight    = errors.New("a track is already being prepared")
	ErrNotStartable       = errors.New("nothing prepared or paused")
	ErrNotPlaying         = errors.New("not playing")
	ErrNotSeekable        = errors.New("not playing or paused")
	ErrNoPlaylist         = errors.New("no playlist")
	ErrTrackNotInPlaylist = errors.New("track is not in the playlist")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrClosed             = errors.New("controller closed")
)

// DefaultPrepareTimeout bounds artwork fetch and decoder prepare.
const DefaultPrepareTimeout = 30 * time.Second

// Config holds controller configuration.
type Config struct {
	AutoStart      bool             // Start playing as soon as a track is prepared
	Completion     CompletionPolicy // What to do when a track ends
	PrepareTimeout time.Duration    // Deadline for artwork fetch and decoder prepare
}

// Controller is the playback state machine. It exclusively owns the decoder.
type Controller struct {
	mu sync.RWMutex

	decoder   Decoder
	catalog   Catalog
	publisher Publisher
	config    Config

	// Current state
	state    State
	current  *track.Track
	artwork  []byte
	playlist *playlist.Playlist
	failure  *Failure

	// Single-flight prepare
	preparing     bool
	generation    uint64
	prepareCancel context.CancelFunc

	seq uint64

	// Events
	eventCh chan Event

	// Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewController creates a new playback controller and starts consuming
// decoder events. publisher may be nil.
func NewController(decoder Decoder, catalog Catalog, publisher Publisher, config Config) *Controller {
	if config.PrepareTimeout <= 0 {
		config.PrepareTimeout = DefaultPrepareTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		decoder:   decoder,
		catalog:   catalog,
		publisher: publisher,
		config:    config,
		state:     StateIdle,
		eventCh:   make(chan Event, 32),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.wg.Add(1)
	go c.decoderLoop()
	return c
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Play loads t and plays it once prepared. The call returns as soon as the
// prepare has been started; the outcome is reported through events and
// snapshots.
//
// If pl is non-nil it replaces the current playlist and the cursor moves to t.
// Otherwise the cursor follows t when t is part of the current playlist.
// The controller takes ownership of pl.
func (c *Controller) Play(ctx context.Context, t track.Track, pl *playlist.Playlist) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if pl != nil {
		idx := pl.IndexOf(t.ID)
		if idx < 0 {
			return errors.Wrapf(ErrTrackNotInPlaylist, "track %d", t.ID)
		}
		if c.preparing {
			return c.rejectLocked(t)
		}
		pl.Seek(idx)
		c.playlist = pl
	} else if c.playlist != nil && !c.preparing {
		if idx := c.playlist.IndexOf(t.ID); idx >= 0 {
			c.playlist.Seek(idx)
		}
	}

	return c.playLocked(t)
}

// PlayNext advances the playlist cursor with wraparound and plays the track.
func (c *Controller) PlayNext(ctx context.Context) error {
	return c.step(ctx, (*playlist.Playlist).Next)
}

// PlayPrevious retreats the playlist cursor with wraparound and plays the track.
func (c *Controller) PlayPrevious(ctx context.Context) error {
	return c.step(ctx, (*playlist.Playlist).Previous)
}

func (c *Controller) step(ctx context.Context, move func(*playlist.Playlist) track.Track) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.stepLocked(move)
}

// stepLocked moves the cursor and plays the resulting track.
// Must be called with lock held.
func (c *Controller) stepLocked(move func(*playlist.Playlist) track.Track) error {
	if c.playlist == nil {
		return ErrNoPlaylist
	}
	if c.preparing {
		// Cursor stays where it is.
		return c.rejectLocked(c.playlist.Current())
	}
	return c.playLocked(move(c.playlist))
}

// Start starts or resumes playback from Prepared or Paused.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePrepared && c.state != StatePaused {
		return ErrNotStartable
	}
	return c.startLocked()
}

// Pause pauses playback.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlaying {
		return ErrNotPlaying
	}
	return c.pauseLocked()
}

// TogglePlayPause pauses when playing and starts otherwise. From Idle or
// Stopped it replays the playlist's current track.
func (c *Controller) TogglePlayPause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StatePlaying:
		return c.pauseLocked()
	case StatePrepared, StatePaused:
		return c.startLocked()
	case StatePreparing:
		return c.rejectLocked(*c.current)
	case StateIdle, StateStopped:
		if c.playlist == nil {
			return ErrNotStartable
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return c.playLocked(c.playlist.Current())
	}
	return ErrNotStartable
}

// Seek moves the playback position. The state is unchanged.
func (c *Controller) Seek(pos time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlaying && c.state != StatePaused {
		return ErrNotSeekable
	}
	if pos < 0 {
		pos = 0
	}
	if d := c.decoder.Duration(); d > 0 && pos > d {
		pos = d
	}
	if err := c.decoder.SeekTo(pos); err != nil {
		return errors.Wrapf(err, "seek to %v", pos)
	}

	zlog.Debug().Msgf("playback: seek: track=%d position=%v state=%s", c.current.ID, pos, c.state)

	c.sendEventLocked(Event{
		Type:     EventPositionChanged,
		State:    c.state,
		Track:    c.current,
		Position: pos,
	})
	c.publishLocked()
	return nil
}

// Stop stops playback and returns to Idle.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle && !c.preparing {
		return nil
	}
	c.hardResetLocked(nil)
	return nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// CurrentTrack returns the loaded track, if any.
func (c *Controller) CurrentTrack() (track.Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		return track.Track{}, false
	}
	return *c.current, true
}

// Snapshot returns the current view of the controller.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Playlist returns a copy of the current playlist, or nil.
func (c *Controller) Playlist() *playlist.Playlist {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.playlist == nil {
		return nil
	}
	pl, err := playlist.New(c.playlist.Tracks())
	if err != nil {
		return nil
	}
	pl.Seek(c.playlist.Index())
	return pl
}

// LastFailure returns the failure that last sent the controller to Idle.
// It is cleared by the next Play.
func (c *Controller) LastFailure() (Failure, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.failure == nil {
		return Failure{}, false
	}
	return *c.failure, true
}

// IsPreparing returns true while a prepare is in flight.
func (c *Controller) IsPreparing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.preparing
}

// Close releases the decoder and stops the event loop.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.state != StateIdle || c.preparing {
		c.hardResetLocked(nil)
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	if err := c.decoder.Close(); err != nil {
		zlog.Warn().Err(err).Msg("playback: failed to close decoder")
	}
	close(c.eventCh)
}

// playLocked loads t unless it is already the active track.
// Must be called with lock held.
func (c *Controller) playLocked(t track.Track) error {
	if c.current != nil && c.current.ID == t.ID &&
		(c.state == StatePlaying || c.state == StatePaused) {
		zlog.Debug().Msgf("playback: track already active: track=%d state=%s", t.ID, c.state)
		return nil
	}
	if c.preparing {
		return c.rejectLocked(t)
	}

	// Release whatever is loaded.
	if c.state != StateIdle {
		c.resetLocked()
	}

	if err := c.setStateLocked(StatePreparing); err != nil {
		return err
	}

	loaded := t
	c.current = &loaded
	c.artwork = nil
	c.failure = nil
	c.preparing = true
	c.generation++
	gen := c.generation

	ctx, cancel := context.WithTimeout(c.ctx, c.config.PrepareTimeout)
	c.prepareCancel = cancel

	zlog.Info().Msgf("playback: preparing: track=%d title=%q generation=%d", t.ID, t.Title, gen)

	c.sendEventLocked(Event{
		Type:  EventTrackChanged,
		State: c.state,
		Track: c.current,
	})

	go c.prepare(ctx, gen, loaded)
	return nil
}

// prepare fetches the artwork and loads the audio of t.
func (c *Controller) prepare(ctx context.Context, gen uint64, t track.Track) {
	artwork, err := c.catalog.Picture(ctx, t.ID)
	if err != nil {
		c.failPrepare(gen, ReasonArtworkFetch, errors.Wrapf(err, "fetch artwork of track %d", t.ID))
		return
	}

	src := c.catalog.AudioSource(t.ID)
	src.Generation = gen
	if err := c.decoder.Prepare(ctx, src); err != nil {
		c.failPrepare(gen, ReasonAudioPrepare, errors.Wrapf(err, "prepare audio of track %d", t.ID))
		return
	}

	c.finishPrepare(gen, artwork)
}

func (c *Controller) finishPrepare(gen uint64, artwork []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCurrentPrepareLocked(gen) {
		zlog.Debug().Msgf("playback: discarding stale prepare: generation=%d current=%d", gen, c.generation)
		return
	}

	c.releaseGuardLocked()
	c.artwork = artwork
	if err := c.setStateLocked(StatePrepared); err != nil {
		zlog.Error().Err(err).Msg("playback: prepared in unexpected state")
		return
	}

	zlog.Info().Msgf("playback: prepared: track=%d duration=%v", c.current.ID, c.decoder.Duration())

	if c.config.AutoStart {
		_ = c.startLocked()
	}
}

func (c *Controller) failPrepare(gen uint64, reason Reason, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCurrentPrepareLocked(gen) {
		zlog.Debug().Err(err).Msgf("playback: ignoring stale prepare failure: generation=%d", gen)
		return
	}

	zlog.Warn().Err(err).Msgf("playback: prepare failed: reason=%s", reason)
	c.hardResetLocked(c.newFailureLocked(reason, err))
}

func (c *Controller) isCurrentPrepareLocked(gen uint64) bool {
	return c.preparing && gen == c.generation && c.state == StatePreparing
}

// startLocked starts the decoder and enters Playing.
// Must be called with lock held.
func (c *Controller) startLocked() error {
	if err := c.decoder.Start(); err != nil {
		err = errors.Wrap(err, "start decoder")
		c.hardResetLocked(c.newFailureLocked(ReasonDecoderRuntime, err))
		return err
	}
	if err := c.setStateLocked(StatePlaying); err != nil {
		return err
	}
	c.publishLocked()
	return nil
}

// pauseLocked pauses the decoder and enters Paused.
// Must be called with lock held.
func (c *Controller) pauseLocked() error {
	if err := c.decoder.Pause(); err != nil {
		err = errors.Wrap(err, "pause decoder")
		c.hardResetLocked(c.newFailureLocked(ReasonDecoderRuntime, err))
		return err
	}
	if err := c.setStateLocked(StatePaused); err != nil {
		return err
	}
	c.publishLocked()
	return nil
}

// rejectLocked reports a play request refused by the single-flight guard.
func (c *Controller) rejectLocked(t track.Track) error {
	zlog.Debug().Msgf("playback: play rejected while preparing: track=%d", t.ID)
	rejected := t
	c.sendEventLocked(Event{
		Type:  EventPlayRejected,
		State: c.state,
		Track: &rejected,
	})
	return ErrPrepareInFlight
}

// resetLocked releases the decoder and any in-flight prepare and enters Idle.
// Must be called with lock held.
func (c *Controller) resetLocked() {
	c.releaseGuardLocked()
	// Late decoder events and prepare results of the old load become stale.
	c.generation++
	c.decoder.Reset()
	c.current = nil
	c.artwork = nil
	if c.state != StateIdle {
		if err := c.setStateLocked(StateIdle); err != nil {
			zlog.Error().Err(err).Msg("playback: reset failed")
		}
	}
}

// hardResetLocked resets to Idle and tells the sinks.
// Must be called with lock held.
func (c *Controller) hardResetLocked(f *Failure) {
	c.resetLocked()
	c.failure = f
	if f != nil {
		c.sendEventLocked(Event{
			Type:    EventError,
			State:   c.state,
			Failure: f,
		})
	}
	c.publishLocked()
}

func (c *Controller) releaseGuardLocked() {
	if c.prepareCancel != nil {
		c.prepareCancel()
		c.prepareCancel = nil
	}
	c.preparing = false
}

func (c *Controller) newFailureLocked(reason Reason, err error) *Failure {
	f := &Failure{
		Reason: reason,
		Err:    err.Error(),
		At:     time.Now(),
	}
	if c.current != nil {
		f.TrackID = c.current.ID
	}
	return f
}

// setStateLocked moves to the given state if the transition is allowed.
// Must be called with lock held.
func (c *Controller) setStateLocked(to State) error {
	from := c.state
	if !CanTransition(from, to) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}
	c.state = to

	zlog.Debug().Msgf("playback: state changed: %s -> %s", from, to)

	c.sendEventLocked(Event{
		Type:     EventStateChanged,
		State:    to,
		Previous: from,
		Track:    c.current,
	})
	return nil
}

// decoderLoop consumes completion and failure reports from the decoder.
func (c *Controller) decoderLoop() {
	defer c.wg.Done()

	events := c.decoder.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleDecoderEvent(ev)
		}
	}
}

func (c *Controller) handleDecoderEvent(ev DecoderEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Generation != c.generation {
		zlog.Debug().Msgf("playback: ignoring stale decoder event: generation=%d current=%d", ev.Generation, c.generation)
		return
	}

	switch ev.Kind {
	case DecoderCompleted:
		if c.state != StatePlaying || c.current == nil {
			zlog.Debug().Msgf("playback: completion ignored in state %s", c.state)
			return
		}
		c.onTrackEndLocked()
	case DecoderFailed:
		// Stopped has no current track but still resets to Idle.
		if c.state == StateIdle {
			zlog.Debug().Msg("playback: decoder error ignored in idle")
			return
		}
		err := ev.Err
		if err == nil {
			err = errors.New("decoder failed")
		}
		zlog.Warn().Err(err).Msgf("playback: decoder error: state=%s", c.state)
		c.hardResetLocked(c.newFailureLocked(ReasonDecoderRuntime, err))
	}
}

// onTrackEndLocked handles natural completion of the current track.
// Must be called with lock held.
func (c *Controller) onTrackEndLocked() {
	zlog.Info().Msgf("playback: track ended: track=%d completion=%s", c.current.ID, c.config.Completion)

	c.decoder.Reset()
	if err := c.setStateLocked(StateStopped); err != nil {
		zlog.Error().Err(err).Msg("playback: completion failed")
		return
	}
	c.current = nil
	c.artwork = nil
	c.publishLocked()

	if c.config.Completion == CompletionAdvance && c.playlist != nil {
		if err := c.stepLocked((*playlist.Playlist).Next); err != nil {
			zlog.Warn().Err(err).Msg("playback: failed to advance")
		}
	}
}

// snapshotLocked builds a snapshot of the current state.
// Must be called with lock held (read or write).
func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Seq:     c.seq,
		State:   c.state,
		Artwork: c.artwork,
		Index:   -1,
		Failure: c.failure,
	}
	if c.current != nil {
		t := *c.current
		s.Track = &t
	}
	if c.state == StatePrepared || c.state == StatePlaying || c.state == StatePaused {
		s.Position = c.decoder.Position()
		s.Duration = c.decoder.Duration()
	}
	if c.playlist != nil {
		s.Index = c.playlist.Index()
		s.PlaylistLen = c.playlist.Len()
	}
	return s
}

// publishLocked hands a fresh snapshot to the publisher.
// Must be called with lock held.
func (c *Controller) publishLocked() {
	c.seq++
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(c.snapshotLocked())
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
		zlog.Debug().Msgf("playback: event dropped: type=%s", e.Type)
	}
}
