package playback

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/ambientbox/internal/domain/playlist"
	"github.com/osa030/ambientbox/internal/domain/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var (
	trackA = track.Track{ID: 1, Title: "Rain", Author: "Alice", Date: "2023-01-01"}
	trackB = track.Track{ID: 2, Title: "Forest", Author: "Bob", Date: "2023-02-01"}
	trackC = track.Track{ID: 3, Title: "Waves", Author: "Carol", Date: "2023-03-01"}
)

// fakeDecoder records calls and lets tests hold Prepare and inject events.
type fakeDecoder struct {
	mu         sync.Mutex
	gate       chan struct{}
	prepareErr error
	startErr   error
	loaded     *Source
	active     int
	maxActive  int
	prepares   int
	resets     int
	playing    bool
	position   time.Duration
	duration   time.Duration
	events     chan DecoderEvent
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{events: make(chan DecoderEvent, 8)}
}

func (d *fakeDecoder) Prepare(ctx context.Context, src Source) error {
	d.mu.Lock()
	d.active++
	d.prepares++
	if d.active > d.maxActive {
		d.maxActive = d.active
	}
	gate := d.gate
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.active--
		d.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.prepareErr != nil {
		return d.prepareErr
	}
	s := src
	d.loaded = &s
	d.position = 0
	d.duration = time.Minute
	return nil
}

func (d *fakeDecoder) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.playing = true
	return nil
}

func (d *fakeDecoder) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
	return nil
}

func (d *fakeDecoder) SeekTo(pos time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = pos
	return nil
}

func (d *fakeDecoder) Position() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

func (d *fakeDecoder) Duration() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duration
}

func (d *fakeDecoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
	d.loaded = nil
	d.playing = false
	d.position = 0
	d.duration = 0
}

func (d *fakeDecoder) Events() <-chan DecoderEvent { return d.events }

func (d *fakeDecoder) Close() error { return nil }

func (d *fakeDecoder) generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded == nil {
		return 0
	}
	return d.loaded.Generation
}

func (d *fakeDecoder) setGate(gate chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = gate
}

func (d *fakeDecoder) stats() (active, maxActive, prepares int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active, d.maxActive, d.prepares
}

func (d *fakeDecoder) emit(kind DecoderEventKind, gen uint64, err error) {
	d.events <- DecoderEvent{Kind: kind, Generation: gen, Err: err}
}

type fakeCatalog struct {
	mu         sync.Mutex
	pictureErr error
}

func (f *fakeCatalog) Picture(ctx context.Context, trackID int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pictureErr != nil {
		return nil, f.pictureErr
	}
	return []byte(fmt.Sprintf("jpeg-%d", trackID)), nil
}

func (f *fakeCatalog) AudioSource(trackID int) Source {
	return Source{URL: fmt.Sprintf("http://catalog.test/music/audio?music_id=%d", trackID)}
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (p *recordingPublisher) Publish(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, s)
}

func (p *recordingPublisher) all() []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Snapshot(nil), p.snaps...)
}

func (p *recordingPublisher) last() (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.snaps) == 0 {
		return Snapshot{}, false
	}
	return p.snaps[len(p.snaps)-1], true
}

func newTestController(t *testing.T, config Config) (*Controller, *fakeDecoder, *fakeCatalog, *recordingPublisher) {
	t.Helper()
	dec := newFakeDecoder()
	cat := &fakeCatalog{}
	pub := &recordingPublisher{}
	c := NewController(dec, cat, pub, config)
	t.Cleanup(c.Close)
	return c, dec, cat, pub
}

func autoStart() Config {
	return Config{AutoStart: true, Completion: CompletionStop, PrepareTimeout: time.Second}
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, waitFor, tick,
		"state did not become %s", want)
}

func waitEvent(t *testing.T, c *Controller, want EventType) Event {
	t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case e := <-c.Events():
			if e.Type == want {
				return e
			}
		case <-timeout:
			t.Fatalf("event %s not received", want)
			return Event{}
		}
	}
}

func mustPlaylist(t *testing.T, tracks ...track.Track) *playlist.Playlist {
	t.Helper()
	pl, err := playlist.New(tracks)
	require.NoError(t, err)
	return pl
}

func TestController_PlaySuccess(t *testing.T) {
	c, _, _, pub := newTestController(t, autoStart())

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	waitState(t, c, StatePlaying)

	got, ok := c.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, trackA, got)

	snap, ok := pub.last()
	require.True(t, ok)
	assert.Equal(t, StatePlaying, snap.State)
	require.NotNil(t, snap.Track)
	assert.Equal(t, trackA.ID, snap.Track.ID)
	assert.Equal(t, []byte("jpeg-1"), snap.Artwork)
	assert.Equal(t, time.Minute, snap.Duration)
	assert.Equal(t, -1, snap.Index)

	_, failed := c.LastFailure()
	assert.False(t, failed)
}

func TestController_PlayWithoutAutoStart(t *testing.T) {
	c, _, _, _ := newTestController(t, Config{PrepareTimeout: time.Second})

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	waitState(t, c, StatePrepared)
	assert.False(t, c.IsPreparing())

	require.NoError(t, c.Start())
	assert.Equal(t, StatePlaying, c.State())
}

func TestController_SingleFlight(t *testing.T) {
	c, dec, _, _ := newTestController(t, autoStart())
	gate := make(chan struct{})
	dec.setGate(gate)

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	assert.Equal(t, StatePreparing, c.State())
	assert.True(t, c.IsPreparing())

	for i := 0; i < 5; i++ {
		err := c.Play(context.Background(), trackB, nil)
		assert.ErrorIs(t, err, ErrPrepareInFlight)
	}
	e := waitEvent(t, c, EventPlayRejected)
	require.NotNil(t, e.Track)
	assert.Equal(t, trackB.ID, e.Track.ID)

	close(gate)
	waitState(t, c, StatePlaying)

	got, _ := c.CurrentTrack()
	assert.Equal(t, trackA, got)

	_, maxActive, prepares := dec.stats()
	assert.Equal(t, 1, maxActive)
	assert.Equal(t, 1, prepares)
}

func TestController_PauseAndStartAreNoOpsInWrongState(t *testing.T) {
	c, _, _, pub := newTestController(t, Config{PrepareTimeout: time.Second})

	assert.ErrorIs(t, c.Pause(), ErrNotPlaying)
	assert.ErrorIs(t, c.Start(), ErrNotStartable)
	assert.Equal(t, StateIdle, c.State())

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	waitState(t, c, StatePrepared)

	assert.ErrorIs(t, c.Pause(), ErrNotPlaying)
	assert.Equal(t, StatePrepared, c.State())

	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.Start(), ErrNotStartable)
	assert.Equal(t, StatePlaying, c.State())

	require.NoError(t, c.Pause())
	assert.ErrorIs(t, c.Pause(), ErrNotPlaying)
	assert.Equal(t, StatePaused, c.State())

	require.NoError(t, c.Start())
	assert.Equal(t, StatePlaying, c.State())

	states := []State{}
	for _, s := range pub.all() {
		states = append(states, s.State)
	}
	assert.Equal(t, []State{StatePlaying, StatePaused, StatePlaying}, states)
}

func TestController_SeekWhilePaused(t *testing.T) {
	c, dec, _, pub := newTestController(t, autoStart())

	assert.ErrorIs(t, c.Seek(5*time.Second), ErrNotSeekable)

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	waitState(t, c, StatePlaying)
	require.NoError(t, c.Pause())

	require.NoError(t, c.Seek(5000*time.Millisecond))
	assert.Equal(t, StatePaused, c.State())
	assert.Equal(t, 5*time.Second, dec.Position())

	snap, _ := pub.last()
	assert.Equal(t, StatePaused, snap.State)
	assert.Equal(t, 5*time.Second, snap.Position)

	e := waitEvent(t, c, EventPositionChanged)
	assert.Equal(t, 5*time.Second, e.Position)
}

func TestController_SeekClampsToDuration(t *testing.T) {
	c, dec, _, _ := newTestController(t, autoStart())

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	waitState(t, c, StatePlaying)

	require.NoError(t, c.Seek(-time.Second))
	assert.Equal(t, time.Duration(0), dec.Position())

	require.NoError(t, c.Seek(time.Hour))
	assert.Equal(t, time.Minute, dec.Position())
}

func TestController_DecoderErrorResetsToIdle(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		reach   func(t *testing.T, c *Controller, dec *fakeDecoder) uint64
		trackID int
	}{
		{
			name:   "while playing",
			config: autoStart(),
			reach: func(t *testing.T, c *Controller, dec *fakeDecoder) uint64 {
				waitState(t, c, StatePlaying)
				return dec.generation()
			},
			trackID: trackA.ID,
		},
		{
			name:   "while paused",
			config: autoStart(),
			reach: func(t *testing.T, c *Controller, dec *fakeDecoder) uint64 {
				waitState(t, c, StatePlaying)
				require.NoError(t, c.Pause())
				return dec.generation()
			},
			trackID: trackA.ID,
		},
		{
			name:   "while prepared",
			config: Config{Completion: CompletionStop, PrepareTimeout: time.Second},
			reach: func(t *testing.T, c *Controller, dec *fakeDecoder) uint64 {
				waitState(t, c, StatePrepared)
				return dec.generation()
			},
			trackID: trackA.ID,
		},
		{
			name:   "while stopped",
			config: autoStart(),
			reach: func(t *testing.T, c *Controller, dec *fakeDecoder) uint64 {
				waitState(t, c, StatePlaying)
				// Completion releases the fake's load, so keep its generation.
				gen := dec.generation()
				dec.emit(DecoderCompleted, gen, nil)
				waitState(t, c, StateStopped)
				return gen
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, dec, _, pub := newTestController(t, tt.config)

			require.NoError(t, c.Play(context.Background(), trackA, nil))
			gen := tt.reach(t, c, dec)

			dec.emit(DecoderFailed, gen, errors.New("device lost"))
			waitState(t, c, StateIdle)

			_, ok := c.CurrentTrack()
			assert.False(t, ok)
			assert.False(t, c.IsPreparing())

			f, ok := c.LastFailure()
			require.True(t, ok)
			assert.Equal(t, ReasonDecoderRuntime, f.Reason)
			assert.Equal(t, tt.trackID, f.TrackID)
			assert.Contains(t, f.Err, "device lost")

			require.Eventually(t, func() bool {
				snap, _ := pub.last()
				return snap.State == StateIdle
			}, waitFor, tick)
			snap, _ := pub.last()
			assert.Nil(t, snap.Track)
			assert.Nil(t, snap.Artwork)

			// A fresh play works after the reset.
			require.NoError(t, c.Play(context.Background(), trackB, nil))
			if tt.config.AutoStart {
				waitState(t, c, StatePlaying)
			} else {
				waitState(t, c, StatePrepared)
			}
		})
	}
}

func TestController_PrepareFailure(t *testing.T) {
	t.Run("artwork", func(t *testing.T) {
		c, _, cat, _ := newTestController(t, autoStart())
		cat.pictureErr = errors.New("503 Service Unavailable")

		require.NoError(t, c.Play(context.Background(), trackA, nil))
		e := waitEvent(t, c, EventError)
		require.NotNil(t, e.Failure)
		assert.Equal(t, ReasonArtworkFetch, e.Failure.Reason)

		waitState(t, c, StateIdle)
		_, ok := c.CurrentTrack()
		assert.False(t, ok)
		assert.False(t, c.IsPreparing())
	})

	t.Run("audio", func(t *testing.T) {
		c, dec, _, _ := newTestController(t, autoStart())
		dec.prepareErr = errors.New("unsupported format")

		require.NoError(t, c.Play(context.Background(), trackA, nil))
		e := waitEvent(t, c, EventError)
		require.NotNil(t, e.Failure)
		assert.Equal(t, ReasonAudioPrepare, e.Failure.Reason)

		waitState(t, c, StateIdle)
		_, _, prepares := dec.stats()
		assert.Equal(t, 1, prepares, "failures are not retried")
	})
}

func TestController_PlaylistNavigation(t *testing.T) {
	c, _, _, _ := newTestController(t, autoStart())
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, trackA, mustPlaylist(t, trackA, trackB, trackC)))
	waitState(t, c, StatePlaying)

	expect := []track.Track{trackB, trackC, trackA}
	for _, want := range expect {
		require.NoError(t, c.PlayNext(ctx))
		require.Eventually(t, func() bool {
			got, ok := c.CurrentTrack()
			return ok && got.ID == want.ID && c.State() == StatePlaying
		}, waitFor, tick)
	}

	require.NoError(t, c.PlayPrevious(ctx))
	require.Eventually(t, func() bool {
		got, ok := c.CurrentTrack()
		return ok && got.ID == trackC.ID && c.State() == StatePlaying
	}, waitFor, tick)

	pl := c.Playlist()
	require.NotNil(t, pl)
	assert.Equal(t, 2, pl.Index())
	assert.Equal(t, 3, c.Snapshot().PlaylistLen)
}

func TestController_PlayNextRejectedWhilePreparing(t *testing.T) {
	c, dec, _, _ := newTestController(t, autoStart())
	ctx := context.Background()
	gate := make(chan struct{})
	dec.setGate(gate)

	require.NoError(t, c.Play(ctx, trackA, mustPlaylist(t, trackA, trackB, trackC)))
	assert.ErrorIs(t, c.PlayNext(ctx), ErrPrepareInFlight)
	assert.ErrorIs(t, c.PlayPrevious(ctx), ErrPrepareInFlight)
	assert.Equal(t, 0, c.Playlist().Index())

	close(gate)
	waitState(t, c, StatePlaying)
}

func TestController_PlayNextWithoutPlaylist(t *testing.T) {
	c, _, _, _ := newTestController(t, autoStart())
	assert.ErrorIs(t, c.PlayNext(context.Background()), ErrNoPlaylist)
	assert.ErrorIs(t, c.PlayPrevious(context.Background()), ErrNoPlaylist)
}

func TestController_PlayTrackNotInPlaylist(t *testing.T) {
	c, _, _, _ := newTestController(t, autoStart())

	err := c.Play(context.Background(), trackC, mustPlaylist(t, trackA, trackB))
	assert.ErrorIs(t, err, ErrTrackNotInPlaylist)
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.Playlist())
}

func TestController_PlayActiveTrackIsNoOp(t *testing.T) {
	c, dec, _, _ := newTestController(t, autoStart())

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	waitState(t, c, StatePlaying)
	require.NoError(t, c.Pause())

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	assert.Equal(t, StatePaused, c.State())
	_, _, prepares := dec.stats()
	assert.Equal(t, 1, prepares)
}

func TestController_PlayPreparedTrackReloads(t *testing.T) {
	c, dec, _, _ := newTestController(t, Config{Completion: CompletionStop, PrepareTimeout: time.Second})

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	waitState(t, c, StatePrepared)

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	require.Eventually(t, func() bool {
		_, _, prepares := dec.stats()
		return prepares == 2 && c.State() == StatePrepared
	}, waitFor, tick)
}

func TestController_SingleTrackPlaylistNext(t *testing.T) {
	c, dec, _, _ := newTestController(t, autoStart())

	require.NoError(t, c.Play(context.Background(), trackA, mustPlaylist(t, trackA)))
	waitState(t, c, StatePlaying)

	require.NoError(t, c.PlayNext(context.Background()))
	assert.Equal(t, StatePlaying, c.State())
	_, _, prepares := dec.stats()
	assert.Equal(t, 1, prepares)
}

func TestController_CompletionStop(t *testing.T) {
	c, dec, _, pub := newTestController(t, autoStart())

	require.NoError(t, c.Play(context.Background(), trackA, mustPlaylist(t, trackA, trackB)))
	waitState(t, c, StatePlaying)

	dec.emit(DecoderCompleted, dec.generation(), nil)
	waitState(t, c, StateStopped)

	_, ok := c.CurrentTrack()
	assert.False(t, ok)

	snap, _ := pub.last()
	assert.Equal(t, StateStopped, snap.State)
	assert.Nil(t, snap.Track)
	assert.Nil(t, snap.Artwork)

	// Playing again from Stopped passes through Idle.
	require.NoError(t, c.Play(context.Background(), trackB, nil))
	waitState(t, c, StatePlaying)
	assert.Equal(t, 1, c.Playlist().Index())
}

func TestController_CompletionAdvance(t *testing.T) {
	cfg := autoStart()
	cfg.Completion = CompletionAdvance
	c, dec, _, _ := newTestController(t, cfg)

	require.NoError(t, c.Play(context.Background(), trackB, mustPlaylist(t, trackA, trackB)))
	waitState(t, c, StatePlaying)

	dec.emit(DecoderCompleted, dec.generation(), nil)
	require.Eventually(t, func() bool {
		got, ok := c.CurrentTrack()
		return ok && got.ID == trackA.ID && c.State() == StatePlaying
	}, waitFor, tick)
}

func TestController_StaleDecoderEventsIgnored(t *testing.T) {
	c, dec, _, _ := newTestController(t, autoStart())

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	waitState(t, c, StatePlaying)
	stale := dec.generation()

	require.NoError(t, c.Play(context.Background(), trackB, nil))
	require.Eventually(t, func() bool {
		got, ok := c.CurrentTrack()
		return ok && got.ID == trackB.ID && c.State() == StatePlaying
	}, waitFor, tick)
	require.NotEqual(t, stale, dec.generation())

	dec.emit(DecoderCompleted, stale, nil)
	dec.emit(DecoderFailed, stale, errors.New("late failure"))
	assert.Never(t, func() bool { return c.State() != StatePlaying }, 100*time.Millisecond, tick)
}

func TestController_StopCancelsPrepare(t *testing.T) {
	c, dec, _, pub := newTestController(t, autoStart())
	dec.setGate(make(chan struct{}))

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	require.Eventually(t, func() bool {
		active, _, _ := dec.stats()
		return active == 1
	}, waitFor, tick)

	require.NoError(t, c.Stop())
	assert.Equal(t, StateIdle, c.State())
	assert.False(t, c.IsPreparing())

	require.Eventually(t, func() bool {
		active, _, _ := dec.stats()
		return active == 0
	}, waitFor, tick)

	_, failed := c.LastFailure()
	assert.False(t, failed, "cancelled prepare is not a failure")

	snap, _ := pub.last()
	assert.Equal(t, StateIdle, snap.State)

	dec.setGate(nil)
	require.NoError(t, c.Play(context.Background(), trackB, nil))
	waitState(t, c, StatePlaying)
	got, _ := c.CurrentTrack()
	assert.Equal(t, trackB, got)
}

func TestController_TogglePlayPause(t *testing.T) {
	c, _, _, _ := newTestController(t, autoStart())
	ctx := context.Background()

	assert.ErrorIs(t, c.TogglePlayPause(ctx), ErrNotStartable)

	require.NoError(t, c.Play(ctx, trackA, mustPlaylist(t, trackA, trackB)))
	waitState(t, c, StatePlaying)

	require.NoError(t, c.TogglePlayPause(ctx))
	assert.Equal(t, StatePaused, c.State())
	require.NoError(t, c.TogglePlayPause(ctx))
	assert.Equal(t, StatePlaying, c.State())

	require.NoError(t, c.Stop())
	require.NoError(t, c.TogglePlayPause(ctx))
	waitState(t, c, StatePlaying)
	got, _ := c.CurrentTrack()
	assert.Equal(t, trackA, got)
}

func TestController_StartFailureResets(t *testing.T) {
	c, dec, _, _ := newTestController(t, autoStart())
	dec.startErr = errors.New("no output device")

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	e := waitEvent(t, c, EventError)
	assert.Equal(t, ReasonDecoderRuntime, e.Failure.Reason)
	waitState(t, c, StateIdle)
}

func TestController_SnapshotSequence(t *testing.T) {
	c, _, _, pub := newTestController(t, autoStart())

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	waitState(t, c, StatePlaying)
	require.NoError(t, c.Pause())
	require.NoError(t, c.Seek(time.Second))
	require.NoError(t, c.Stop())

	snaps := pub.all()
	require.Len(t, snaps, 4)
	for i := 1; i < len(snaps); i++ {
		assert.Greater(t, snaps[i].Seq, snaps[i-1].Seq)
	}
	assert.Equal(t, snaps[len(snaps)-1].Seq, c.Snapshot().Seq)
}

func TestController_Closed(t *testing.T) {
	dec := newFakeDecoder()
	c := NewController(dec, &fakeCatalog{}, nil, autoStart())

	require.NoError(t, c.Play(context.Background(), trackA, nil))
	waitState(t, c, StatePlaying)

	c.Close()
	assert.Equal(t, StateIdle, c.State())
	assert.ErrorIs(t, c.Play(context.Background(), trackB, nil), ErrClosed)

	_, open := <-c.Events()
	for open {
		_, open = <-c.Events()
	}
	c.Close()
}
