package mpris

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/ambientbox/internal/app/playback"
	"github.com/osa030/ambientbox/internal/domain/track"
)

type fakePlayer struct {
	mu    sync.Mutex
	snap  playback.Snapshot
	calls []string
	seek  time.Duration
}

func (p *fakePlayer) record(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
	return nil
}

func (p *fakePlayer) Start() error                          { return p.record("start") }
func (p *fakePlayer) Pause() error                          { return p.record("pause") }
func (p *fakePlayer) Stop() error                           { return p.record("stop") }
func (p *fakePlayer) TogglePlayPause(context.Context) error { return p.record("toggle") }
func (p *fakePlayer) PlayNext(context.Context) error        { return p.record("next") }
func (p *fakePlayer) PlayPrevious(context.Context) error    { return p.record("previous") }

func (p *fakePlayer) Seek(pos time.Duration) error {
	p.mu.Lock()
	p.seek = pos
	p.mu.Unlock()
	return p.record("seek")
}

func (p *fakePlayer) Snapshot() playback.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

type fakeArt struct{}

func (fakeArt) URI(trackID int, _ []byte) (string, error) {
	return "file:///cache/artwork/5.jpg", nil
}

var waves = track.Track{ID: 5, Title: "Waves", Author: "Carol"}

func playing() playback.Snapshot {
	return playback.Snapshot{
		State:       playback.StatePlaying,
		Track:       &waves,
		Artwork:     []byte("jpeg"),
		Position:    10 * time.Second,
		Duration:    3 * time.Minute,
		PlaylistLen: 4,
	}
}

func TestPlayerAdapter_Metadata(t *testing.T) {
	p := newPlayerAdapter(&fakePlayer{}, fakeArt{})
	p.set(playing())

	meta, err := p.Metadata()
	require.NoError(t, err)
	assert.Equal(t, dbus.ObjectPath("/org/mpris/MediaPlayer2/Track/5"), meta.TrackId)
	assert.Equal(t, "Waves", meta.Title)
	assert.Equal(t, []string{"Carol"}, meta.Artist)
	assert.Equal(t, types.Microseconds(180_000_000), meta.Length)
	assert.Equal(t, "file:///cache/artwork/5.jpg", meta.ArtUrl)

	status, err := p.PlaybackStatus()
	require.NoError(t, err)
	assert.Equal(t, types.PlaybackStatusPlaying, status)
}

func TestPlayerAdapter_StoppedClearsMetadata(t *testing.T) {
	p := newPlayerAdapter(&fakePlayer{}, fakeArt{})
	p.set(playing())
	p.set(playback.Snapshot{State: playback.StateStopped, PlaylistLen: 4})

	meta, err := p.Metadata()
	require.NoError(t, err)
	assert.Equal(t, types.Metadata{}, meta)

	status, _ := p.PlaybackStatus()
	assert.Equal(t, types.PlaybackStatusStopped, status)

	canSeek, _ := p.CanSeek()
	assert.False(t, canSeek)
	canPlay, _ := p.CanPlay()
	assert.True(t, canPlay)
}

func TestPlayerAdapter_Controls(t *testing.T) {
	fp := &fakePlayer{snap: playing()}
	p := newPlayerAdapter(fp, nil)

	require.NoError(t, p.Play()) // already playing
	require.NoError(t, p.Pause())
	fp.snap.State = playback.StatePaused
	require.NoError(t, p.Pause()) // already paused
	require.NoError(t, p.Play())
	fp.snap.State = playback.StateStopped
	require.NoError(t, p.Play())
	require.NoError(t, p.PlayPause())
	require.NoError(t, p.Next())
	require.NoError(t, p.Previous())
	require.NoError(t, p.Stop())

	assert.Equal(t, []string{"pause", "start", "toggle", "toggle", "next", "previous", "stop"}, fp.calls)
}

func TestPlayerAdapter_Seek(t *testing.T) {
	fp := &fakePlayer{snap: playing()}
	p := newPlayerAdapter(fp, nil)

	require.NoError(t, p.Seek(types.Microseconds(5_000_000)))
	assert.Equal(t, 15*time.Second, fp.seek)

	require.NoError(t, p.SetPosition("/org/mpris/MediaPlayer2/Track/5", types.Microseconds(60_000_000)))
	assert.Equal(t, time.Minute, fp.seek)

	// Stale track id is ignored.
	require.NoError(t, p.SetPosition("/org/mpris/MediaPlayer2/Track/9", types.Microseconds(1)))
	assert.Equal(t, time.Minute, fp.seek)

	pos, err := p.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), pos)
}

func TestRootAdapter(t *testing.T) {
	r := &rootAdapter{identity: "Ambientbox"}
	id, err := r.Identity()
	require.NoError(t, err)
	assert.Equal(t, "Ambientbox", id)

	canQuit, _ := r.CanQuit()
	assert.False(t, canQuit)
}
