// Package mpris exposes playback as an MPRIS media session on D-Bus.
package mpris

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/types"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ambientbox/internal/app/playback"
)

// Player is the part of the playback controller the media session drives.
type Player interface {
	Start() error
	Pause() error
	Stop() error
	TogglePlayPause(ctx context.Context) error
	PlayNext(ctx context.Context) error
	PlayPrevious(ctx context.Context) error
	Seek(pos time.Duration) error
	Snapshot() playback.Snapshot
}

// ArtStore resolves artwork URIs for the session metadata.
type ArtStore interface {
	URI(trackID int, data []byte) (string, error)
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct {
	identity string
}

func (r *rootAdapter) Raise() error {
	return nil // Not supported
}

func (r *rootAdapter) Quit() error {
	return nil // Not supported - the daemon manages its own lifecycle
}

func (r *rootAdapter) CanQuit() (bool, error) {
	return false, nil
}

func (r *rootAdapter) CanRaise() (bool, error) {
	return false, nil
}

func (r *rootAdapter) HasTrackList() (bool, error) {
	return false, nil
}

func (r *rootAdapter) Identity() (string, error) {
	return r.identity, nil
}

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter.
type playerAdapter struct {
	player Player
	art    ArtStore

	mu     sync.RWMutex
	snap   playback.Snapshot
	artURL string
}

func newPlayerAdapter(player Player, art ArtStore) *playerAdapter {
	return &playerAdapter{player: player, art: art}
}

// set records the snapshot that property reads are answered from.
func (p *playerAdapter) set(snap playback.Snapshot) {
	artURL := ""
	if snap.Track != nil && len(snap.Artwork) > 0 && p.art != nil {
		uri, err := p.art.URI(snap.Track.ID, snap.Artwork)
		if err != nil {
			zlog.Debug().Err(err).Msgf("mpris: no artwork for track %d", snap.Track.ID)
		} else {
			artURL = uri
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = snap
	p.artURL = artURL
}

func (p *playerAdapter) current() playback.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *playerAdapter) Next() error {
	return p.player.PlayNext(context.Background())
}

func (p *playerAdapter) Previous() error {
	return p.player.PlayPrevious(context.Background())
}

func (p *playerAdapter) Pause() error {
	if p.player.Snapshot().State != playback.StatePlaying {
		return nil
	}
	return p.player.Pause()
}

func (p *playerAdapter) PlayPause() error {
	return p.player.TogglePlayPause(context.Background())
}

func (p *playerAdapter) Stop() error {
	return p.player.Stop()
}

func (p *playerAdapter) Play() error {
	switch p.player.Snapshot().State {
	case playback.StatePlaying:
		return nil
	case playback.StatePrepared, playback.StatePaused:
		return p.player.Start()
	}
	return p.player.TogglePlayPause(context.Background())
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	pos := p.player.Snapshot().Position + time.Duration(offset)*time.Microsecond
	return p.player.Seek(pos)
}

func (p *playerAdapter) SetPosition(trackID string, position types.Microseconds) error {
	snap := p.player.Snapshot()
	if snap.Track == nil || trackID != trackPath(snap.Track.ID) {
		// Stale track id, ignored per MPRIS.
		return nil
	}
	return p.player.Seek(time.Duration(position) * time.Microsecond)
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error {
	return nil // Not supported
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	return playbackStatus(p.current().State), nil
}

func (p *playerAdapter) Rate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) SetRate(_ float64) error {
	return nil // Not supported
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return metadata(p.snap, p.artURL), nil
}

func (p *playerAdapter) Volume() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) SetVolume(_ float64) error {
	return nil // Not supported
}

func (p *playerAdapter) Position() (int64, error) {
	return p.player.Snapshot().Position.Microseconds(), nil
}

func (p *playerAdapter) MinimumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) MaximumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) CanGoNext() (bool, error) {
	return p.current().PlaylistLen > 0, nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	return p.current().PlaylistLen > 0, nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	snap := p.current()
	return snap.Track != nil || snap.PlaylistLen > 0, nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return p.current().Track != nil, nil
}

func (p *playerAdapter) CanSeek() (bool, error) {
	return p.current().State.IsActive(), nil
}

func (p *playerAdapter) CanControl() (bool, error) {
	return true, nil
}

func playbackStatus(s playback.State) types.PlaybackStatus {
	switch s {
	case playback.StatePlaying:
		return types.PlaybackStatusPlaying
	case playback.StatePaused, playback.StatePrepared:
		return types.PlaybackStatusPaused
	}
	return types.PlaybackStatusStopped
}

// metadata builds the session metadata. Stopped and idle sessions carry none.
func metadata(snap playback.Snapshot, artURL string) types.Metadata {
	if snap.Track == nil || !snap.State.HasTrack() {
		return types.Metadata{}
	}
	meta := types.Metadata{
		TrackId: dbus.ObjectPath(trackPath(snap.Track.ID)),
		Length:  types.Microseconds(snap.Duration.Microseconds()),
		Title:   snap.Track.Title,
		Artist:  []string{snap.Track.Author},
		ArtUrl:  artURL,
	}
	return meta
}

func trackPath(id int) string {
	return fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%d", id)
}
