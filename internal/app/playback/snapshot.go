package playback

import (
	"time"

	"github.com/osa030/ambientbox/internal/domain/track"
)

// Snapshot is an immutable view of the controller, delivered to sinks and
// observers.
type Snapshot struct {
	Seq         uint64 // Increases with every published snapshot
	State       State
	Track       *track.Track // nil when Idle or Stopped
	Artwork     []byte       // JPEG artwork of Track, nil if none
	Position    time.Duration
	Duration    time.Duration
	Index       int // Playlist cursor, -1 without playlist
	PlaylistLen int
	Failure     *Failure // Last failure, if the controller is Idle because of it
}

// IsPlaying returns true if the snapshot is in the playing state.
func (s Snapshot) IsPlaying() bool {
	return s.State == StatePlaying
}

// HasTrack returns true if the snapshot carries a track.
func (s Snapshot) HasTrack() bool {
	return s.Track != nil
}
